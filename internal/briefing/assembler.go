package briefing

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/byggpilot/byggpilot/internal/knowledge"
	"github.com/byggpilot/byggpilot/internal/store"
)

// Store is the slice of the store the assembler reads from.
type Store interface {
	GetCompany(ctx context.Context, id string) (store.Company, bool, error)
	ListCustomers(ctx context.Context, companyID string) ([]store.Customer, error)
	ListProjects(ctx context.Context, companyID string) ([]store.Project, error)
}

// Searcher is implemented by the knowledge retriever.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.KnowledgeSnippet, error)
}

// Assembler builds the context block that precedes every agent turn.
// The block is assembled fresh on each invocation so the model always
// sees current data; nothing here is cached between turns.
type Assembler struct {
	store    Store
	searcher Searcher
}

func NewAssembler(s Store, searcher Searcher) *Assembler {
	return &Assembler{store: s, searcher: searcher}
}

// Build fetches the briefing sections concurrently and renders them in a
// fixed order. Sections without data are omitted rather than rendered
// empty; the knowledge section is included only when the user's message
// touches a regulated topic.
func (a *Assembler) Build(ctx context.Context, companyID, userMessage string) (string, error) {
	var (
		companySection   string
		customersSection string
		projectsSection  string
		knowledgeSection string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		company, found, err := a.store.GetCompany(gctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load company: %w", err)
		}
		if found {
			companySection = renderCompany(company)
		}
		return nil
	})

	g.Go(func() error {
		customers, err := a.store.ListCustomers(gctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load customers: %w", err)
		}
		customersSection = renderCustomers(customers)
		return nil
	})

	g.Go(func() error {
		projects, err := a.store.ListProjects(gctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load projects: %w", err)
		}
		projectsSection = renderProjects(projects)
		return nil
	})

	if knowledge.Triggered(userMessage) {
		g.Go(func() error {
			snippets, err := a.searcher.Search(gctx, userMessage, 3)
			if err != nil {
				return fmt.Errorf("knowledge retrieval failed: %w", err)
			}
			knowledgeSection = renderKnowledge(snippets)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	sections := make([]string, 0, 4)
	for _, section := range []string{companySection, customersSection, projectsSection, knowledgeSection} {
		if section != "" {
			sections = append(sections, section)
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

func renderCompany(company store.Company) string {
	var b strings.Builder
	b.WriteString("## Company\n")
	fmt.Fprintf(&b, "%s (org.nr %s)\n", company.Name, company.OrgNumber)
	if company.Profile != "" {
		fmt.Fprintf(&b, "Profile: %s\n", company.Profile)
	}
	if company.RiskNotes != "" {
		fmt.Fprintf(&b, "Risk notes: %s\n", company.RiskNotes)
	}
	return strings.TrimSpace(b.String())
}

func renderCustomers(customers []store.Customer) string {
	if len(customers) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Customers\n")
	for _, customer := range customers {
		fmt.Fprintf(&b, "- %s (%s)", customer.Name, customer.ID)
		if customer.Email != "" {
			fmt.Fprintf(&b, " <%s>", customer.Email)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func renderProjects(projects []store.Project) string {
	if len(projects) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Projects\n")
	for _, project := range projects {
		fmt.Fprintf(&b, "- %s (%s): %s, %s\n", project.Name, project.ID, project.Status, project.Address)
	}
	return strings.TrimSpace(b.String())
}

func renderKnowledge(snippets []store.KnowledgeSnippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant guidance\n")
	for _, snippet := range snippets {
		fmt.Fprintf(&b, "- %s (%s): %s\n", snippet.Topic, snippet.Source, snippet.Content)
	}
	return strings.TrimSpace(b.String())
}
