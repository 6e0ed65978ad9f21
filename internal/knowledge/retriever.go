package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/byggpilot/byggpilot/internal/store"
)

// SnippetSource is the slice of the store the retriever needs.
type SnippetSource interface {
	ListSnippets(ctx context.Context) ([]store.KnowledgeSnippet, error)
}

// Triggers are the message keywords that make the context assembler include
// retrieved guidance. Matching is case-insensitive substring.
var Triggers = []string{
	"äta",
	"ändring",
	"tillägg",
	"avgående",
	"bbr",
	"boverket",
	"bygglov",
	"regler",
	"regulation",
	"ab 04",
	"abt 06",
	"garanti",
	"besiktning",
	"avtal",
	"moms",
	"rot",
	"omvänd byggmoms",
}

// Triggered reports whether a user message should pull in knowledge snippets.
func Triggered(message string) bool {
	lowered := strings.ToLower(message)
	for _, trigger := range Triggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}

type scored struct {
	snippet store.KnowledgeSnippet
	score   int
}

type Retriever struct {
	source SnippetSource
}

func NewRetriever(source SnippetSource) *Retriever {
	return &Retriever{source: source}
}

// Search ranks snippets by keyword overlap with the query and returns up to
// limit results. Scoring is deliberately simple: topic and keyword hits weigh
// more than body hits, ties break on recency.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]store.KnowledgeSnippet, error) {
	if limit <= 0 {
		limit = 3
	}

	snippets, err := r.source.ListSnippets(ctx)
	if err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	matches := make([]scored, 0, len(snippets))
	for _, snippet := range snippets {
		score := scoreSnippet(snippet, terms)
		if score == 0 {
			continue
		}
		matches = append(matches, scored{snippet: snippet, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].snippet.CreatedAt.After(matches[j].snippet.CreatedAt)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	ret := make([]store.KnowledgeSnippet, 0, len(matches))
	for _, m := range matches {
		ret = append(ret, m.snippet)
	}
	return ret, nil
}

func scoreSnippet(snippet store.KnowledgeSnippet, terms []string) int {
	topic := strings.ToLower(snippet.Topic)
	keywords := strings.ToLower(snippet.Keywords)
	content := strings.ToLower(snippet.Content)

	score := 0
	for _, term := range terms {
		if strings.Contains(topic, term) {
			score += 3
		}
		if strings.Contains(keywords, term) {
			score += 3
		}
		if strings.Contains(content, term) {
			score++
		}
	}
	return score
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.Trim(field, ".,!?:;\"'()")
		if len([]rune(field)) < 3 {
			continue
		}
		terms = append(terms, field)
	}
	return terms
}
