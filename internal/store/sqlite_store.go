package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/byggpilot/byggpilot/internal/jobs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the document store behind the assistant: company, customer,
// project, offer, ÄTA, expense, invoice and workflow records, plus the
// persistence backing for the generation-job queue.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

// ---- companies ----

func (s *SQLiteStore) UpsertCompany(ctx context.Context, company *Company) error {
	if company == nil {
		return fmt.Errorf("company is nil")
	}
	company.ID = newID(company.ID)
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO companies (id, name, org_number, email, phone, profile, risk_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			org_number=excluded.org_number,
			email=excluded.email,
			phone=excluded.phone,
			profile=excluded.profile,
			risk_notes=excluded.risk_notes`,
		company.ID,
		company.Name,
		company.OrgNumber,
		company.Email,
		company.Phone,
		company.Profile,
		company.RiskNotes,
		company.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (Company, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, org_number, email, phone, profile, risk_notes, created_at
		 FROM companies WHERE id = ?`,
		id,
	)
	var ret Company
	if err := row.Scan(&ret.ID, &ret.Name, &ret.OrgNumber, &ret.Email, &ret.Phone, &ret.Profile, &ret.RiskNotes, &ret.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Company{}, false, nil
		}
		return Company{}, false, err
	}
	return ret, true, nil
}

// ---- customers ----

func (s *SQLiteStore) CreateCustomer(ctx context.Context, customer *Customer) error {
	if customer == nil {
		return fmt.Errorf("customer is nil")
	}
	customer.ID = newID(customer.ID)
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO customers (id, company_id, name, email, phone, address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.CompanyID,
		customer.Name,
		customer.Email,
		customer.Phone,
		customer.Address,
		customer.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListCustomers(ctx context.Context, companyID string) ([]Customer, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, company_id, name, email, phone, address, created_at
		 FROM customers WHERE company_id = ? ORDER BY name ASC`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Customer, 0)
	for rows.Next() {
		var item Customer
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.Name, &item.Email, &item.Phone, &item.Address, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (Customer, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, company_id, name, email, phone, address, created_at
		 FROM customers WHERE id = ?`,
		id,
	)
	var ret Customer
	if err := row.Scan(&ret.ID, &ret.CompanyID, &ret.Name, &ret.Email, &ret.Phone, &ret.Address, &ret.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Customer{}, false, nil
		}
		return Customer{}, false, err
	}
	return ret, true, nil
}

// ---- projects ----

func (s *SQLiteStore) CreateProject(ctx context.Context, project *Project) error {
	if project == nil {
		return fmt.Errorf("project is nil")
	}
	project.ID = newID(project.ID)
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	if project.Status == "" {
		project.Status = ProjectActive
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO projects (id, company_id, customer_id, name, address, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.CompanyID,
		project.CustomerID,
		project.Name,
		project.Address,
		string(project.Status),
		project.CreatedAt,
		project.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (Project, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, company_id, customer_id, name, address, status, created_at, updated_at
		 FROM projects WHERE id = ?`,
		id,
	)
	var ret Project
	var status string
	if err := row.Scan(&ret.ID, &ret.CompanyID, &ret.CustomerID, &ret.Name, &ret.Address, &status, &ret.CreatedAt, &ret.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Project{}, false, nil
		}
		return Project{}, false, err
	}
	ret.Status = ProjectStatus(status)
	return ret, true, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, companyID string) ([]Project, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, company_id, customer_id, name, address, status, created_at, updated_at
		 FROM projects WHERE company_id = ? ORDER BY created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Project, 0)
	for rows.Next() {
		var item Project
		var status string
		if err := rows.Scan(&item.ID, &item.CompanyID, &item.CustomerID, &item.Name, &item.Address, &status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Status = ProjectStatus(status)
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) UpdateProjectStatus(ctx context.Context, id string, status ProjectStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().UTC(),
		id,
	)
	return err
}

// ---- offers ----

func (s *SQLiteStore) CreateOffer(ctx context.Context, offer *Offer) error {
	if offer == nil {
		return fmt.Errorf("offer is nil")
	}
	offer.ID = newID(offer.ID)
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now().UTC()
	}
	if offer.Status == "" {
		offer.Status = OfferDraft
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO offers (id, project_id, title, amount_ore, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		offer.ID,
		offer.ProjectID,
		offer.Title,
		offer.AmountOre,
		string(offer.Status),
		offer.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListOffersByProject(ctx context.Context, projectID string) ([]Offer, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, title, amount_ore, status, created_at
		 FROM offers WHERE project_id = ? ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Offer, 0)
	for rows.Next() {
		var item Offer
		var status string
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.AmountOre, &status, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Status = OfferStatus(status)
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// AcceptedOffer returns the most recent accepted offer for a project.
func (s *SQLiteStore) AcceptedOffer(ctx context.Context, projectID string) (Offer, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, project_id, title, amount_ore, status, created_at
		 FROM offers WHERE project_id = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		projectID,
		string(OfferAccepted),
	)
	var ret Offer
	var status string
	if err := row.Scan(&ret.ID, &ret.ProjectID, &ret.Title, &ret.AmountOre, &status, &ret.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Offer{}, false, nil
		}
		return Offer{}, false, err
	}
	ret.Status = OfferStatus(status)
	return ret, true, nil
}

func (s *SQLiteStore) UpdateOfferStatus(ctx context.Context, id string, status OfferStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE offers SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// ---- change orders (ÄTA) ----

func (s *SQLiteStore) CreateChangeOrder(ctx context.Context, order *ChangeOrder) error {
	if order == nil {
		return fmt.Errorf("change order is nil")
	}
	order.ID = newID(order.ID)
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = ChangeOrderDraft
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO change_orders (id, project_id, title, description, amount_ore, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.ProjectID,
		order.Title,
		order.Description,
		order.AmountOre,
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) ListChangeOrdersByProject(ctx context.Context, projectID string) ([]ChangeOrder, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, title, description, amount_ore, status, created_at, updated_at
		 FROM change_orders WHERE project_id = ? ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]ChangeOrder, 0)
	for rows.Next() {
		var item ChangeOrder
		var status string
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.AmountOre, &status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Status = ChangeOrderStatus(status)
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) UpdateChangeOrderStatus(ctx context.Context, id string, status ChangeOrderStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE change_orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().UTC(),
		id,
	)
	return err
}

// MarkDraftChangeOrdersApprovedByInvoicing flips every draft or sent ÄTA of a
// project to approved_by_invoicing. Called only after an invoice covering them
// was transmitted successfully.
func (s *SQLiteStore) MarkDraftChangeOrdersApprovedByInvoicing(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE change_orders SET status = ?, updated_at = ?
		 WHERE project_id = ? AND status IN (?, ?)`,
		string(ChangeOrderApprovedByInvoicing),
		time.Now().UTC(),
		projectID,
		string(ChangeOrderDraft),
		string(ChangeOrderSent),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- expenses ----

func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *Expense) error {
	if expense == nil {
		return fmt.Errorf("expense is nil")
	}
	expense.ID = newID(expense.ID)
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	if expense.IncurredAt.IsZero() {
		expense.IncurredAt = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO expenses (id, project_id, description, category, amount_ore, incurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.ID,
		expense.ProjectID,
		expense.Description,
		expense.Category,
		expense.AmountOre,
		expense.IncurredAt,
		expense.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListExpensesByProject(ctx context.Context, projectID string) ([]Expense, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, description, category, amount_ore, incurred_at, created_at
		 FROM expenses WHERE project_id = ? ORDER BY incurred_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Expense, 0)
	for rows.Next() {
		var item Expense
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Description, &item.Category, &item.AmountOre, &item.IncurredAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// ---- invoices ----

func (s *SQLiteStore) CreateInvoice(ctx context.Context, invoice *Invoice) error {
	if invoice == nil {
		return fmt.Errorf("invoice is nil")
	}
	invoice.ID = newID(invoice.ID)
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO invoices (id, project_id, document_ref, pdf_ref, recipient, total_ore, sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.ProjectID,
		invoice.DocumentRef,
		invoice.PDFRef,
		invoice.Recipient,
		invoice.TotalOre,
		invoice.SentAt,
		invoice.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListInvoicesByProject(ctx context.Context, projectID string) ([]Invoice, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, project_id, document_ref, pdf_ref, recipient, total_ore, sent_at, created_at
		 FROM invoices WHERE project_id = ? ORDER BY created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Invoice, 0)
	for rows.Next() {
		var item Invoice
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.DocumentRef, &item.PDFRef, &item.Recipient, &item.TotalOre, &item.SentAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// ---- knowledge snippets ----

func (s *SQLiteStore) UpsertSnippet(ctx context.Context, snippet *KnowledgeSnippet) error {
	if snippet == nil {
		return fmt.Errorf("snippet is nil")
	}
	snippet.ID = newID(snippet.ID)
	if snippet.CreatedAt.IsZero() {
		snippet.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO knowledge_snippets (id, topic, content, source, keywords, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic,
			content=excluded.content,
			source=excluded.source,
			keywords=excluded.keywords`,
		snippet.ID,
		snippet.Topic,
		snippet.Content,
		snippet.Source,
		snippet.Keywords,
		snippet.CreatedAt,
	)
	return err
}

// ListSnippets returns all snippets; ranking happens in the knowledge package.
func (s *SQLiteStore) ListSnippets(ctx context.Context) ([]KnowledgeSnippet, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, topic, content, source, keywords, created_at
		 FROM knowledge_snippets ORDER BY topic ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]KnowledgeSnippet, 0)
	for rows.Next() {
		var item KnowledgeSnippet
		if err := rows.Scan(&item.ID, &item.Topic, &item.Content, &item.Source, &item.Keywords, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// ---- workflow instances ----

func (s *SQLiteStore) UpsertWorkflowInstance(ctx context.Context, instance *WorkflowInstance) error {
	if instance == nil {
		return fmt.Errorf("workflow instance is nil")
	}
	instance.ID = newID(instance.ID)
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	checklistJSON, err := json.Marshal(instance.Checklist)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_instances (
			id, kind, subject_id, stage, draft_ref, draft_link, checklist_json, created_at, updated_at, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage=excluded.stage,
			draft_ref=excluded.draft_ref,
			draft_link=excluded.draft_link,
			checklist_json=excluded.checklist_json,
			updated_at=excluded.updated_at,
			finalized_at=excluded.finalized_at`,
		instance.ID,
		instance.Kind,
		instance.SubjectID,
		instance.Stage,
		instance.DraftRef,
		instance.DraftLink,
		string(checklistJSON),
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.FinalizedAt,
	)
	return err
}

func (s *SQLiteStore) GetWorkflowInstance(ctx context.Context, id string) (WorkflowInstance, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, kind, subject_id, stage, draft_ref, draft_link, checklist_json, created_at, updated_at, finalized_at
		 FROM workflow_instances WHERE id = ?`,
		id,
	)
	return scanWorkflowInstance(row)
}

// LatestWorkflowInstance returns the most recent instance for a subject.
func (s *SQLiteStore) LatestWorkflowInstance(ctx context.Context, kind, subjectID string) (WorkflowInstance, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, kind, subject_id, stage, draft_ref, draft_link, checklist_json, created_at, updated_at, finalized_at
		 FROM workflow_instances WHERE kind = ? AND subject_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		kind,
		subjectID,
	)
	return scanWorkflowInstance(row)
}

// ListStaleWorkflowInstances returns non-terminal instances untouched since the cutoff.
func (s *SQLiteStore) ListStaleWorkflowInstances(ctx context.Context, cutoff time.Time) ([]WorkflowInstance, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, subject_id, stage, draft_ref, draft_link, checklist_json, created_at, updated_at, finalized_at
		 FROM workflow_instances
		 WHERE stage IN ('drafting', 'reviewing', 'finalizing') AND updated_at <= ?
		 ORDER BY updated_at ASC`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]WorkflowInstance, 0)
	for rows.Next() {
		instance, ok, err := scanWorkflowInstance(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, instance)
		}
	}
	return ret, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflowInstance(row rowScanner) (WorkflowInstance, bool, error) {
	var ret WorkflowInstance
	var checklistJSON string
	var finalizedAt sql.NullTime
	if err := row.Scan(
		&ret.ID,
		&ret.Kind,
		&ret.SubjectID,
		&ret.Stage,
		&ret.DraftRef,
		&ret.DraftLink,
		&checklistJSON,
		&ret.CreatedAt,
		&ret.UpdatedAt,
		&finalizedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return WorkflowInstance{}, false, nil
		}
		return WorkflowInstance{}, false, err
	}
	if err := json.Unmarshal([]byte(checklistJSON), &ret.Checklist); err != nil {
		return WorkflowInstance{}, false, err
	}
	if ret.Checklist == nil {
		ret.Checklist = map[string]bool{}
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		ret.FinalizedAt = &t
	}
	return ret, true, nil
}

// ---- generation jobs ----

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.GenerationJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, kind, subject_id, project_id, requested_by, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.GenerationJob, 0)
	for rows.Next() {
		var item jobs.GenerationJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.Kind,
			&item.Payload.SubjectID,
			&item.Payload.ProjectID,
			&item.Payload.RequestedBy,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.GenerationJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, kind, subject_id, project_id, requested_by, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			kind=excluded.kind,
			subject_id=excluded.subject_id,
			project_id=excluded.project_id,
			requested_by=excluded.requested_by,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.Kind,
		job.Payload.SubjectID,
		job.Payload.ProjectID,
		job.Payload.RequestedBy,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}
