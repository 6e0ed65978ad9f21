package store

import "time"

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

type OfferStatus string

const (
	OfferDraft    OfferStatus = "draft"
	OfferSent     OfferStatus = "sent"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// ChangeOrderStatus tracks an ÄTA (change/addition order) through its life.
// ApprovedByInvoicing marks a draft order retroactively approved when the
// project invoice that billed it was finalized.
type ChangeOrderStatus string

const (
	ChangeOrderDraft               ChangeOrderStatus = "draft"
	ChangeOrderSent                ChangeOrderStatus = "sent"
	ChangeOrderApproved            ChangeOrderStatus = "approved"
	ChangeOrderApprovedByInvoicing ChangeOrderStatus = "approved_by_invoicing"
	ChangeOrderRejected            ChangeOrderStatus = "rejected"
)

// Company is the tenant: one construction business per company record.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OrgNumber string    `json:"org_number"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Profile   string    `json:"profile"`
	RiskNotes string    `json:"risk_notes"`
	CreatedAt time.Time `json:"created_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID         string        `json:"id"`
	CompanyID  string        `json:"company_id"`
	CustomerID string        `json:"customer_id"`
	Name       string        `json:"name"`
	Address    string        `json:"address"`
	Status     ProjectStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Offer amounts are stored in öre to keep arithmetic exact.
type Offer struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Title     string      `json:"title"`
	AmountOre int64       `json:"amount_ore"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

type ChangeOrder struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	AmountOre   int64             `json:"amount_ore"`
	Status      ChangeOrderStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type Expense struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	AmountOre   int64     `json:"amount_ore"`
	IncurredAt  time.Time `json:"incurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Invoice is the immutable record of a finalized and transmitted invoice.
type Invoice struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	DocumentRef string     `json:"document_ref"`
	PDFRef      string     `json:"pdf_ref"`
	Recipient   string     `json:"recipient"`
	TotalOre    int64      `json:"total_ore"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// KnowledgeSnippet is a retrievable piece of domain guidance
// (building regulations, ÄTA practice, contract terms).
type KnowledgeSnippet struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Keywords  string    `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}
