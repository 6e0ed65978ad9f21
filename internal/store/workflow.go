package store

import "time"

// Workflow instance kinds.
const (
	WorkflowKindInvoice     = "invoice"
	WorkflowKindChangeOrder = "change_order"
)

// WorkflowInstance is the persisted state of one draft→review→finalize run
// for a single business subject (e.g. one project's invoice). Stage semantics
// and transition rules live in the workflow package; this is only the record.
type WorkflowInstance struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	SubjectID   string          `json:"subject_id"`
	Stage       string          `json:"stage"`
	DraftRef    string          `json:"draft_ref"`
	DraftLink   string          `json:"draft_link"`
	Checklist   map[string]bool `json:"checklist"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinalizedAt *time.Time      `json:"finalized_at,omitempty"`
}
