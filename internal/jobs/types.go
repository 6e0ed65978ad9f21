package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Job kinds understood by the generation executor.
const (
	KindInvoiceDraft   = "invoice_draft"
	KindChangeOrderPDF = "change_order_pdf"
	KindKnowledgeIndex = "knowledge_index"
)

// EnqueueRequest describes a job to run. DedupeKey may be left empty;
// the queue then derives it from the payload so two callers asking for
// the same document share one job.
type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

func (r EnqueueRequest) dedupeKey() string {
	if r.DedupeKey != "" {
		return r.DedupeKey
	}
	return r.Payload.DedupeKey()
}

// JobPayload identifies what to generate and for whom. Handlers must be
// idempotent: a job may be picked up twice if the triggering call is retried.
type JobPayload struct {
	Kind        string `json:"kind"`
	SubjectID   string `json:"subject_id"`
	ProjectID   string `json:"project_id,omitempty"`
	RequestedBy string `json:"requested_by"`
}

// DedupeKey identifies the document this payload produces. One key maps
// to at most one live job.
func (p JobPayload) DedupeKey() string {
	if p.Kind == "" || p.SubjectID == "" {
		return ""
	}
	return p.Kind + "|" + p.SubjectID
}

// Describe renders the payload for log lines.
func (p JobPayload) Describe() string {
	if p.Kind == "" {
		return "unspecified job"
	}
	desc := p.Kind + " for " + p.SubjectID
	if p.RequestedBy != "" {
		desc += " (requested by " + p.RequestedBy + ")"
	}
	return desc
}

type GenerationJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
