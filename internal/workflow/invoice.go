package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/byggpilot/byggpilot/internal/gworkspace"
	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/pkg/log"
)

// DocumentBridge is the slice of the workspace bridge the flows need.
type DocumentBridge interface {
	CreateDocument(ctx context.Context, token string, req gworkspace.DocumentRequest) (gworkspace.DocumentResult, error)
	ExportPDF(ctx context.Context, token, documentRef string) (gworkspace.PDFResult, error)
	SendEmail(ctx context.Context, token string, req gworkspace.EmailRequest) (gworkspace.EmailResult, error)
}

// InvoiceStore is the slice of the store the invoice flow needs.
type InvoiceStore interface {
	GetCompany(ctx context.Context, id string) (store.Company, bool, error)
	GetProject(ctx context.Context, id string) (store.Project, bool, error)
	GetCustomer(ctx context.Context, id string) (store.Customer, bool, error)
	AcceptedOffer(ctx context.Context, projectID string) (store.Offer, bool, error)
	ListChangeOrdersByProject(ctx context.Context, projectID string) ([]store.ChangeOrder, error)
	ListExpensesByProject(ctx context.Context, projectID string) ([]store.Expense, error)
	CreateInvoice(ctx context.Context, invoice *store.Invoice) error
	UpdateProjectStatus(ctx context.Context, id string, status store.ProjectStatus) error
	MarkDraftChangeOrdersApprovedByInvoicing(ctx context.Context, projectID string) (int64, error)
	UpsertWorkflowInstance(ctx context.Context, instance *store.WorkflowInstance) error
	GetWorkflowInstance(ctx context.Context, id string) (store.WorkflowInstance, bool, error)
	LatestWorkflowInstance(ctx context.Context, kind, subjectID string) (store.WorkflowInstance, bool, error)
}

// Checklist items every invoice must pass before finalizing.
const (
	ChecklistAmountsVerified    = "amounts_verified"
	ChecklistRecipientConfirmed = "recipient_confirmed"
	ChecklistROTChecked         = "rot_checked"
)

func newInvoiceChecklist() map[string]bool {
	return map[string]bool{
		ChecklistAmountsVerified:    false,
		ChecklistRecipientConfirmed: false,
		ChecklistROTChecked:         false,
	}
}

type DraftResult struct {
	InstanceID string   `json:"instance_id"`
	DraftRef   string   `json:"draft_ref"`
	DraftLink  string   `json:"draft_link"`
	Warnings   []string `json:"warnings,omitempty"`
}

type FinalizeRequest struct {
	SubjectID string `json:"subject_id"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type FinalizeResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	InvoiceID string `json:"invoice_id,omitempty"`
	PDFRef    string `json:"pdf_ref,omitempty"`
}

// InvoiceFlow drives one project invoice from gathered draft to sent
// document. ApproveChangeOrdersOnInvoice controls whether finalizing an
// invoice retroactively approves the project's draft change orders: the
// customer accepted them implicitly by paying, so the default is on.
type InvoiceFlow struct {
	store                        InvoiceStore
	bridge                       DocumentBridge
	ApproveChangeOrdersOnInvoice bool
}

func NewInvoiceFlow(s InvoiceStore, bridge DocumentBridge) *InvoiceFlow {
	return &InvoiceFlow{
		store:                        s,
		bridge:                       bridge,
		ApproveChangeOrdersOnInvoice: true,
	}
}

// PrepareDraft gathers the project's billing material, renders an editable
// draft document and parks the workflow in the reviewing stage. Data gaps
// are returned as warnings, never as errors: an incomplete draft the user
// can fix beats a refusal.
func (f *InvoiceFlow) PrepareDraft(ctx context.Context, token, projectID string) (DraftResult, error) {
	data, warnings, err := f.gather(ctx, projectID)
	if err != nil {
		return DraftResult{}, err
	}

	now := time.Now()
	doc, err := f.bridge.CreateDocument(ctx, token, gworkspace.DocumentRequest{
		Title: fmt.Sprintf("Fakturautkast – %s", data.Project.Name),
		Body:  renderInvoiceDraft(data, now),
	})
	if err != nil {
		return DraftResult{}, fmt.Errorf("failed to create draft document: %w", err)
	}

	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindInvoice, projectID)
	if err != nil {
		return DraftResult{}, err
	}
	if !found || instance.Stage == string(StageDone) {
		instance = store.WorkflowInstance{
			Kind:      store.WorkflowKindInvoice,
			SubjectID: projectID,
			Stage:     string(StageDrafting),
			Checklist: newInvoiceChecklist(),
		}
	}
	instance.DraftRef = doc.DocumentRef
	instance.DraftLink = doc.Link
	if instance.Stage == string(StageDrafting) {
		if err := Advance(&instance, StageReviewing); err != nil {
			return DraftResult{}, err
		}
	}
	if err := f.store.UpsertWorkflowInstance(ctx, &instance); err != nil {
		return DraftResult{}, err
	}

	log.Info("Prepared invoice draft %s for project %s (%d warnings)", doc.DocumentRef, projectID, len(warnings))
	return DraftResult{
		InstanceID: instance.ID,
		DraftRef:   doc.DocumentRef,
		DraftLink:  doc.Link,
		Warnings:   warnings,
	}, nil
}

// SetChecklistItem ticks or unticks one review item on the latest instance.
func (f *InvoiceFlow) SetChecklistItem(ctx context.Context, projectID, item string, done bool) (store.WorkflowInstance, error) {
	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindInvoice, projectID)
	if err != nil {
		return store.WorkflowInstance{}, err
	}
	if !found {
		return store.WorkflowInstance{}, fmt.Errorf("no invoice draft exists for project %s", projectID)
	}
	if instance.Stage == string(StageDone) {
		return store.WorkflowInstance{}, fmt.Errorf("invoice for project %s is already finalized", projectID)
	}
	if _, ok := instance.Checklist[item]; !ok {
		return store.WorkflowInstance{}, fmt.Errorf("unknown checklist item %q", item)
	}
	instance.Checklist[item] = done
	if err := f.store.UpsertWorkflowInstance(ctx, &instance); err != nil {
		return store.WorkflowInstance{}, err
	}
	return instance, nil
}

// Finalize exports the reviewed draft to PDF, emails it to the recipient
// and records the invoice. The project is marked completed and draft change
// orders are retroactively approved only after the send succeeded; any
// failure leaves the instance in finalizing with the subject untouched, so
// the call can be retried.
func (f *InvoiceFlow) Finalize(ctx context.Context, token string, req FinalizeRequest) (FinalizeResult, error) {
	if req.Recipient == "" {
		return FinalizeResult{}, fmt.Errorf("recipient is required")
	}

	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindInvoice, req.SubjectID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if !found {
		return FinalizeResult{}, fmt.Errorf("no invoice draft exists for project %s", req.SubjectID)
	}
	if instance.Stage == string(StageDone) {
		return FinalizeResult{}, fmt.Errorf("invoice for project %s is already finalized", req.SubjectID)
	}
	if !ChecklistComplete(instance.Checklist) {
		return FinalizeResult{
			Success: false,
			Message: "Checklistan är inte klar. Bocka av alla punkter innan fakturan skickas.",
		}, nil
	}

	if instance.Stage == string(StageReviewing) {
		if err := Advance(&instance, StageFinalizing); err != nil {
			return FinalizeResult{}, err
		}
		if err := f.store.UpsertWorkflowInstance(ctx, &instance); err != nil {
			return FinalizeResult{}, err
		}
	}

	pdf, err := f.bridge.ExportPDF(ctx, token, instance.DraftRef)
	if err != nil {
		log.Warn("Invoice PDF export failed for project %s: %v", req.SubjectID, err)
		return FinalizeResult{
			Success: false,
			Message: "Kunde inte exportera fakturan till PDF. Utkastet är kvar och går att försöka igen.",
		}, nil
	}

	data, _, err := f.gather(ctx, req.SubjectID)
	if err != nil {
		return FinalizeResult{}, err
	}

	if _, err := f.bridge.SendEmail(ctx, token, gworkspace.EmailRequest{
		To:            req.Recipient,
		Subject:       fmt.Sprintf("Faktura – %s", data.Project.Name),
		Body:          req.Message,
		AttachmentRef: pdf.PDFRef,
	}); err != nil {
		log.Warn("Invoice send failed for project %s: %v", req.SubjectID, err)
		return FinalizeResult{
			Success: false,
			Message: "Fakturan kunde inte skickas. Inget har ändrats på projektet; försök igen.",
		}, nil
	}

	sentAt := time.Now()
	invoice := store.Invoice{
		ProjectID:   req.SubjectID,
		DocumentRef: instance.DraftRef,
		PDFRef:      pdf.PDFRef,
		Recipient:   req.Recipient,
		TotalOre:    data.total(),
		SentAt:      &sentAt,
	}
	if err := f.store.CreateInvoice(ctx, &invoice); err != nil {
		return FinalizeResult{}, err
	}

	if err := Advance(&instance, StageDone); err != nil {
		return FinalizeResult{}, err
	}
	instance.FinalizedAt = &sentAt
	if err := f.store.UpsertWorkflowInstance(ctx, &instance); err != nil {
		return FinalizeResult{}, err
	}

	if err := f.store.UpdateProjectStatus(ctx, req.SubjectID, store.ProjectCompleted); err != nil {
		return FinalizeResult{}, err
	}

	if f.ApproveChangeOrdersOnInvoice {
		approved, err := f.store.MarkDraftChangeOrdersApprovedByInvoicing(ctx, req.SubjectID)
		if err != nil {
			return FinalizeResult{}, err
		}
		if approved > 0 {
			log.Info("Marked %d change orders approved by invoicing on project %s", approved, req.SubjectID)
		}
	}

	return FinalizeResult{
		Success:   true,
		Message:   fmt.Sprintf("Fakturan på %s har skickats till %s.", FormatSEK(invoice.TotalOre), req.Recipient),
		InvoiceID: invoice.ID,
		PDFRef:    pdf.PDFRef,
	}, nil
}

func (f *InvoiceFlow) gather(ctx context.Context, projectID string) (invoiceDraftData, []string, error) {
	project, found, err := f.store.GetProject(ctx, projectID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}
	if !found {
		return invoiceDraftData{}, nil, fmt.Errorf("project %s not found", projectID)
	}

	company, _, err := f.store.GetCompany(ctx, project.CompanyID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}
	customer, found, err := f.store.GetCustomer(ctx, project.CustomerID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}
	if !found {
		return invoiceDraftData{}, nil, fmt.Errorf("customer %s not found", project.CustomerID)
	}

	data := invoiceDraftData{
		Company:  company,
		Project:  project,
		Customer: customer,
	}

	offer, found, err := f.store.AcceptedOffer(ctx, projectID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}
	if found {
		data.Offer = &offer
	}

	data.ChangeOrders, err = f.store.ListChangeOrdersByProject(ctx, projectID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}
	data.Expenses, err = f.store.ListExpensesByProject(ctx, projectID)
	if err != nil {
		return invoiceDraftData{}, nil, err
	}

	warnings := make([]string, 0, 2)
	if data.Offer == nil {
		warnings = append(warnings, "Projektet saknar accepterad offert – kontrollera beloppen manuellt.")
	}
	if unapproved := len(data.unapprovedChangeOrders()); unapproved > 0 {
		warnings = append(warnings, fmt.Sprintf("%d ÄTA-poster är inte godkända av kunden och ingår inte i summan.", unapproved))
	}
	return data, warnings, nil
}
