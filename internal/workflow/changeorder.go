package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/byggpilot/byggpilot/internal/gworkspace"
	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/pkg/log"
)

// ChangeOrderStore is the slice of the store the ÄTA flow needs.
type ChangeOrderStore interface {
	GetCompany(ctx context.Context, id string) (store.Company, bool, error)
	GetProject(ctx context.Context, id string) (store.Project, bool, error)
	GetCustomer(ctx context.Context, id string) (store.Customer, bool, error)
	ListChangeOrdersByProject(ctx context.Context, projectID string) ([]store.ChangeOrder, error)
	UpdateChangeOrderStatus(ctx context.Context, id string, status store.ChangeOrderStatus) error
	UpsertWorkflowInstance(ctx context.Context, instance *store.WorkflowInstance) error
	LatestWorkflowInstance(ctx context.Context, kind, subjectID string) (store.WorkflowInstance, bool, error)
}

const ChecklistTermsConfirmed = "terms_confirmed"

func newChangeOrderChecklist() map[string]bool {
	return map[string]bool{
		ChecklistAmountsVerified:    false,
		ChecklistRecipientConfirmed: false,
		ChecklistTermsConfirmed:     false,
	}
}

// ChangeOrderFlow drives one ÄTA order from drafted document to a signed-off
// proposal sent to the customer. The subject of the workflow instance is the
// change order itself, not the project.
type ChangeOrderFlow struct {
	store  ChangeOrderStore
	bridge DocumentBridge
}

func NewChangeOrderFlow(s ChangeOrderStore, bridge DocumentBridge) *ChangeOrderFlow {
	return &ChangeOrderFlow{store: s, bridge: bridge}
}

func (f *ChangeOrderFlow) PrepareDraft(ctx context.Context, token, projectID, changeOrderID string) (DraftResult, error) {
	company, project, customer, order, err := f.gather(ctx, projectID, changeOrderID)
	if err != nil {
		return DraftResult{}, err
	}

	doc, err := f.bridge.CreateDocument(ctx, token, gworkspace.DocumentRequest{
		Title: fmt.Sprintf("ÄTA-underlag – %s", order.Title),
		Body:  renderChangeOrderDraft(company, project, customer, order, time.Now()),
	})
	if err != nil {
		return DraftResult{}, fmt.Errorf("failed to create draft document: %w", err)
	}

	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindChangeOrder, changeOrderID)
	if err != nil {
		return DraftResult{}, err
	}
	if !found || instance.Stage == string(StageDone) {
		instance = store.WorkflowInstance{
			Kind:      store.WorkflowKindChangeOrder,
			SubjectID: changeOrderID,
			Stage:     string(StageDrafting),
			Checklist: newChangeOrderChecklist(),
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

	log.Info("Prepared change order draft %s for order %s", doc.DocumentRef, changeOrderID)
	return DraftResult{
		InstanceID: instance.ID,
		DraftRef:   doc.DocumentRef,
		DraftLink:  doc.Link,
	}, nil
}

func (f *ChangeOrderFlow) SetChecklistItem(ctx context.Context, changeOrderID, item string, done bool) (store.WorkflowInstance, error) {
	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindChangeOrder, changeOrderID)
	if err != nil {
		return store.WorkflowInstance{}, err
	}
	if !found {
		return store.WorkflowInstance{}, fmt.Errorf("no draft exists for change order %s", changeOrderID)
	}
	if instance.Stage == string(StageDone) {
		return store.WorkflowInstance{}, fmt.Errorf("change order %s has already been sent", changeOrderID)
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

// Send exports the reviewed ÄTA document and emails it to the customer.
// The order moves to sent only after the email went out; failures leave it
// in finalizing for a retry.
func (f *ChangeOrderFlow) Send(ctx context.Context, token, projectID string, req FinalizeRequest) (FinalizeResult, error) {
	if req.Recipient == "" {
		return FinalizeResult{}, fmt.Errorf("recipient is required")
	}

	_, _, _, order, err := f.gather(ctx, projectID, req.SubjectID)
	if err != nil {
		return FinalizeResult{}, err
	}

	instance, found, err := f.store.LatestWorkflowInstance(ctx, store.WorkflowKindChangeOrder, req.SubjectID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if !found {
		return FinalizeResult{}, fmt.Errorf("no draft exists for change order %s", req.SubjectID)
	}
	if instance.Stage == string(StageDone) {
		return FinalizeResult{}, fmt.Errorf("change order %s has already been sent", req.SubjectID)
	}
	if !ChecklistComplete(instance.Checklist) {
		return FinalizeResult{
			Success: false,
			Message: "Checklistan är inte klar. Bocka av alla punkter innan underlaget skickas.",
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
		log.Warn("Change order PDF export failed for %s: %v", req.SubjectID, err)
		return FinalizeResult{
			Success: false,
			Message: "Kunde inte exportera ÄTA-underlaget till PDF. Försök igen.",
		}, nil
	}

	if _, err := f.bridge.SendEmail(ctx, token, gworkspace.EmailRequest{
		To:            req.Recipient,
		Subject:       fmt.Sprintf("ÄTA-underlag – %s", order.Title),
		Body:          req.Message,
		AttachmentRef: pdf.PDFRef,
	}); err != nil {
		log.Warn("Change order send failed for %s: %v", req.SubjectID, err)
		return FinalizeResult{
			Success: false,
			Message: "ÄTA-underlaget kunde inte skickas. Ingenting har ändrats; försök igen.",
		}, nil
	}

	if err := f.store.UpdateChangeOrderStatus(ctx, req.SubjectID, store.ChangeOrderSent); err != nil {
		return FinalizeResult{}, err
	}

	sentAt := time.Now()
	if err := Advance(&instance, StageDone); err != nil {
		return FinalizeResult{}, err
	}
	instance.FinalizedAt = &sentAt
	if err := f.store.UpsertWorkflowInstance(ctx, &instance); err != nil {
		return FinalizeResult{}, err
	}

	return FinalizeResult{
		Success: true,
		Message: fmt.Sprintf("ÄTA-underlaget på %s har skickats till %s för godkännande.", FormatSEK(order.AmountOre), req.Recipient),
		PDFRef:  pdf.PDFRef,
	}, nil
}

func (f *ChangeOrderFlow) gather(ctx context.Context, projectID, changeOrderID string) (store.Company, store.Project, store.Customer, store.ChangeOrder, error) {
	var order store.ChangeOrder

	project, found, err := f.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Company{}, store.Project{}, store.Customer{}, order, err
	}
	if !found {
		return store.Company{}, store.Project{}, store.Customer{}, order, fmt.Errorf("project %s not found", projectID)
	}

	company, _, err := f.store.GetCompany(ctx, project.CompanyID)
	if err != nil {
		return store.Company{}, store.Project{}, store.Customer{}, order, err
	}
	customer, found, err := f.store.GetCustomer(ctx, project.CustomerID)
	if err != nil {
		return store.Company{}, store.Project{}, store.Customer{}, order, err
	}
	if !found {
		return store.Company{}, store.Project{}, store.Customer{}, order, fmt.Errorf("customer %s not found", project.CustomerID)
	}

	orders, err := f.store.ListChangeOrdersByProject(ctx, projectID)
	if err != nil {
		return store.Company{}, store.Project{}, store.Customer{}, order, err
	}
	for _, candidate := range orders {
		if candidate.ID == changeOrderID {
			order = candidate
			break
		}
	}
	if order.ID == "" {
		return store.Company{}, store.Project{}, store.Customer{}, order, fmt.Errorf("change order %s not found on project %s", changeOrderID, projectID)
	}
	return company, project, customer, order, nil
}
