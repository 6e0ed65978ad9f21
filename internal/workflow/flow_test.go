package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byggpilot/byggpilot/internal/gworkspace"
	"github.com/byggpilot/byggpilot/internal/store"
)

type fakeStore struct {
	company      store.Company
	projects     map[string]store.Project
	customers    map[string]store.Customer
	offers       map[string][]store.Offer
	changeOrders map[string][]store.ChangeOrder
	expenses     map[string][]store.Expense
	invoices     []store.Invoice
	instances    map[string]store.WorkflowInstance
	seq          int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		company:      store.Company{ID: "co-1", Name: "Svenssons Bygg AB", OrgNumber: "556000-1234"},
		projects:     map[string]store.Project{},
		customers:    map[string]store.Customer{},
		offers:       map[string][]store.Offer{},
		changeOrders: map[string][]store.ChangeOrder{},
		expenses:     map[string][]store.Expense{},
		instances:    map[string]store.WorkflowInstance{},
	}
}

func (f *fakeStore) GetCompany(_ context.Context, _ string) (store.Company, bool, error) {
	return f.company, true, nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (store.Project, bool, error) {
	p, ok := f.projects[id]
	return p, ok, nil
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (store.Customer, bool, error) {
	c, ok := f.customers[id]
	return c, ok, nil
}

func (f *fakeStore) AcceptedOffer(_ context.Context, projectID string) (store.Offer, bool, error) {
	for _, offer := range f.offers[projectID] {
		if offer.Status == store.OfferAccepted {
			return offer, true, nil
		}
	}
	return store.Offer{}, false, nil
}

func (f *fakeStore) ListChangeOrdersByProject(_ context.Context, projectID string) ([]store.ChangeOrder, error) {
	return f.changeOrders[projectID], nil
}

func (f *fakeStore) ListExpensesByProject(_ context.Context, projectID string) ([]store.Expense, error) {
	return f.expenses[projectID], nil
}

func (f *fakeStore) CreateInvoice(_ context.Context, invoice *store.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = fmt.Sprintf("inv-%d", len(f.invoices)+1)
	}
	f.invoices = append(f.invoices, *invoice)
	return nil
}

func (f *fakeStore) UpdateProjectStatus(_ context.Context, id string, status store.ProjectStatus) error {
	p, ok := f.projects[id]
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	p.Status = status
	f.projects[id] = p
	return nil
}

func (f *fakeStore) UpdateChangeOrderStatus(_ context.Context, id string, status store.ChangeOrderStatus) error {
	for projectID, orders := range f.changeOrders {
		for i, order := range orders {
			if order.ID == id {
				orders[i].Status = status
				f.changeOrders[projectID] = orders
				return nil
			}
		}
	}
	return fmt.Errorf("change order %s not found", id)
}

func (f *fakeStore) MarkDraftChangeOrdersApprovedByInvoicing(_ context.Context, projectID string) (int64, error) {
	var count int64
	orders := f.changeOrders[projectID]
	for i, order := range orders {
		if order.Status == store.ChangeOrderDraft {
			orders[i].Status = store.ChangeOrderApprovedByInvoicing
			count++
		}
	}
	f.changeOrders[projectID] = orders
	return count, nil
}

func (f *fakeStore) UpsertWorkflowInstance(_ context.Context, instance *store.WorkflowInstance) error {
	if instance.ID == "" {
		f.seq++
		instance.ID = fmt.Sprintf("wf-%d", f.seq)
		instance.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Millisecond)
	}
	stored := *instance
	stored.Checklist = make(map[string]bool, len(instance.Checklist))
	for k, v := range instance.Checklist {
		stored.Checklist[k] = v
	}
	f.instances[stored.ID] = stored
	return nil
}

func (f *fakeStore) GetWorkflowInstance(_ context.Context, id string) (store.WorkflowInstance, bool, error) {
	instance, ok := f.instances[id]
	return instance, ok, nil
}

func (f *fakeStore) LatestWorkflowInstance(_ context.Context, kind, subjectID string) (store.WorkflowInstance, bool, error) {
	var latest store.WorkflowInstance
	found := false
	for _, instance := range f.instances {
		if instance.Kind != kind || instance.SubjectID != subjectID {
			continue
		}
		if !found || instance.CreatedAt.After(latest.CreatedAt) {
			latest = instance
			found = true
		}
	}
	if found {
		copied := make(map[string]bool, len(latest.Checklist))
		for k, v := range latest.Checklist {
			copied[k] = v
		}
		latest.Checklist = copied
	}
	return latest, found, nil
}

type fakeBridge struct {
	docCount  int
	exportErr error
	sendErr   error
	sent      []gworkspace.EmailRequest
	lastDoc   gworkspace.DocumentRequest
}

func (f *fakeBridge) CreateDocument(_ context.Context, _ string, req gworkspace.DocumentRequest) (gworkspace.DocumentResult, error) {
	f.docCount++
	f.lastDoc = req
	ref := fmt.Sprintf("doc-%d", f.docCount)
	return gworkspace.DocumentResult{DocumentRef: ref, Link: "https://docs.example/" + ref}, nil
}

func (f *fakeBridge) ExportPDF(_ context.Context, _ string, documentRef string) (gworkspace.PDFResult, error) {
	if f.exportErr != nil {
		return gworkspace.PDFResult{}, f.exportErr
	}
	return gworkspace.PDFResult{PDFRef: "pdf-" + documentRef}, nil
}

func (f *fakeBridge) SendEmail(_ context.Context, _ string, req gworkspace.EmailRequest) (gworkspace.EmailResult, error) {
	if f.sendErr != nil {
		return gworkspace.EmailResult{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	return gworkspace.EmailResult{MessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

func seedProject(f *fakeStore) {
	f.projects["p1"] = store.Project{
		ID:         "p1",
		CompanyID:  "co-1",
		CustomerID: "cust-1",
		Name:       "Villa Svensson",
		Address:    "Storgatan 12",
		Status:     store.ProjectActive,
	}
	f.customers["cust-1"] = store.Customer{
		ID:    "cust-1",
		Name:  "Anna Andersson",
		Email: "anna@example.se",
	}
}

func completeChecklist(t *testing.T, f *fakeStore, kind, subjectID string) {
	t.Helper()
	instance, found, err := f.LatestWorkflowInstance(context.Background(), kind, subjectID)
	require.NoError(t, err)
	require.True(t, found)
	for item := range instance.Checklist {
		instance.Checklist[item] = true
	}
	require.NoError(t, f.UpsertWorkflowInstance(context.Background(), &instance))
}

func TestInvoiceFlow_PrepareDraft_WarnsOnMissingOfferAndUnapprovedATA(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{ID: "c1", ProjectID: "p1", Title: "Extra eluttag", AmountOre: 450000, Status: store.ChangeOrderDraft},
		{ID: "c2", ProjectID: "p1", Title: "Flytt av vägg", AmountOre: 1200000, Status: store.ChangeOrderSent},
	}
	bridge := &fakeBridge{}
	flow := NewInvoiceFlow(fs, bridge)

	result, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)

	assert.NotEmpty(t, result.DraftRef)
	assert.NotEmpty(t, result.DraftLink)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "accepterad offert")
	assert.Contains(t, result.Warnings[1], "2 ÄTA")

	instance, found, err := fs.LatestWorkflowInstance(context.Background(), store.WorkflowKindInvoice, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(StageReviewing), instance.Stage)
	assert.False(t, ChecklistComplete(instance.Checklist))
}

func TestInvoiceFlow_PrepareDraft_IncludesOfferAndApprovedATAInBody(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.offers["p1"] = []store.Offer{
		{ID: "o1", ProjectID: "p1", Title: "Badrumsrenovering", AmountOre: 25000000, Status: store.OfferAccepted},
	}
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{ID: "c1", ProjectID: "p1", Title: "Extra eluttag", AmountOre: 450000, Status: store.ChangeOrderApproved},
	}
	fs.expenses["p1"] = []store.Expense{
		{ID: "e1", ProjectID: "p1", Description: "Kakel", Category: "material", AmountOre: 800000},
	}
	bridge := &fakeBridge{}
	flow := NewInvoiceFlow(fs, bridge)

	result, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	body := bridge.lastDoc.Body
	assert.Contains(t, body, "Badrumsrenovering")
	assert.Contains(t, body, "Extra eluttag")
	assert.Contains(t, body, "Kakel")
	assert.Contains(t, body, "Totalt exkl. moms")
}

func TestInvoiceFlow_Finalize_RequiresCompleteChecklist(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	bridge := &fakeBridge{}
	flow := NewInvoiceFlow(fs, bridge)

	_, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)

	result, err := flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Checklistan")
	assert.Empty(t, fs.invoices)
	assert.Empty(t, bridge.sent)

	instance, _, _ := fs.LatestWorkflowInstance(context.Background(), store.WorkflowKindInvoice, "p1")
	assert.Equal(t, string(StageReviewing), instance.Stage)
}

func TestInvoiceFlow_Finalize_SendFailureLeavesSubjectUntouched(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{ID: "c1", ProjectID: "p1", Title: "Extra eluttag", AmountOre: 450000, Status: store.ChangeOrderDraft},
	}
	bridge := &fakeBridge{sendErr: fmt.Errorf("gmail unavailable")}
	flow := NewInvoiceFlow(fs, bridge)

	_, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)
	completeChecklist(t, fs, store.WorkflowKindInvoice, "p1")

	result, err := flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)

	assert.Empty(t, fs.invoices)
	assert.Equal(t, store.ProjectActive, fs.projects["p1"].Status)
	assert.Equal(t, store.ChangeOrderDraft, fs.changeOrders["p1"][0].Status)

	instance, _, _ := fs.LatestWorkflowInstance(context.Background(), store.WorkflowKindInvoice, "p1")
	assert.Equal(t, string(StageFinalizing), instance.Stage)

	// the failed attempt can be retried
	bridge.sendErr = nil
	retry, err := flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
	})
	require.NoError(t, err)
	assert.True(t, retry.Success)
}

func TestInvoiceFlow_Finalize_SuccessCompletesProjectAndApprovesATA(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.offers["p1"] = []store.Offer{
		{ID: "o1", ProjectID: "p1", Title: "Badrumsrenovering", AmountOre: 25000000, Status: store.OfferAccepted},
	}
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{ID: "c1", ProjectID: "p1", Title: "Extra eluttag", AmountOre: 450000, Status: store.ChangeOrderDraft},
		{ID: "c2", ProjectID: "p1", Title: "Flytt av vägg", AmountOre: 1200000, Status: store.ChangeOrderApproved},
	}
	bridge := &fakeBridge{}
	flow := NewInvoiceFlow(fs, bridge)

	_, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)
	completeChecklist(t, fs, store.WorkflowKindInvoice, "p1")

	result, err := flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
		Message:   "Hej! Här kommer fakturan.",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.NotEmpty(t, result.InvoiceID)
	assert.NotEmpty(t, result.PDFRef)

	require.Len(t, fs.invoices, 1)
	invoice := fs.invoices[0]
	assert.Equal(t, "anna@example.se", invoice.Recipient)
	assert.Equal(t, int64(25000000+1200000), invoice.TotalOre)
	require.NotNil(t, invoice.SentAt)

	assert.Equal(t, store.ProjectCompleted, fs.projects["p1"].Status)
	assert.Equal(t, store.ChangeOrderApprovedByInvoicing, fs.changeOrders["p1"][0].Status)
	assert.Equal(t, store.ChangeOrderApproved, fs.changeOrders["p1"][1].Status)

	instance, _, _ := fs.LatestWorkflowInstance(context.Background(), store.WorkflowKindInvoice, "p1")
	assert.Equal(t, string(StageDone), instance.Stage)
	require.NotNil(t, instance.FinalizedAt)

	require.Len(t, bridge.sent, 1)
	assert.Equal(t, result.PDFRef, bridge.sent[0].AttachmentRef)

	// done is immutable: a second finalize is rejected outright
	_, err = flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
	})
	require.Error(t, err)
}

func TestInvoiceFlow_Finalize_PolicyOffKeepsDraftOrders(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{ID: "c1", ProjectID: "p1", Title: "Extra eluttag", AmountOre: 450000, Status: store.ChangeOrderDraft},
	}
	bridge := &fakeBridge{}
	flow := NewInvoiceFlow(fs, bridge)
	flow.ApproveChangeOrdersOnInvoice = false

	_, err := flow.PrepareDraft(context.Background(), "token", "p1")
	require.NoError(t, err)
	completeChecklist(t, fs, store.WorkflowKindInvoice, "p1")

	result, err := flow.Finalize(context.Background(), "token", FinalizeRequest{
		SubjectID: "p1",
		Recipient: "anna@example.se",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, store.ChangeOrderDraft, fs.changeOrders["p1"][0].Status)
}

func TestChangeOrderFlow_PrepareAndSend(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	fs.changeOrders["p1"] = []store.ChangeOrder{
		{
			ID:          "c1",
			ProjectID:   "p1",
			Title:       "Extra eluttag i garage",
			Description: "Montering av fyra extra eluttag enligt önskemål.",
			AmountOre:   450000,
			Status:      store.ChangeOrderDraft,
		},
	}
	bridge := &fakeBridge{}
	flow := NewChangeOrderFlow(fs, bridge)

	draft, err := flow.PrepareDraft(context.Background(), "token", "p1", "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, draft.DraftRef)
	assert.Contains(t, bridge.lastDoc.Body, "Extra eluttag i garage")

	// checklist gate holds for ÄTA too
	blocked, err := flow.Send(context.Background(), "token", "p1", FinalizeRequest{
		SubjectID: "c1",
		Recipient: "anna@example.se",
	})
	require.NoError(t, err)
	assert.False(t, blocked.Success)

	completeChecklist(t, fs, store.WorkflowKindChangeOrder, "c1")

	result, err := flow.Send(context.Background(), "token", "p1", FinalizeRequest{
		SubjectID: "c1",
		Recipient: "anna@example.se",
		Message:   "Hej! Här är ÄTA-underlaget för godkännande.",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, store.ChangeOrderSent, fs.changeOrders["p1"][0].Status)
	instance, _, _ := fs.LatestWorkflowInstance(context.Background(), store.WorkflowKindChangeOrder, "c1")
	assert.Equal(t, string(StageDone), instance.Stage)
}

func TestChangeOrderFlow_UnknownOrder(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	seedProject(fs)
	flow := NewChangeOrderFlow(fs, &fakeBridge{})

	_, err := flow.PrepareDraft(context.Background(), "token", "p1", "missing")
	require.Error(t, err)
}
