package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byggpilot/byggpilot/internal/agent"
	"github.com/byggpilot/byggpilot/internal/config"
	"github.com/byggpilot/byggpilot/internal/jobs"
	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/internal/workflow"
)

type fakeAgent struct {
	lastReq agent.AgentRequest
	result  *agent.AgentResult
	err     error
}

func (f *fakeAgent) Execute(_ context.Context, req agent.AgentRequest) (*agent.AgentResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeBriefer struct {
	block string
	err   error
}

func (f *fakeBriefer) Build(context.Context, string, string) (string, error) {
	return f.block, f.err
}

type fakePending struct {
	record agent.GatedActionRecord
	ok     bool
}

func (f *fakePending) Pending(string) (agent.GatedActionRecord, bool) {
	return f.record, f.ok
}

type fakeInvoiceFlow struct {
	draftToken     string
	draftProjectID string
	draft          workflow.DraftResult
	draftErr       error

	checklistItem string
	checklistDone bool
	instance      store.WorkflowInstance

	finalizeToken string
	finalizeReq   workflow.FinalizeRequest
	finalize      workflow.FinalizeResult
	finalizeErr   error
}

func (f *fakeInvoiceFlow) PrepareDraft(_ context.Context, token, projectID string) (workflow.DraftResult, error) {
	f.draftToken = token
	f.draftProjectID = projectID
	return f.draft, f.draftErr
}

func (f *fakeInvoiceFlow) SetChecklistItem(_ context.Context, projectID, item string, done bool) (store.WorkflowInstance, error) {
	f.draftProjectID = projectID
	f.checklistItem = item
	f.checklistDone = done
	return f.instance, nil
}

func (f *fakeInvoiceFlow) Finalize(_ context.Context, token string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error) {
	f.finalizeToken = token
	f.finalizeReq = req
	return f.finalize, f.finalizeErr
}

type fakeChangeOrderFlow struct {
	token         string
	projectID     string
	changeOrderID string
	draft         workflow.DraftResult
	err           error
}

func (f *fakeChangeOrderFlow) PrepareDraft(_ context.Context, token, projectID, changeOrderID string) (workflow.DraftResult, error) {
	f.token = token
	f.projectID = projectID
	f.changeOrderID = changeOrderID
	return f.draft, f.err
}

type fakeDispatcher struct {
	requests []jobs.EnqueueRequest
	err      error
}

func (f *fakeDispatcher) DispatchOrRun(_ context.Context, req jobs.EnqueueRequest) (*jobs.GenerationJob, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &jobs.GenerationJob{
		ID:        "job-1",
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    jobs.StatusPending,
	}, nil
}

type fakeServiceStore struct {
	stale    []store.WorkflowInstance
	staleErr error
	snippets []store.KnowledgeSnippet
}

func (f *fakeServiceStore) ListStaleWorkflowInstances(context.Context, time.Time) ([]store.WorkflowInstance, error) {
	return f.stale, f.staleErr
}

func (f *fakeServiceStore) ListSnippets(context.Context) ([]store.KnowledgeSnippet, error) {
	return f.snippets, nil
}

type serviceFixture struct {
	svc          *AssistantService
	agent        *fakeAgent
	briefer      *fakeBriefer
	pending      *fakePending
	invoices     *fakeInvoiceFlow
	changeOrders *fakeChangeOrderFlow
	dispatcher   *fakeDispatcher
	store        *fakeServiceStore
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		agent: &fakeAgent{
			result: &agent.AgentResult{Content: "Klart!", Turns: 1},
		},
		briefer:      &fakeBriefer{block: "## Company\nBygg AB"},
		pending:      &fakePending{},
		invoices:     &fakeInvoiceFlow{},
		changeOrders: &fakeChangeOrderFlow{},
		dispatcher:   &fakeDispatcher{},
		store:        &fakeServiceStore{},
	}
	cfg := &config.Config{
		Workspace: config.WorkspaceConfig{ServiceToken: "svc-token"},
		Reminder:  config.ReminderConfig{StaleDraftAgeDays: 7},
	}
	f.svc = NewAssistantService(cfg, f.agent, f.briefer, f.pending, f.invoices, f.changeOrders, f.dispatcher, f.store)
	return f
}

func chatRequest() ChatRequest {
	return ChatRequest{
		ConversationID: "conv-1",
		UserID:         "user-1",
		CompanyID:      "company-1",
		DelegatedToken: "user-token",
		Message:        "Hur ligger projekten till?",
	}
}

func TestRunAgentTurnValidation(t *testing.T) {
	f := newServiceFixture()

	req := chatRequest()
	req.CompanyID = ""
	_, err := f.svc.RunAgentTurn(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))

	req = chatRequest()
	req.Message = ""
	_, err = f.svc.RunAgentTurn(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestRunAgentTurnAssemblesRequest(t *testing.T) {
	f := newServiceFixture()

	req := chatRequest()
	req.History = []llm.Message{
		{Role: "user", Content: "Hej"},
		{Role: "assistant", Content: "Hej! Vad kan jag hjälpa till med?"},
	}

	reply, err := f.svc.RunAgentTurn(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, SystemPrompt, f.agent.lastReq.SystemPrompt)
	assert.Equal(t, "## Company\nBygg AB", f.agent.lastReq.ContextBlock)
	require.Len(t, f.agent.lastReq.History, 3)
	assert.Equal(t, "Hur ligger projekten till?", f.agent.lastReq.History[2].Content)
	assert.Equal(t, "user", f.agent.lastReq.History[2].Role)

	assert.Equal(t, "user-1", f.agent.lastReq.ExecContext.UserID)
	assert.Equal(t, "company-1", f.agent.lastReq.ExecContext.CompanyID)
	assert.Equal(t, "conv-1", f.agent.lastReq.ExecContext.ConversationID)
	assert.Equal(t, "user-token", f.agent.lastReq.ExecContext.DelegatedToken)

	assert.Equal(t, "conv-1", reply.ConversationID)
	assert.Equal(t, "Klart!", reply.Reply)
	assert.Equal(t, 1, reply.Turns)
	assert.Nil(t, reply.PendingAction)
}

func TestRunAgentTurnSurfacesPendingAction(t *testing.T) {
	f := newServiceFixture()
	f.pending.record = agent.GatedActionRecord{ToolName: "send_email", Arguments: `{"to":"kund@example.se"}`}
	f.pending.ok = true

	reply, err := f.svc.RunAgentTurn(context.Background(), chatRequest())
	require.NoError(t, err)
	require.NotNil(t, reply.PendingAction)
	assert.Equal(t, "send_email", reply.PendingAction.ToolName)
}

func TestRunAgentTurnBriefingFailure(t *testing.T) {
	f := newServiceFixture()
	f.briefer.err = errors.New("db locked")

	_, err := f.svc.RunAgentTurn(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrStorage))
}

func TestRunAgentTurnAgentFailure(t *testing.T) {
	f := newServiceFixture()
	f.agent.err = errors.New("upstream 500")

	_, err := f.svc.RunAgentTurn(context.Background(), chatRequest())
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrExternalService))
}

func TestPrepareInvoiceDraftRequiresToken(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.PrepareInvoiceDraft(context.Background(), "", "project-1")
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrAuthorization))
}

func TestPrepareInvoiceDraftPassesThrough(t *testing.T) {
	f := newServiceFixture()
	f.invoices.draft = workflow.DraftResult{
		InstanceID: "wf-1",
		DraftRef:   "doc-1",
		DraftLink:  "https://docs.example/doc-1",
		Warnings:   []string{"Projektet saknar accepterad offert."},
	}

	ret, err := f.svc.PrepareInvoiceDraft(context.Background(), "user-token", "project-1")
	require.NoError(t, err)
	assert.Equal(t, "user-token", f.invoices.draftToken)
	assert.Equal(t, "project-1", f.invoices.draftProjectID)
	assert.Equal(t, "wf-1", ret.InstanceID)
	assert.Len(t, ret.Warnings, 1)
}

func TestSetInvoiceChecklist(t *testing.T) {
	f := newServiceFixture()
	f.invoices.instance = store.WorkflowInstance{ID: "wf-1", Checklist: map[string]bool{workflow.ChecklistAmountsVerified: true}}

	instance, err := f.svc.SetInvoiceChecklist(context.Background(), "project-1", workflow.ChecklistAmountsVerified, true)
	require.NoError(t, err)
	assert.Equal(t, workflow.ChecklistAmountsVerified, f.invoices.checklistItem)
	assert.True(t, f.invoices.checklistDone)
	assert.True(t, instance.Checklist[workflow.ChecklistAmountsVerified])

	_, err = f.svc.SetInvoiceChecklist(context.Background(), "", workflow.ChecklistAmountsVerified, true)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestFinalizeInvoiceRequiresToken(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.FinalizeInvoice(context.Background(), "", workflow.FinalizeRequest{SubjectID: "project-1"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrAuthorization))
}

func TestFinalizeInvoiceChecklistRefusalIsNotAnError(t *testing.T) {
	f := newServiceFixture()
	f.invoices.finalize = workflow.FinalizeResult{
		Success: false,
		Message: "Checklistan är inte klar.",
	}

	ret, err := f.svc.FinalizeInvoice(context.Background(), "user-token", workflow.FinalizeRequest{SubjectID: "project-1", Recipient: "kund@example.se"})
	require.NoError(t, err)
	assert.False(t, ret.Success)
	assert.Equal(t, "project-1", f.invoices.finalizeReq.SubjectID)
}

func TestRequestInvoiceDraftRefresh(t *testing.T) {
	f := newServiceFixture()

	job, err := f.svc.RequestInvoiceDraftRefresh(context.Background(), "project-1", "user-1")
	require.NoError(t, err)
	require.Len(t, f.dispatcher.requests, 1)

	req := f.dispatcher.requests[0]
	assert.Equal(t, "invoice_draft|project-1", req.Payload.DedupeKey())
	assert.Equal(t, jobs.KindInvoiceDraft, req.Payload.Kind)
	assert.Equal(t, "project-1", req.Payload.SubjectID)
	assert.Equal(t, "user-1", req.Payload.RequestedBy)
	assert.Equal(t, jobs.StatusPending, job.Status)
}

func TestRemindStaleDraftsDispatchesInvoiceRefreshes(t *testing.T) {
	f := newServiceFixture()
	f.store.stale = []store.WorkflowInstance{
		{ID: "wf-1", Kind: store.WorkflowKindInvoice, SubjectID: "project-1", UpdatedAt: time.Now().AddDate(0, 0, -10)},
		{ID: "wf-2", Kind: store.WorkflowKindChangeOrder, SubjectID: "co-1", UpdatedAt: time.Now().AddDate(0, 0, -10)},
	}

	err := f.svc.RemindStaleDrafts(context.Background())
	require.NoError(t, err)

	require.Len(t, f.dispatcher.requests, 1)
	req := f.dispatcher.requests[0]
	assert.Equal(t, "reminder", req.Source)
	assert.Equal(t, "invoice_draft|project-1", req.Payload.DedupeKey())
	assert.Equal(t, "reminder", req.Payload.RequestedBy)
}

func TestExecuteGenerationJobInvoiceDraft(t *testing.T) {
	f := newServiceFixture()
	f.invoices.draft = workflow.DraftResult{DraftLink: "https://docs.example/doc-1"}

	err := f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{Kind: jobs.KindInvoiceDraft, SubjectID: "project-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "svc-token", f.invoices.draftToken)
	assert.Equal(t, "project-1", f.invoices.draftProjectID)
}

func TestExecuteGenerationJobRequiresServiceToken(t *testing.T) {
	f := newServiceFixture()
	f.svc.cfg.Workspace.ServiceToken = ""

	err := f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{Kind: jobs.KindInvoiceDraft, SubjectID: "project-1"},
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConfig))
}

func TestExecuteGenerationJobChangeOrder(t *testing.T) {
	f := newServiceFixture()

	err := f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-2",
		Payload: jobs.JobPayload{Kind: jobs.KindChangeOrderPDF, SubjectID: "co-1", ProjectID: "project-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "svc-token", f.changeOrders.token)
	assert.Equal(t, "project-1", f.changeOrders.projectID)
	assert.Equal(t, "co-1", f.changeOrders.changeOrderID)

	err = f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-3",
		Payload: jobs.JobPayload{Kind: jobs.KindChangeOrderPDF, SubjectID: "co-1"},
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}

func TestExecuteGenerationJobKnowledgeIndex(t *testing.T) {
	f := newServiceFixture()
	f.store.snippets = []store.KnowledgeSnippet{{ID: "kb-1"}, {ID: "kb-2"}}

	err := f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-4",
		Payload: jobs.JobPayload{Kind: jobs.KindKnowledgeIndex},
	})
	require.NoError(t, err)
}

func TestExecuteGenerationJobUnknownKind(t *testing.T) {
	f := newServiceFixture()

	err := f.svc.ExecuteGenerationJob(context.Background(), &jobs.GenerationJob{
		ID:      "job-5",
		Payload: jobs.JobPayload{Kind: "mystery"},
	})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrValidation))
}
