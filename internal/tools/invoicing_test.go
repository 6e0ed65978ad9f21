package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/internal/workflow"
)

type fakeInvoiceFlow struct {
	draftErr     error
	finalizeErr  error
	finalize     workflow.FinalizeResult
	lastFinalize workflow.FinalizeRequest
	lastToken    string
}

func (f *fakeInvoiceFlow) PrepareDraft(_ context.Context, token, projectID string) (workflow.DraftResult, error) {
	if f.draftErr != nil {
		return workflow.DraftResult{}, f.draftErr
	}
	f.lastToken = token
	return workflow.DraftResult{
		InstanceID: "wf-1",
		DraftRef:   "doc-1",
		DraftLink:  "https://docs.example/doc-1",
		Warnings:   []string{"Projektet saknar accepterad offert – kontrollera beloppen manuellt."},
	}, nil
}

func (f *fakeInvoiceFlow) Finalize(_ context.Context, token string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error) {
	if f.finalizeErr != nil {
		return workflow.FinalizeResult{}, f.finalizeErr
	}
	f.lastToken = token
	f.lastFinalize = req
	return f.finalize, nil
}

type fakeChangeOrderFlow struct {
	drafted  []string
	sent     []workflow.FinalizeRequest
	sendResp workflow.FinalizeResult
}

func (f *fakeChangeOrderFlow) PrepareDraft(_ context.Context, _, _, changeOrderID string) (workflow.DraftResult, error) {
	f.drafted = append(f.drafted, changeOrderID)
	return workflow.DraftResult{InstanceID: "wf-2", DraftRef: "doc-2", DraftLink: "https://docs.example/doc-2"}, nil
}

func (f *fakeChangeOrderFlow) Send(_ context.Context, _, _ string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error) {
	f.sent = append(f.sent, req)
	return f.sendResp, nil
}

func TestDraftInvoiceTool_ReturnsLinkAndWarnings(t *testing.T) {
	t.Parallel()

	flow := &fakeInvoiceFlow{}
	tool := NewDraftInvoiceTool(flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(`{"project_id": "p1"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "token-1", flow.lastToken)

	var draft workflow.DraftResult
	require.NoError(t, json.Unmarshal([]byte(result.Content), &draft))
	assert.Equal(t, "doc-1", draft.DraftRef)
	require.Len(t, draft.Warnings, 1)
}

func TestFinalizeInvoiceTool_SuccessAndDefaultMessage(t *testing.T) {
	t.Parallel()

	flow := &fakeInvoiceFlow{
		finalize: workflow.FinalizeResult{Success: true, Message: "Fakturan har skickats.", InvoiceID: "inv-1"},
	}
	tool := NewFinalizeInvoiceTool(flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "recipient": "anna@example.se"}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "p1", flow.lastFinalize.SubjectID)
	assert.NotEmpty(t, flow.lastFinalize.Message)
}

func TestFinalizeInvoiceTool_BlockedChecklistSurfacesAsError(t *testing.T) {
	t.Parallel()

	flow := &fakeInvoiceFlow{
		finalize: workflow.FinalizeResult{Success: false, Message: "Checklistan är inte klar."},
	}
	tool := NewFinalizeInvoiceTool(flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "recipient": "anna@example.se"}`,
	))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Checklistan")
}

func TestDraftChangeOrderTool_RecordsOrderAndDrafts(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	flow := &fakeChangeOrderFlow{}
	tool := NewDraftChangeOrderTool(fs, flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "title": "Extra eluttag", "description": "Fyra uttag i garaget", "amount_sek": 4500}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, fs.changeOrders, 1)
	assert.Equal(t, store.ChangeOrderDraft, fs.changeOrders[0].Status)
	assert.Equal(t, int64(450000), fs.changeOrders[0].AmountOre)
	require.Len(t, flow.drafted, 1)
	assert.Equal(t, fs.changeOrders[0].ID, flow.drafted[0])
}

func TestSendChangeOrderTool_Success(t *testing.T) {
	t.Parallel()

	flow := &fakeChangeOrderFlow{
		sendResp: workflow.FinalizeResult{Success: true, Message: "ÄTA-underlaget har skickats."},
	}
	tool := NewSendChangeOrderTool(flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "change_order_id": "c1", "recipient": "anna@example.se"}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, flow.sent, 1)
	assert.Equal(t, "c1", flow.sent[0].SubjectID)
}

func TestDraftInvoiceTool_FlowErrorIsToolError(t *testing.T) {
	t.Parallel()

	flow := &fakeInvoiceFlow{draftErr: fmt.Errorf("project p9 not found")}
	tool := NewDraftInvoiceTool(flow)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(`{"project_id": "p9"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "p9")
}
