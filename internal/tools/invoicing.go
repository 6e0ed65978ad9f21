package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/byggpilot/byggpilot/internal/store"
	"github.com/byggpilot/byggpilot/internal/workflow"
)

// InvoiceFlows is implemented by the invoice workflow.
type InvoiceFlows interface {
	PrepareDraft(ctx context.Context, token, projectID string) (workflow.DraftResult, error)
	Finalize(ctx context.Context, token string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error)
}

// ChangeOrderFlows is implemented by the ÄTA workflow.
type ChangeOrderFlows interface {
	PrepareDraft(ctx context.Context, token, projectID, changeOrderID string) (workflow.DraftResult, error)
	Send(ctx context.Context, token, projectID string, req workflow.FinalizeRequest) (workflow.FinalizeResult, error)
}

// ---- draft_invoice ----

type DraftInvoiceTool struct {
	flow InvoiceFlows
}

func NewDraftInvoiceTool(flow InvoiceFlows) *DraftInvoiceTool {
	return &DraftInvoiceTool{flow: flow}
}

func (t *DraftInvoiceTool) Name() string   { return "draft_invoice" }
func (t *DraftInvoiceTool) Safety() Safety { return SafetySafe }

func (t *DraftInvoiceTool) Description() string {
	return "Create an editable invoice draft for a project from its accepted offer, approved change orders and logged expenses. The draft stays private until finalize_invoice is used."
}

func (t *DraftInvoiceTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project to invoice"}
		},
		"required": ["project_id"]
	}`)
}

func (t *DraftInvoiceTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	result, err := t.flow.PrepareDraft(ctx, execCtx.DelegatedToken, input.ProjectID)
	if err != nil {
		return errorResult("failed to prepare invoice draft: %v", err), nil
	}
	return jsonResult(result), nil
}

// ---- finalize_invoice ----

type FinalizeInvoiceTool struct {
	flow InvoiceFlows
}

func NewFinalizeInvoiceTool(flow InvoiceFlows) *FinalizeInvoiceTool {
	return &FinalizeInvoiceTool{flow: flow}
}

func (t *FinalizeInvoiceTool) Name() string   { return "finalize_invoice" }
func (t *FinalizeInvoiceTool) Safety() Safety { return SafetyGated }

func (t *FinalizeInvoiceTool) Description() string {
	return "Export the reviewed invoice draft to PDF and email it to the customer. This is irreversible and must be confirmed by the user first."
}

func (t *FinalizeInvoiceTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project whose invoice should be sent"},
			"recipient": {"type": "string", "description": "Email address of the invoice recipient"},
			"message": {"type": "string", "description": "Short email body accompanying the invoice"}
		},
		"required": ["project_id", "recipient"]
	}`)
}

func (t *FinalizeInvoiceTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if strings.TrimSpace(input.Message) == "" {
		input.Message = "Hej! Bifogat finns fakturan för projektet. Hör av dig vid frågor."
	}

	result, err := t.flow.Finalize(ctx, execCtx.DelegatedToken, workflow.FinalizeRequest{
		SubjectID: input.ProjectID,
		Recipient: input.Recipient,
		Message:   input.Message,
	})
	if err != nil {
		return errorResult("failed to finalize invoice: %v", err), nil
	}
	if !result.Success {
		return ToolResult{Content: result.Message, IsError: true}, nil
	}
	return jsonResult(result), nil
}

// ---- draft_change_order ----

type DraftChangeOrderTool struct {
	store BusinessStore
	flow  ChangeOrderFlows
}

func NewDraftChangeOrderTool(s BusinessStore, flow ChangeOrderFlows) *DraftChangeOrderTool {
	return &DraftChangeOrderTool{store: s, flow: flow}
}

func (t *DraftChangeOrderTool) Name() string   { return "draft_change_order" }
func (t *DraftChangeOrderTool) Safety() Safety { return SafetySafe }

func (t *DraftChangeOrderTool) Description() string {
	return "Record a change/addition order (ÄTA) on a project and create an editable proposal document. Nothing is sent to the customer until send_change_order is used."
}

func (t *DraftChangeOrderTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project the ÄTA belongs to"},
			"title": {"type": "string", "description": "Short name of the change, e.g. 'Extra eluttag i garage'"},
			"description": {"type": "string", "description": "What the change covers and why"},
			"amount_sek": {"type": "number", "description": "Price of the change in SEK excluding VAT"}
		},
		"required": ["project_id", "title", "amount_sek"]
	}`)
}

func (t *DraftChangeOrderTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID   string  `json:"project_id"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		AmountSEK   float64 `json:"amount_sek"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if input.AmountSEK <= 0 {
		return errorResult("amount_sek must be positive"), nil
	}

	order := store.ChangeOrder{
		ProjectID:   input.ProjectID,
		Title:       input.Title,
		Description: input.Description,
		AmountOre:   oreFromSEK(input.AmountSEK),
		Status:      store.ChangeOrderDraft,
	}
	if err := t.store.CreateChangeOrder(ctx, &order); err != nil {
		return errorResult("failed to record change order: %v", err), nil
	}

	draft, err := t.flow.PrepareDraft(ctx, execCtx.DelegatedToken, input.ProjectID, order.ID)
	if err != nil {
		return errorResult("change order %s recorded but drafting the document failed: %v", order.ID, err), nil
	}

	return jsonResult(struct {
		ChangeOrder store.ChangeOrder    `json:"change_order"`
		Draft       workflow.DraftResult `json:"draft"`
	}{ChangeOrder: order, Draft: draft}), nil
}

// ---- send_change_order ----

type SendChangeOrderTool struct {
	flow ChangeOrderFlows
}

func NewSendChangeOrderTool(flow ChangeOrderFlows) *SendChangeOrderTool {
	return &SendChangeOrderTool{flow: flow}
}

func (t *SendChangeOrderTool) Name() string   { return "send_change_order" }
func (t *SendChangeOrderTool) Safety() Safety { return SafetyGated }

func (t *SendChangeOrderTool) Description() string {
	return "Export the reviewed ÄTA proposal to PDF and email it to the customer for approval. This leaves the system and must be confirmed by the user first."
}

func (t *SendChangeOrderTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project the ÄTA belongs to"},
			"change_order_id": {"type": "string", "description": "ID of the change order to send"},
			"recipient": {"type": "string", "description": "Email address of the customer"},
			"message": {"type": "string", "description": "Short email body accompanying the proposal"}
		},
		"required": ["project_id", "change_order_id", "recipient"]
	}`)
}

func (t *SendChangeOrderTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID     string `json:"project_id"`
		ChangeOrderID string `json:"change_order_id"`
		Recipient     string `json:"recipient"`
		Message       string `json:"message"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if strings.TrimSpace(input.Message) == "" {
		input.Message = "Hej! Bifogat finns ett ÄTA-underlag för godkännande. Hör av dig vid frågor."
	}

	result, err := t.flow.Send(ctx, execCtx.DelegatedToken, input.ProjectID, workflow.FinalizeRequest{
		SubjectID: input.ChangeOrderID,
		Recipient: input.Recipient,
		Message:   input.Message,
	})
	if err != nil {
		return errorResult("failed to send change order: %v", err), nil
	}
	if !result.Success {
		return ToolResult{Content: result.Message, IsError: true}, nil
	}
	return jsonResult(result), nil
}
