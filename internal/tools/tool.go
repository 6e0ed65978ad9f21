package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Safety classifies what a tool is allowed to do without the user's
// explicit confirmation. SAFE tools only read or stage internal drafts;
// GATED tools have effects visible outside the system (emails, bookings,
// finalized documents) and must never run unconfirmed.
type Safety string

const (
	SafetySafe  Safety = "SAFE"
	SafetyGated Safety = "GATED"
)

// ExecutionContext carries the per-invocation identity a tool needs.
// It is built fresh for every agent turn and never cached.
type ExecutionContext struct {
	UserID         string
	CompanyID      string
	ConversationID string
	DelegatedToken string
}

// ToolResult is what a tool hands back to the model. Failures travel as
// content with IsError set so the model can react; a non-nil Go error is
// reserved for broken plumbing.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool is one capability the agent can call.
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON Schema for the tool's parameters
	Parameters() json.RawMessage

	// Safety classifies the tool for the confirmation policy
	Safety() Safety

	// Execute runs the tool with the given arguments and returns the result
	Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error)
}

func errorResult(format string, args ...any) ToolResult {
	return ToolResult{
		Content: fmt.Sprintf(format, args...),
		IsError: true,
	}
}

func jsonResult(v any) ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("failed to encode tool result: %v", err)
	}
	return ToolResult{Content: string(data)}
}

// CheckRequiredArgs verifies that every field the tool's schema marks as
// required is present and non-empty before the tool runs. Model-supplied
// arguments are untrusted input.
func CheckRequiredArgs(parameters, args json.RawMessage) error {
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(parameters, &schema); err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	if len(schema.Required) == 0 {
		return nil
	}

	var supplied map[string]json.RawMessage
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, &supplied); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	for _, field := range schema.Required {
		raw, ok := supplied[field]
		if !ok {
			return fmt.Errorf("missing required argument %q", field)
		}
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil && asString == "" {
			return fmt.Errorf("required argument %q is empty", field)
		}
	}
	return nil
}
