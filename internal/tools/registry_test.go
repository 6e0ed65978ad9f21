package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	safety Safety
	params json.RawMessage
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool" }
func (s *stubTool) Safety() Safety      { return s.safety }

func (s *stubTool) Parameters() json.RawMessage {
	if s.params != nil {
		return s.params
	}
	return json.RawMessage(`{"type": "object", "properties": {}, "required": []}`)
}

func (s *stubTool) Execute(_ context.Context, _ ExecutionContext, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "ok"}, nil
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "list_projects", safety: SafetySafe}))

	err := r.Register(&stubTool{name: "list_projects", safety: SafetySafe})
	require.Error(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_GetAndList(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "send_email", safety: SafetyGated}))
	require.NoError(t, r.Register(&stubTool{name: "check_weather", safety: SafetySafe}))

	tool, ok := r.Get("send_email")
	require.True(t, ok)
	assert.Equal(t, SafetyGated, tool.Safety())

	_, ok = r.Get("unknown_tool")
	assert.False(t, ok)

	assert.Equal(t, []string{"check_weather", "send_email"}, r.List())
}

func TestRegistry_ToOpenAIFormat(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "b_tool", safety: SafetySafe}))
	require.NoError(t, r.Register(&stubTool{name: "a_tool", safety: SafetySafe}))

	defs := r.ToOpenAIFormat()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "a_tool", defs[0].Function.Name)
	assert.Equal(t, "b_tool", defs[1].Function.Name)
	assert.NotEmpty(t, defs[0].Function.Description)
	assert.NotNil(t, defs[0].Function.Parameters)
}

func TestCheckRequiredArgs(t *testing.T) {
	t.Parallel()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string"},
			"amount_sek": {"type": "number"}
		},
		"required": ["project_id", "amount_sek"]
	}`)

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{name: "all present", args: `{"project_id": "p1", "amount_sek": 100}`, wantErr: false},
		{name: "missing field", args: `{"project_id": "p1"}`, wantErr: true},
		{name: "empty string", args: `{"project_id": "", "amount_sek": 100}`, wantErr: true},
		{name: "not an object", args: `[1, 2]`, wantErr: true},
		{name: "empty args", args: ``, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckRequiredArgs(schema, json.RawMessage(tt.args))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckRequiredArgs_NoRequiredFields(t *testing.T) {
	t.Parallel()

	schema := json.RawMessage(`{"type": "object", "properties": {}}`)
	require.NoError(t, CheckRequiredArgs(schema, nil))
}

func TestSafetyClassification(t *testing.T) {
	t.Parallel()

	safe := []Tool{
		NewCreateCustomerTool(nil),
		NewStartProjectTool(nil),
		NewListProjectsTool(nil),
		NewCreateOfferTool(nil),
		NewRecordExpenseTool(nil),
		NewSearchKnowledgeTool(nil),
		NewCheckWeatherTool(""),
		NewCreateTaskTool(nil),
		NewDraftInvoiceTool(nil),
		NewDraftChangeOrderTool(nil, nil),
	}
	for _, tool := range safe {
		assert.Equal(t, SafetySafe, tool.Safety(), tool.Name())
	}

	gated := []Tool{
		NewSendEmailTool(nil),
		NewBookCalendarEventTool(nil),
		NewFinalizeInvoiceTool(nil),
		NewSendChangeOrderTool(nil),
	}
	for _, tool := range gated {
		assert.Equal(t, SafetyGated, tool.Safety(), tool.Name())
	}
}
