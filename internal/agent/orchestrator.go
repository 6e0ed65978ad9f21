package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/tools"
	"github.com/byggpilot/byggpilot/pkg/log"
)

// FallbackMessage is returned when the turn cap is reached before the
// model produced a final answer.
const FallbackMessage = "Jag hann inte slutföra hela uppgiften i den här omgången. " +
	"Det som redan har utförts är sparat – ställ gärna frågan igen eller dela upp den i mindre steg."

// Orchestrator manages the agent loop for tool calling. Every run gets a
// fresh message window and briefing; the only state carried between turns
// is the safety policy's pending proposal.
type Orchestrator struct {
	client        *llm.Client
	registry      *tools.Registry
	policy        *SafetyPolicy
	maxTurns      int
	historyWindow int
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(client *llm.Client, registry *tools.Registry, policy *SafetyPolicy, maxTurns, historyWindow int) *Orchestrator {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Orchestrator{
		client:        client,
		registry:      registry,
		policy:        policy,
		maxTurns:      maxTurns,
		historyWindow: historyWindow,
	}
}

// Run executes the agent loop for one user turn.
func (o *Orchestrator) Run(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	result := &AgentResult{
		ToolCalls: make([]ToolCallRecord, 0),
	}

	messages := windowHistory(req.History, o.historyWindow)
	if len(messages) == 0 {
		return nil, fmt.Errorf("history must contain at least the user's message")
	}

	// The pending proposal lives or dies on this user message.
	armed, confirmed := o.policy.BeginTurn(req.ExecContext.ConversationID, latestUserContent(messages))

	toolDefs := o.registry.ToOpenAIFormat()

	systemPrompt := req.SystemPrompt
	if req.ContextBlock != "" {
		systemPrompt = systemPrompt + "\n\n" + req.ContextBlock
	}
	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(systemPrompt)

	for i := 0; i < o.maxTurns; i++ {
		result.Turns++

		var resp *llm.ChatResponse
		var err error

		if len(toolDefs) > 0 {
			resp, err = o.client.ChatCompletionWithTools(ctx, messages, toolDefs, opts)
		} else {
			resp, err = o.client.ChatCompletion(ctx, messages, opts)
		}

		if err != nil {
			return nil, fmt.Errorf("LLM call failed at turn %d: %w", i+1, err)
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices in response at turn %d", i+1)
		}

		choice := resp.Choices[0]
		assistantMsg := choice.Message

		switch choice.FinishReason {
		case "stop":
			result.Content = assistantMsg.Content
			return result, nil

		case "tool_calls":
			if len(assistantMsg.ToolCalls) == 0 {
				// finish reason says tool_calls but none given - treat as done
				result.Content = assistantMsg.Content
				return result, nil
			}

			messages = append(messages, assistantMsg)

			// Dispatch in the order the model asked for; each result is
			// appended before the next model call.
			for _, toolCall := range assistantMsg.ToolCalls {
				record := o.executeTool(ctx, req.ExecContext, toolCall, &armed, &confirmed)
				result.ToolCalls = append(result.ToolCalls, record)

				messages = append(messages, llm.Message{
					Role:       "tool",
					Content:    record.Result,
					ToolCallID: toolCall.ID,
				})

				if record.Refused {
					log.Info("Tool %s held for confirmation in conversation %s", record.ToolName, req.ExecContext.ConversationID)
				} else {
					log.Info("Tool %s executed: error=%v", record.ToolName, record.IsError)
				}
			}

		default:
			// Unknown finish reason, treat content as final response
			result.Content = assistantMsg.Content
			return result, nil
		}
	}

	log.Warn("Agent reached turn cap (%d) in conversation %s", o.maxTurns, req.ExecContext.ConversationID)
	result.Content = FallbackMessage
	result.Exhausted = true
	return result, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, execCtx tools.ExecutionContext, toolCall llm.ToolCall, armed *GatedActionRecord, confirmed *bool) ToolCallRecord {
	record := ToolCallRecord{
		ToolName:  toolCall.Function.Name,
		Arguments: toolCall.Function.Arguments,
	}

	tool, exists := o.registry.Get(toolCall.Function.Name)
	if !exists {
		record.Result = fmt.Sprintf("Tool %q not found", toolCall.Function.Name)
		record.IsError = true
		return record
	}

	if tool.Safety() == tools.SafetyGated {
		record.Gated = true
		if !*confirmed || armed.ToolName != tool.Name() || armed.Arguments != toolCall.Function.Arguments {
			// Policy refusal is a normal outcome: propose, and have the
			// model ask the user for the go-ahead. A confirmation covers
			// one exact call; a re-request with different arguments is a
			// new proposal.
			o.policy.Propose(execCtx.ConversationID, tool.Name(), toolCall.Function.Arguments)
			record.Refused = true
			record.Result = fmt.Sprintf(
				"CONFIRMATION_REQUIRED: %q was NOT executed. Describe to the user exactly what the action will do, including recipient and content, and ask them to confirm. The action runs only after the user's next message explicitly approves it.",
				tool.Name(),
			)
			return record
		}
		// a confirmation authorizes exactly one execution
		*confirmed = false
	}

	if err := tools.CheckRequiredArgs(tool.Parameters(), json.RawMessage(toolCall.Function.Arguments)); err != nil {
		record.Result = fmt.Sprintf("Invalid arguments: %v", err)
		record.IsError = true
		return record
	}

	result, err := tool.Execute(ctx, execCtx, json.RawMessage(toolCall.Function.Arguments))
	if err != nil {
		record.Result = fmt.Sprintf("Tool execution error: %v", err)
		record.IsError = true
		return record
	}

	record.Result = result.Content
	record.IsError = result.IsError
	return record
}

// windowHistory keeps the most recent entries. Older turns are dropped,
// not summarized.
func windowHistory(history []llm.Message, window int) []llm.Message {
	if len(history) <= window {
		return append([]llm.Message(nil), history...)
	}
	return append([]llm.Message(nil), history[len(history)-window:]...)
}

func latestUserContent(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// Summarize renders the audit trail for logs.
func (r *AgentResult) Summarize() string {
	if len(r.ToolCalls) == 0 {
		return "no tool calls"
	}
	parts := make([]string, 0, len(r.ToolCalls))
	for _, call := range r.ToolCalls {
		state := "ok"
		switch {
		case call.Refused:
			state = "held"
		case call.IsError:
			state = "error"
		}
		parts = append(parts, fmt.Sprintf("%s=%s", call.ToolName, state))
	}
	return strings.Join(parts, ", ")
}
