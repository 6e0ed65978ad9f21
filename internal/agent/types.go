package agent

import (
	"time"

	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/tools"
)

// AgentRequest represents one user turn handed to the agent
type AgentRequest struct {
	// SystemPrompt is the system prompt to set context
	SystemPrompt string

	// ContextBlock is the briefing assembled for this invocation
	ContextBlock string

	// History is the conversation so far, newest last. The final entry
	// is the user message that triggered this turn.
	History []llm.Message

	// ExecContext carries the caller's identity and delegated token
	ExecContext tools.ExecutionContext
}

// AgentResult represents the result from an agent execution
type AgentResult struct {
	// Content is the final text response from the agent
	Content string

	// ToolCalls contains a record of all tool calls made during execution
	ToolCalls []ToolCallRecord

	// Turns is the number of LLM calls made
	Turns int

	// Exhausted is set when the turn cap was reached and Content holds
	// the fallback message instead of a model answer
	Exhausted bool
}

// ToolCallRecord records a single tool call and its result
type ToolCallRecord struct {
	// ToolName is the name of the tool that was called
	ToolName string

	// Arguments is the JSON arguments passed to the tool
	Arguments string

	// Result is the output from the tool
	Result string

	// IsError indicates if the tool execution resulted in an error
	IsError bool

	// Gated indicates the tool required confirmation
	Gated bool

	// Refused indicates the call was held back by the safety policy
	Refused bool
}

// GatedActionRecord is the pending proposal for one conversation: the
// gated tool call the agent wants to make and is waiting on the user to
// confirm. At most one exists per conversation at a time.
type GatedActionRecord struct {
	ToolName   string    `json:"tool_name"`
	Arguments  string    `json:"arguments"`
	ProposedAt time.Time `json:"proposed_at"`
}
