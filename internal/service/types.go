package service

import (
	"github.com/byggpilot/byggpilot/internal/agent"
	"github.com/byggpilot/byggpilot/internal/llm"
)

// ChatRequest is one user turn arriving from the API. History carries the
// conversation so far; the Message field is appended as the newest entry
// before the agent runs.
type ChatRequest struct {
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	CompanyID      string        `json:"company_id"`
	DelegatedToken string        `json:"-"`
	Message        string        `json:"message"`
	History        []llm.Message `json:"history,omitempty"`
}

// ChatReply is what the API returns for one turn. PendingAction is set
// when the agent proposed a gated tool call and is waiting for the user
// to confirm it on the next turn.
type ChatReply struct {
	ConversationID string                   `json:"conversation_id"`
	Reply          string                   `json:"reply"`
	ToolCalls      []agent.ToolCallRecord   `json:"tool_calls,omitempty"`
	Turns          int                      `json:"turns"`
	Exhausted      bool                     `json:"exhausted,omitempty"`
	PendingAction  *agent.GatedActionRecord `json:"pending_action,omitempty"`
}
