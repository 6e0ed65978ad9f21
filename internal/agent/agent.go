package agent

import (
	"context"

	"github.com/byggpilot/byggpilot/internal/llm"
	"github.com/byggpilot/byggpilot/internal/tools"
)

// Agent defines the interface for an agent that can execute tasks
type Agent interface {
	// Execute runs the agent with the given request
	Execute(ctx context.Context, req AgentRequest) (*AgentResult, error)

	// Close releases any resources held by the agent
	Close() error
}

// LLMAgent implements the Agent interface using an LLM with tool calling
type LLMAgent struct {
	orchestrator *Orchestrator
}

// NewLLMAgent creates a new LLM-based agent
func NewLLMAgent(client *llm.Client, registry *tools.Registry, policy *SafetyPolicy, maxTurns, historyWindow int) *LLMAgent {
	return &LLMAgent{
		orchestrator: NewOrchestrator(client, registry, policy, maxTurns, historyWindow),
	}
}

// Execute runs the agent with the given request
func (a *LLMAgent) Execute(ctx context.Context, req AgentRequest) (*AgentResult, error) {
	return a.orchestrator.Run(ctx, req)
}

// Close releases any resources held by the agent
func (a *LLMAgent) Close() error {
	// No resources to release currently
	return nil
}
