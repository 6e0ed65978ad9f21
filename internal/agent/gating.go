package agent

import (
	"sync"
	"time"
)

// SafetyPolicy tracks pending gated-action proposals per conversation and
// decides whether a gated tool call may run. A proposal survives exactly
// until the next user turn: an affirmative arms the matching tool once,
// anything else drops the proposal.
type SafetyPolicy struct {
	classifier ConfirmationClassifier

	mu      sync.Mutex
	pending map[string]GatedActionRecord
}

func NewSafetyPolicy(classifier ConfirmationClassifier) *SafetyPolicy {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &SafetyPolicy{
		classifier: classifier,
		pending:    make(map[string]GatedActionRecord),
	}
}

// Propose records the gated call the agent wants confirmed. It replaces
// any earlier proposal for the conversation.
func (p *SafetyPolicy) Propose(conversationID, toolName, arguments string) GatedActionRecord {
	record := GatedActionRecord{
		ToolName:   toolName,
		Arguments:  arguments,
		ProposedAt: time.Now(),
	}

	p.mu.Lock()
	p.pending[conversationID] = record
	p.mu.Unlock()
	return record
}

// Pending returns the open proposal for a conversation, if any.
func (p *SafetyPolicy) Pending(conversationID string) (GatedActionRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.pending[conversationID]
	return record, ok
}

// Clear drops the proposal for a conversation.
func (p *SafetyPolicy) Clear(conversationID string) {
	p.mu.Lock()
	delete(p.pending, conversationID)
	p.mu.Unlock()
}

// BeginTurn consumes the user message that opens a turn. If it is an
// explicit affirmative for the pending proposal, that proposal is
// returned armed; in every other case the proposal is dropped so a stale
// confirmation can never authorize a later call.
func (p *SafetyPolicy) BeginTurn(conversationID, userMessage string) (GatedActionRecord, bool) {
	p.mu.Lock()
	record, ok := p.pending[conversationID]
	if !ok {
		p.mu.Unlock()
		return GatedActionRecord{}, false
	}
	delete(p.pending, conversationID)
	p.mu.Unlock()

	if !p.classifier.IsAffirmative(userMessage) {
		return GatedActionRecord{}, false
	}
	return record, true
}
