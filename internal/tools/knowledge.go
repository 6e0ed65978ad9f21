package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/byggpilot/byggpilot/internal/store"
)

// KnowledgeSearcher is implemented by the knowledge retriever.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.KnowledgeSnippet, error)
}

type SearchKnowledgeTool struct {
	searcher KnowledgeSearcher
}

func NewSearchKnowledgeTool(searcher KnowledgeSearcher) *SearchKnowledgeTool {
	return &SearchKnowledgeTool{searcher: searcher}
}

func (t *SearchKnowledgeTool) Name() string   { return "search_knowledge" }
func (t *SearchKnowledgeTool) Safety() Safety { return SafetySafe }

func (t *SearchKnowledgeTool) Description() string {
	return "Search the built-in knowledge base of Swedish construction practice: ÄTA rules, AB 04/ABT 06 terms, building regulations (BBR), VAT and ROT. Use this before answering regulatory questions."
}

func (t *SearchKnowledgeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to look up, in Swedish or English"},
			"limit": {"type": "integer", "description": "Maximum number of snippets to return (default 3)"}
		},
		"required": ["query"]
	}`)
}

func (t *SearchKnowledgeTool) Execute(ctx context.Context, _ ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	snippets, err := t.searcher.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return errorResult("knowledge search failed: %v", err), nil
	}
	if len(snippets) == 0 {
		return ToolResult{Content: "No matching knowledge snippets found."}, nil
	}

	var b strings.Builder
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n\n", i+1, snippet.Topic, snippet.Source, snippet.Content)
	}
	return ToolResult{Content: strings.TrimSpace(b.String())}, nil
}
