package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/byggpilot/byggpilot/internal/gworkspace"
)

// WorkspaceBridge is the slice of the workspace bridge the tools need.
type WorkspaceBridge interface {
	SendEmail(ctx context.Context, token string, req gworkspace.EmailRequest) (gworkspace.EmailResult, error)
	CreateCalendarEvent(ctx context.Context, token string, req gworkspace.EventRequest) (gworkspace.EventResult, error)
	CreateTask(ctx context.Context, token string, req gworkspace.TaskRequest) (gworkspace.TaskResult, error)
}

// ---- create_task ----

type CreateTaskTool struct {
	bridge WorkspaceBridge
}

func NewCreateTaskTool(bridge WorkspaceBridge) *CreateTaskTool {
	return &CreateTaskTool{bridge: bridge}
}

func (t *CreateTaskTool) Name() string   { return "create_task" }
func (t *CreateTaskTool) Safety() Safety { return SafetySafe }

func (t *CreateTaskTool) Description() string {
	return "Add a task to the user's own task list, e.g. 'beställ virke' or 'ring besiktningsman'. Only visible to the user."
}

func (t *CreateTaskTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "description": "Short task title"},
			"notes": {"type": "string", "description": "Optional details"},
			"due": {"type": "string", "description": "Optional due date, RFC 3339 or YYYY-MM-DD"}
		},
		"required": ["title"]
	}`)
}

func (t *CreateTaskTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		Title string `json:"title"`
		Notes string `json:"notes"`
		Due   string `json:"due"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	req := gworkspace.TaskRequest{
		Title: input.Title,
		Notes: input.Notes,
	}
	if input.Due != "" {
		due, err := parseFlexibleTime(input.Due)
		if err != nil {
			return errorResult("invalid due date %q: %v", input.Due, err), nil
		}
		req.Due = &due
	}

	result, err := t.bridge.CreateTask(ctx, execCtx.DelegatedToken, req)
	if err != nil {
		return errorResult("failed to create task: %v", err), nil
	}
	return jsonResult(result), nil
}

// ---- send_email ----

type SendEmailTool struct {
	bridge WorkspaceBridge
}

func NewSendEmailTool(bridge WorkspaceBridge) *SendEmailTool {
	return &SendEmailTool{bridge: bridge}
}

func (t *SendEmailTool) Name() string   { return "send_email" }
func (t *SendEmailTool) Safety() Safety { return SafetyGated }

func (t *SendEmailTool) Description() string {
	return "Send an email from the user's own address. The email leaves the system and cannot be recalled, so the user must confirm first."
}

func (t *SendEmailTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "description": "Recipient email address"},
			"subject": {"type": "string", "description": "Email subject"},
			"body": {"type": "string", "description": "Email body text"},
			"attachment_ref": {"type": "string", "description": "Optional reference to a previously exported document"}
		},
		"required": ["to", "subject", "body"]
	}`)
}

func (t *SendEmailTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input gworkspace.EmailRequest
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	result, err := t.bridge.SendEmail(ctx, execCtx.DelegatedToken, input)
	if err != nil {
		return errorResult("failed to send email: %v", err), nil
	}
	return jsonResult(result), nil
}

// ---- book_calendar_event ----

type BookCalendarEventTool struct {
	bridge WorkspaceBridge
}

func NewBookCalendarEventTool(bridge WorkspaceBridge) *BookCalendarEventTool {
	return &BookCalendarEventTool{bridge: bridge}
}

func (t *BookCalendarEventTool) Name() string   { return "book_calendar_event" }
func (t *BookCalendarEventTool) Safety() Safety { return SafetyGated }

func (t *BookCalendarEventTool) Description() string {
	return "Book an event in the user's calendar, optionally inviting attendees. Invitations are sent to attendees, so the user must confirm first."
}

func (t *BookCalendarEventTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "description": "Event title"},
			"description": {"type": "string", "description": "Optional event description"},
			"start": {"type": "string", "description": "Start time, RFC 3339"},
			"end": {"type": "string", "description": "End time, RFC 3339; defaults to one hour after start"},
			"attendees": {"type": "array", "items": {"type": "string"}, "description": "Optional attendee email addresses"}
		},
		"required": ["title", "start"]
	}`)
}

func (t *BookCalendarEventTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Start       string   `json:"start"`
		End         string   `json:"end"`
		Attendees   []string `json:"attendees"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	start, err := parseFlexibleTime(input.Start)
	if err != nil {
		return errorResult("invalid start time %q: %v", input.Start, err), nil
	}
	end := start.Add(time.Hour)
	if input.End != "" {
		end, err = parseFlexibleTime(input.End)
		if err != nil {
			return errorResult("invalid end time %q: %v", input.End, err), nil
		}
	}
	if !end.After(start) {
		return errorResult("end time must be after start time"), nil
	}

	result, err := t.bridge.CreateCalendarEvent(ctx, execCtx.DelegatedToken, gworkspace.EventRequest{
		Title:       input.Title,
		Description: input.Description,
		Start:       start,
		End:         end,
		Attendees:   input.Attendees,
	})
	if err != nil {
		return errorResult("failed to book event: %v", err), nil
	}
	return jsonResult(result), nil
}

func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD")
}
