package gworkspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the workspace bridge service that performs delegated
// Google Workspace operations on behalf of a user. Every call carries the
// caller's delegated token; the client itself holds no credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type EmailRequest struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type EmailResult struct {
	MessageID string `json:"message_id"`
}

type EventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees,omitempty"`
}

type EventResult struct {
	EventID string `json:"event_id"`
	Link    string `json:"link"`
}

type DocumentRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type DocumentResult struct {
	DocumentRef string `json:"document_ref"`
	Link        string `json:"link"`
}

type PDFResult struct {
	PDFRef string `json:"pdf_ref"`
}

type TaskRequest struct {
	Title string     `json:"title"`
	Notes string     `json:"notes,omitempty"`
	Due   *time.Time `json:"due,omitempty"`
}

type TaskResult struct {
	TaskID string `json:"task_id"`
}

// SendEmail sends an email as the delegated user, optionally attaching a
// previously exported document.
func (c *Client) SendEmail(ctx context.Context, token string, req EmailRequest) (EmailResult, error) {
	var ret EmailResult
	if req.To == "" {
		return ret, fmt.Errorf("email recipient is required")
	}
	err := c.post(ctx, token, "/v1/gmail/send", req, &ret)
	return ret, err
}

func (c *Client) CreateCalendarEvent(ctx context.Context, token string, req EventRequest) (EventResult, error) {
	var ret EventResult
	if req.Title == "" {
		return ret, fmt.Errorf("event title is required")
	}
	err := c.post(ctx, token, "/v1/calendar/events", req, &ret)
	return ret, err
}

// CreateDocument creates an editable document in the user's drive and
// returns a stable reference plus a link the user can open.
func (c *Client) CreateDocument(ctx context.Context, token string, req DocumentRequest) (DocumentResult, error) {
	var ret DocumentResult
	if req.Title == "" {
		return ret, fmt.Errorf("document title is required")
	}
	err := c.post(ctx, token, "/v1/docs", req, &ret)
	return ret, err
}

func (c *Client) ExportPDF(ctx context.Context, token, documentRef string) (PDFResult, error) {
	var ret PDFResult
	if documentRef == "" {
		return ret, fmt.Errorf("document reference is required")
	}
	payload := map[string]string{"document_ref": documentRef}
	err := c.post(ctx, token, "/v1/docs/export-pdf", payload, &ret)
	return ret, err
}

func (c *Client) CreateTask(ctx context.Context, token string, req TaskRequest) (TaskResult, error) {
	var ret TaskResult
	if req.Title == "" {
		return ret, fmt.Errorf("task title is required")
	}
	err := c.post(ctx, token, "/v1/tasks", req, &ret)
	return ret, err
}

func (c *Client) post(ctx context.Context, token, path string, payload any, out any) error {
	if token == "" {
		return fmt.Errorf("delegated token is required")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge error (status %d): %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
