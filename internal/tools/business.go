package tools

import (
	"context"
	"encoding/json"
	"math"

	"github.com/byggpilot/byggpilot/internal/store"
)

// BusinessStore is the slice of the store the record-keeping tools need.
type BusinessStore interface {
	CreateCustomer(ctx context.Context, customer *store.Customer) error
	ListCustomers(ctx context.Context, companyID string) ([]store.Customer, error)
	GetCustomer(ctx context.Context, id string) (store.Customer, bool, error)
	CreateProject(ctx context.Context, project *store.Project) error
	ListProjects(ctx context.Context, companyID string) ([]store.Project, error)
	CreateOffer(ctx context.Context, offer *store.Offer) error
	CreateExpense(ctx context.Context, expense *store.Expense) error
	CreateChangeOrder(ctx context.Context, order *store.ChangeOrder) error
}

func oreFromSEK(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// ---- create_customer ----

type CreateCustomerTool struct {
	store BusinessStore
}

func NewCreateCustomerTool(s BusinessStore) *CreateCustomerTool {
	return &CreateCustomerTool{store: s}
}

func (t *CreateCustomerTool) Name() string   { return "create_customer" }
func (t *CreateCustomerTool) Safety() Safety { return SafetySafe }

func (t *CreateCustomerTool) Description() string {
	return "Register a new customer for the company. Use this before starting a project for a customer that does not exist yet."
}

func (t *CreateCustomerTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Customer's full name or company name"},
			"email": {"type": "string", "description": "Customer email address"},
			"phone": {"type": "string", "description": "Customer phone number"},
			"address": {"type": "string", "description": "Street address of the customer"}
		},
		"required": ["name"]
	}`)
}

func (t *CreateCustomerTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	customer := store.Customer{
		CompanyID: execCtx.CompanyID,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		Address:   input.Address,
	}
	if err := t.store.CreateCustomer(ctx, &customer); err != nil {
		return errorResult("failed to create customer: %v", err), nil
	}
	return jsonResult(customer), nil
}

// ---- start_project ----

type StartProjectTool struct {
	store BusinessStore
}

func NewStartProjectTool(s BusinessStore) *StartProjectTool {
	return &StartProjectTool{store: s}
}

func (t *StartProjectTool) Name() string   { return "start_project" }
func (t *StartProjectTool) Safety() Safety { return SafetySafe }

func (t *StartProjectTool) Description() string {
	return "Start a new construction project for an existing customer. The project collects offers, change orders (ÄTA), expenses and the final invoice."
}

func (t *StartProjectTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"customer_id": {"type": "string", "description": "ID of the customer the project is for"},
			"name": {"type": "string", "description": "Short project name, e.g. 'Villa Svensson badrum'"},
			"address": {"type": "string", "description": "Site address of the project"}
		},
		"required": ["customer_id", "name"]
	}`)
}

func (t *StartProjectTool) Execute(ctx context.Context, execCtx ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		CustomerID string `json:"customer_id"`
		Name       string `json:"name"`
		Address    string `json:"address"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}

	if _, found, err := t.store.GetCustomer(ctx, input.CustomerID); err != nil {
		return errorResult("failed to look up customer: %v", err), nil
	} else if !found {
		return errorResult("customer %s does not exist; create the customer first", input.CustomerID), nil
	}

	project := store.Project{
		CompanyID:  execCtx.CompanyID,
		CustomerID: input.CustomerID,
		Name:       input.Name,
		Address:    input.Address,
		Status:     store.ProjectActive,
	}
	if err := t.store.CreateProject(ctx, &project); err != nil {
		return errorResult("failed to create project: %v", err), nil
	}
	return jsonResult(project), nil
}

// ---- list_projects ----

type ListProjectsTool struct {
	store BusinessStore
}

func NewListProjectsTool(s BusinessStore) *ListProjectsTool {
	return &ListProjectsTool{store: s}
}

func (t *ListProjectsTool) Name() string   { return "list_projects" }
func (t *ListProjectsTool) Safety() Safety { return SafetySafe }

func (t *ListProjectsTool) Description() string {
	return "List the company's projects with their status. Use this to find a project's ID before acting on it."
}

func (t *ListProjectsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *ListProjectsTool) Execute(ctx context.Context, execCtx ExecutionContext, _ json.RawMessage) (ToolResult, error) {
	projects, err := t.store.ListProjects(ctx, execCtx.CompanyID)
	if err != nil {
		return errorResult("failed to list projects: %v", err), nil
	}
	return jsonResult(projects), nil
}

// ---- create_offer ----

type CreateOfferTool struct {
	store BusinessStore
}

func NewCreateOfferTool(s BusinessStore) *CreateOfferTool {
	return &CreateOfferTool{store: s}
}

func (t *CreateOfferTool) Name() string   { return "create_offer" }
func (t *CreateOfferTool) Safety() Safety { return SafetySafe }

func (t *CreateOfferTool) Description() string {
	return "Record an offer (quote) on a project. The offer starts as a draft; mark it accepted when the customer approves it."
}

func (t *CreateOfferTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project the offer belongs to"},
			"title": {"type": "string", "description": "What the offer covers"},
			"amount_sek": {"type": "number", "description": "Offer amount in SEK excluding VAT"}
		},
		"required": ["project_id", "title", "amount_sek"]
	}`)
}

func (t *CreateOfferTool) Execute(ctx context.Context, _ ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID string  `json:"project_id"`
		Title     string  `json:"title"`
		AmountSEK float64 `json:"amount_sek"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if input.AmountSEK <= 0 {
		return errorResult("amount_sek must be positive"), nil
	}

	offer := store.Offer{
		ProjectID: input.ProjectID,
		Title:     input.Title,
		AmountOre: oreFromSEK(input.AmountSEK),
		Status:    store.OfferDraft,
	}
	if err := t.store.CreateOffer(ctx, &offer); err != nil {
		return errorResult("failed to create offer: %v", err), nil
	}
	return jsonResult(offer), nil
}

// ---- record_expense ----

type RecordExpenseTool struct {
	store BusinessStore
}

func NewRecordExpenseTool(s BusinessStore) *RecordExpenseTool {
	return &RecordExpenseTool{store: s}
}

func (t *RecordExpenseTool) Name() string   { return "record_expense" }
func (t *RecordExpenseTool) Safety() Safety { return SafetySafe }

func (t *RecordExpenseTool) Description() string {
	return "Log an expense (material, subcontractor, other) on a project so it is included in the invoice basis."
}

func (t *RecordExpenseTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_id": {"type": "string", "description": "ID of the project the expense belongs to"},
			"description": {"type": "string", "description": "What was bought or paid for"},
			"category": {"type": "string", "enum": ["material", "subcontractor", "equipment", "other"], "description": "Expense category"},
			"amount_sek": {"type": "number", "description": "Expense amount in SEK excluding VAT"}
		},
		"required": ["project_id", "description", "amount_sek"]
	}`)
}

func (t *RecordExpenseTool) Execute(ctx context.Context, _ ExecutionContext, args json.RawMessage) (ToolResult, error) {
	var input struct {
		ProjectID   string  `json:"project_id"`
		Description string  `json:"description"`
		Category    string  `json:"category"`
		AmountSEK   float64 `json:"amount_sek"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return errorResult("failed to parse arguments: %v", err), nil
	}
	if input.AmountSEK <= 0 {
		return errorResult("amount_sek must be positive"), nil
	}
	if input.Category == "" {
		input.Category = "other"
	}

	expense := store.Expense{
		ProjectID:   input.ProjectID,
		Description: input.Description,
		Category:    input.Category,
		AmountOre:   oreFromSEK(input.AmountSEK),
	}
	if err := t.store.CreateExpense(ctx, &expense); err != nil {
		return errorResult("failed to record expense: %v", err), nil
	}
	return jsonResult(expense), nil
}
