package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byggpilot/byggpilot/internal/store"
)

type fakeBusinessStore struct {
	customers    map[string]store.Customer
	projects     []store.Project
	offers       []store.Offer
	expenses     []store.Expense
	changeOrders []store.ChangeOrder
	seq          int
}

func newFakeBusinessStore() *fakeBusinessStore {
	return &fakeBusinessStore{customers: map[string]store.Customer{}}
}

func (f *fakeBusinessStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeBusinessStore) CreateCustomer(_ context.Context, customer *store.Customer) error {
	if customer.ID == "" {
		customer.ID = f.nextID("cust")
	}
	f.customers[customer.ID] = *customer
	return nil
}

func (f *fakeBusinessStore) ListCustomers(_ context.Context, _ string) ([]store.Customer, error) {
	ret := make([]store.Customer, 0, len(f.customers))
	for _, c := range f.customers {
		ret = append(ret, c)
	}
	return ret, nil
}

func (f *fakeBusinessStore) GetCustomer(_ context.Context, id string) (store.Customer, bool, error) {
	c, ok := f.customers[id]
	return c, ok, nil
}

func (f *fakeBusinessStore) CreateProject(_ context.Context, project *store.Project) error {
	if project.ID == "" {
		project.ID = f.nextID("proj")
	}
	f.projects = append(f.projects, *project)
	return nil
}

func (f *fakeBusinessStore) ListProjects(_ context.Context, companyID string) ([]store.Project, error) {
	ret := make([]store.Project, 0, len(f.projects))
	for _, p := range f.projects {
		if p.CompanyID == companyID {
			ret = append(ret, p)
		}
	}
	return ret, nil
}

func (f *fakeBusinessStore) CreateOffer(_ context.Context, offer *store.Offer) error {
	if offer.ID == "" {
		offer.ID = f.nextID("offer")
	}
	f.offers = append(f.offers, *offer)
	return nil
}

func (f *fakeBusinessStore) CreateExpense(_ context.Context, expense *store.Expense) error {
	if expense.ID == "" {
		expense.ID = f.nextID("exp")
	}
	f.expenses = append(f.expenses, *expense)
	return nil
}

func (f *fakeBusinessStore) CreateChangeOrder(_ context.Context, order *store.ChangeOrder) error {
	if order.ID == "" {
		order.ID = f.nextID("co")
	}
	f.changeOrders = append(f.changeOrders, *order)
	return nil
}

func execCtx() ExecutionContext {
	return ExecutionContext{
		UserID:         "user-1",
		CompanyID:      "co-1",
		ConversationID: "conv-1",
		DelegatedToken: "token-1",
	}
}

func TestCreateCustomerTool(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	tool := NewCreateCustomerTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"name": "Anna Andersson", "email": "anna@example.se"}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var created store.Customer
	require.NoError(t, json.Unmarshal([]byte(result.Content), &created))
	assert.Equal(t, "Anna Andersson", created.Name)
	assert.Equal(t, "co-1", created.CompanyID)
	assert.Len(t, fs.customers, 1)
}

func TestStartProjectTool_RequiresExistingCustomer(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	tool := NewStartProjectTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"customer_id": "missing", "name": "Villa Svensson"}`,
	))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "does not exist")
	assert.Empty(t, fs.projects)
}

func TestStartProjectTool_CreatesActiveProject(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	fs.customers["cust-1"] = store.Customer{ID: "cust-1", Name: "Anna Andersson"}
	tool := NewStartProjectTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"customer_id": "cust-1", "name": "Villa Svensson badrum", "address": "Storgatan 12"}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var project store.Project
	require.NoError(t, json.Unmarshal([]byte(result.Content), &project))
	assert.Equal(t, store.ProjectActive, project.Status)
	assert.Equal(t, "co-1", project.CompanyID)
}

func TestListProjectsTool_ScopedToCompany(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	fs.projects = []store.Project{
		{ID: "p1", CompanyID: "co-1", Name: "Villa Svensson"},
		{ID: "p2", CompanyID: "other", Name: "Annat bygge"},
	}
	tool := NewListProjectsTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), nil)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var projects []store.Project
	require.NoError(t, json.Unmarshal([]byte(result.Content), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)
}

func TestCreateOfferTool_ConvertsSEKToOre(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	tool := NewCreateOfferTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "title": "Badrumsrenovering", "amount_sek": 250000.50}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, fs.offers, 1)
	assert.Equal(t, int64(25000050), fs.offers[0].AmountOre)
	assert.Equal(t, store.OfferDraft, fs.offers[0].Status)
}

func TestCreateOfferTool_RejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	tool := NewCreateOfferTool(newFakeBusinessStore())
	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "title": "x", "amount_sek": -5}`,
	))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRecordExpenseTool_DefaultsCategory(t *testing.T) {
	t.Parallel()

	fs := newFakeBusinessStore()
	tool := NewRecordExpenseTool(fs)

	result, err := tool.Execute(context.Background(), execCtx(), json.RawMessage(
		`{"project_id": "p1", "description": "Kakel", "amount_sek": 8000}`,
	))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, fs.expenses, 1)
	assert.Equal(t, "other", fs.expenses[0].Category)
	assert.Equal(t, int64(800000), fs.expenses[0].AmountOre)
}
