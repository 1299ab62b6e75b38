package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/qwertyz15/expense-app/internal/report"
	"github.com/qwertyz15/expense-app/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret-long-enough-for-hs256"

var fixedNow = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

type testApp struct {
	server *httptest.Server
	tokens *auth.TokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	store, err := storage.OpenSQLite(ctx, ":memory:", storage.Options{OperationTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret, Lifetime: time.Hour})
	require.NoError(t, err)

	service := budget.NewBudgetTracker(store, tokens, time.UTC).WithClock(func() time.Time { return fixedNow })
	engine := report.NewEngine(store, time.UTC)
	server := httptest.NewServer(NewRouter(NewApi(service, engine, auth.NewResolver(tokens, store))))
	t.Cleanup(server.Close)

	return &testApp{server: server, tokens: tokens}
}

func (app *testApp) do(t *testing.T, method, path, authHeader string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, app.server.URL+path, reader)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

// signupAndLogin returns a ready Authorization header.
func (app *testApp) signupAndLogin(t *testing.T, email string) string {
	t.Helper()
	status, body := app.do(t, "POST", "/api/auth/signup", "", SignupRequest{Name: "Tester", Email: email, Password: "secret123"})
	require.Equal(t, 201, status, string(body))

	status, body = app.do(t, "POST", "/api/auth/login", "", LoginRequest{Email: email, Password: "secret123"})
	require.Equal(t, 200, status, string(body))
	token := decode[TokenResponse](t, body)
	require.Equal(t, "bearer", token.TokenType)
	return "Bearer " + token.AccessToken
}

func TestSignupLoginAndDashboard(t *testing.T) {
	app := newTestApp(t)
	bearer := app.signupAndLogin(t, "a@b.com")

	status, body := app.do(t, "POST", "/api/auth/signup", "", SignupRequest{Name: "Other", Email: "a@b.com", Password: "secret123"})
	require.Equal(t, 409, status, string(body))

	status, body = app.do(t, "GET", "/api/auth/me", bearer, nil)
	require.Equal(t, 200, status)
	me := decode[UserResponse](t, body)
	require.Equal(t, "a@b.com", me.Email)

	status, body = app.do(t, "GET", "/api/reports/dashboard", bearer, nil)
	require.Equal(t, 200, status)
	empty := decode[DashboardResponse](t, body)
	require.Equal(t, "0.00", empty.TotalSpent)
	require.Equal(t, "0.00", empty.MonthToDate)
	require.NotNil(t, empty.Budgets)
	require.Empty(t, empty.Budgets)
	require.NotNil(t, empty.TopCategories)
	require.Empty(t, empty.TopCategories)

	status, body = app.do(t, "POST", "/api/categories", bearer, CategoryRequest{Name: "Food"})
	require.Equal(t, 201, status, string(body))
	food := decode[CategoryResponse](t, body)
	require.Equal(t, budget.DefaultCategoryColor, food.Color)

	status, body = app.do(t, "POST", "/api/expenses", bearer, map[string]any{
		"description": "Lunch",
		"amount":      "20",
		"category_id": food.ID,
	})
	require.Equal(t, 201, status, string(body))
	expense := decode[ExpenseResponse](t, body)
	require.Equal(t, "20.00", expense.Amount)
	require.Equal(t, &food.ID, expense.CategoryID)

	status, body = app.do(t, "GET", "/api/reports/dashboard", bearer, nil)
	require.Equal(t, 200, status)
	dashboard := decode[DashboardResponse](t, body)
	require.Equal(t, "20.00", dashboard.TotalSpent)
	require.Equal(t, "20.00", dashboard.MonthToDate)
	require.Len(t, dashboard.TopCategories, 1)
	require.Equal(t, "Food", dashboard.TopCategories[0].Name)
	require.Equal(t, "20.00", dashboard.TopCategories[0].Total)

	status, body = app.do(t, "GET", "/api/expenses/daily", bearer, nil)
	require.Equal(t, 200, status)
	daily := decode[[]DailyTotalResponse](t, body)
	require.Equal(t, []DailyTotalResponse{{Day: "2025-03-15", Total: "20.00"}}, daily)
}

func TestAuthenticationFailures(t *testing.T) {
	app := newTestApp(t)
	app.signupAndLogin(t, "a@b.com")

	expired, err := app.tokens.Issue(1, fixedNow.Add(-2*time.Hour))
	require.NoError(t, err)
	unknownUser, err := app.tokens.Issue(999, fixedNow)
	require.NoError(t, err)
	foreign, err := auth.NewTokenService(auth.TokenConfig{Secret: "another-secret-also-long-enough-to-use"})
	require.NoError(t, err)
	forged, err := foreign.Issue(1, fixedNow)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "unknown user", header: "Bearer " + unknownUser},
		{name: "foreign signature", header: "Bearer " + forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := app.do(t, "GET", "/api/reports/dashboard", tt.header, nil)
			require.Equal(t, 401, status)
			resp := decode[ErrorBody](t, body)
			require.Equal(t, "UNAUTHORIZED", resp.Code)
			require.Equal(t, "Authentication failed.", resp.Message)
		})
	}

	t.Run("wrong password", func(t *testing.T) {
		status, _ := app.do(t, "POST", "/api/auth/login", "", LoginRequest{Email: "a@b.com", Password: "nope-nope"})
		require.Equal(t, 401, status)
	})
}

func TestOwnerIsolation(t *testing.T) {
	app := newTestApp(t)
	alice := app.signupAndLogin(t, "alice@example.com")
	bob := app.signupAndLogin(t, "bob@example.com")

	status, body := app.do(t, "POST", "/api/expenses", alice, map[string]any{"description": "Taxi", "amount": 12.5})
	require.Equal(t, 201, status, string(body))
	expense := decode[ExpenseResponse](t, body)

	status, body = app.do(t, "GET", "/api/expenses", bob, nil)
	require.Equal(t, 200, status)
	require.Empty(t, decode[[]ExpenseResponse](t, body))

	status, _ = app.do(t, "DELETE", fmt.Sprintf("/api/expenses/%d", expense.ID), bob, nil)
	require.Equal(t, 404, status)

	status, body = app.do(t, "GET", "/api/reports/dashboard", bob, nil)
	require.Equal(t, 200, status)
	require.Equal(t, "0.00", decode[DashboardResponse](t, body).TotalSpent)

	status, _ = app.do(t, "DELETE", fmt.Sprintf("/api/expenses/%d", expense.ID), alice, nil)
	require.Equal(t, 204, status)
}

func TestExpenseUpdateAndFilters(t *testing.T) {
	app := newTestApp(t)
	bearer := app.signupAndLogin(t, "a@b.com")

	_, body := app.do(t, "POST", "/api/categories", bearer, CategoryRequest{Name: "Travel", Color: "#ff0000"})
	travel := decode[CategoryResponse](t, body)

	_, body = app.do(t, "POST", "/api/expenses", bearer, map[string]any{
		"description": "Train",
		"amount":      "30.10",
		"category_id": travel.ID,
		"spent_at":    "2025-03-01T09:00:00Z",
	})
	train := decode[ExpenseResponse](t, body)

	status, body := app.do(t, "GET", fmt.Sprintf("/api/expenses?category_id=%d&start_date=2025-03-01&end_date=2025-03-01", travel.ID), bearer, nil)
	require.Equal(t, 200, status)
	require.Len(t, decode[[]ExpenseResponse](t, body), 1)

	status, body = app.do(t, "GET", "/api/expenses?start_date=2025-03-02", bearer, nil)
	require.Equal(t, 200, status)
	require.Empty(t, decode[[]ExpenseResponse](t, body))

	status, _ = app.do(t, "GET", "/api/expenses?start_date=yesterday", bearer, nil)
	require.Equal(t, 400, status)

	status, body = app.do(t, "PUT", fmt.Sprintf("/api/expenses/%d", train.ID), bearer, map[string]any{"category_id": nil})
	require.Equal(t, 200, status, string(body))
	updated := decode[ExpenseResponse](t, body)
	assert.Nil(t, updated.CategoryID)
	assert.Equal(t, "30.10", updated.Amount)

	status, _ = app.do(t, "PUT", fmt.Sprintf("/api/expenses/%d", train.ID), bearer, map[string]any{"amount": "-1"})
	require.Equal(t, 400, status)

	status, _ = app.do(t, "GET", "/api/expenses/daily?start_date=2025-03-10&end_date=2025-03-01", bearer, nil)
	require.Equal(t, 400, status)
}

func TestBudgetsOnDashboard(t *testing.T) {
	app := newTestApp(t)
	bearer := app.signupAndLogin(t, "a@b.com")

	status, body := app.do(t, "POST", "/api/budgets", bearer, map[string]any{"month": "2025-03", "amount": "500"})
	require.Equal(t, 201, status, string(body))
	saved := decode[BudgetResponse](t, body)
	require.Equal(t, "2025-03-01", saved.Month)
	require.Equal(t, "500.00", saved.Amount)

	status, _ = app.do(t, "POST", "/api/budgets", bearer, map[string]any{"month": "2025-03-01", "amount": "200"})
	require.Equal(t, 409, status)

	status, body = app.do(t, "GET", "/api/reports/dashboard", bearer, nil)
	require.Equal(t, 200, status)
	require.Len(t, decode[DashboardResponse](t, body).Budgets, 1)

	status, _ = app.do(t, "DELETE", fmt.Sprintf("/api/budgets/%d", saved.ID), bearer, nil)
	require.Equal(t, 204, status)
}

func TestTraceHeader(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(TraceHeader))
}

func TestDeleteAccount(t *testing.T) {
	app := newTestApp(t)
	bearer := app.signupAndLogin(t, "gone@example.com")

	_, body := app.do(t, "POST", "/api/categories", bearer, CategoryRequest{Name: "Rent"})
	rent := decode[CategoryResponse](t, body)
	status, _ := app.do(t, "POST", "/api/expenses", bearer, map[string]any{"description": "March", "amount": "900", "category_id": rent.ID})
	require.Equal(t, 201, status)

	status, _ = app.do(t, "DELETE", "/api/auth/me", bearer, DeleteAccountRequest{Password: "wrong-password"})
	require.Equal(t, 403, status)

	status, _ = app.do(t, "DELETE", "/api/auth/me", bearer, DeleteAccountRequest{Password: "secret123"})
	require.Equal(t, 204, status)

	// the token outlives the account but no longer resolves
	status, _ = app.do(t, "GET", "/api/auth/me", bearer, nil)
	require.Equal(t, 401, status)

	status, _ = app.do(t, "POST", "/api/auth/login", "", LoginRequest{Email: "gone@example.com", Password: "secret123"})
	require.Equal(t, 401, status)
}
