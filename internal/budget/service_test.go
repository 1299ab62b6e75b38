package budget

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/logging"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// Mocks
type MockStorage struct {
	nextID     int64
	users      map[int64]auth.User
	categories map[int64]Category
	expenses   map[int64]Expense
	budgets    map[int64]Budget
	lastFilter ExpenseFilter
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		users:      map[int64]auth.User{},
		categories: map[int64]Category{},
		expenses:   map[int64]Expense{},
		budgets:    map[int64]Budget{},
	}
}

func (m *MockStorage) id() int64 {
	m.nextID++
	return m.nextID
}

func notFound(what string) error {
	return appErrors.ErrorResponse{Code: appErrors.ErrNotFound, Message: what + " not found."}
}

func (m *MockStorage) SaveUser(ctx context.Context, user auth.User) (auth.User, error) {
	user.ID = m.id()
	m.users[user.ID] = user
	return user, nil
}

func (m *MockStorage) GetUserByID(ctx context.Context, id int64) (auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, notFound("User")
	}
	return u, nil
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, notFound("User")
}

func (m *MockStorage) IsEmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (m *MockStorage) DeleteUser(ctx context.Context, userID int64) error {
	delete(m.users, userID)
	return nil
}

func (m *MockStorage) SaveCategory(ctx context.Context, c Category) (Category, error) {
	c.ID = m.id()
	m.categories[c.ID] = c
	return c, nil
}

func (m *MockStorage) GetCategory(ctx context.Context, ownerID, id int64) (Category, error) {
	c, ok := m.categories[id]
	if !ok || c.OwnerID != ownerID {
		return Category{}, notFound("Category")
	}
	return c, nil
}

func (m *MockStorage) ListCategories(ctx context.Context, ownerID int64) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStorage) IsCategoryNameTaken(ctx context.Context, ownerID int64, name string, exceptID int64) (bool, error) {
	for _, c := range m.categories {
		if c.OwnerID == ownerID && c.Name == name && c.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStorage) UpdateCategory(ctx context.Context, c Category) error {
	m.categories[c.ID] = c
	return nil
}

func (m *MockStorage) DeleteCategory(ctx context.Context, ownerID, id int64) error {
	if _, err := m.GetCategory(ctx, ownerID, id); err != nil {
		return err
	}
	delete(m.categories, id)
	return nil
}

func (m *MockStorage) SaveExpense(ctx context.Context, e Expense) (Expense, error) {
	e.ID = m.id()
	m.expenses[e.ID] = e
	return e, nil
}

func (m *MockStorage) GetExpense(ctx context.Context, ownerID, id int64) (Expense, error) {
	e, ok := m.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return Expense{}, notFound("Expense")
	}
	return e, nil
}

func (m *MockStorage) ListExpenses(ctx context.Context, ownerID int64, filter ExpenseFilter) ([]Expense, error) {
	m.lastFilter = filter
	var out []Expense
	for _, e := range m.expenses {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockStorage) UpdateExpense(ctx context.Context, e Expense) error {
	m.expenses[e.ID] = e
	return nil
}

func (m *MockStorage) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	if _, err := m.GetExpense(ctx, ownerID, id); err != nil {
		return err
	}
	delete(m.expenses, id)
	return nil
}

func (m *MockStorage) SaveBudget(ctx context.Context, b Budget) (Budget, error) {
	b.ID = m.id()
	m.budgets[b.ID] = b
	return b, nil
}

func (m *MockStorage) IsBudgetExists(ctx context.Context, ownerID int64, categoryID *int64, month time.Time) (bool, error) {
	for _, b := range m.budgets {
		sameCategory := (b.CategoryID == nil && categoryID == nil) ||
			(b.CategoryID != nil && categoryID != nil && *b.CategoryID == *categoryID)
		if b.OwnerID == ownerID && sameCategory && b.Month.Equal(month) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStorage) ListBudgets(ctx context.Context, ownerID int64) ([]Budget, error) {
	var out []Budget
	for _, b := range m.budgets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockStorage) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	b, ok := m.budgets[id]
	if !ok || b.OwnerID != ownerID {
		return notFound("Budget")
	}
	delete(m.budgets, id)
	return nil
}

func (m *MockStorage) GetStorageType() string {
	return "mock"
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return nil
}

var fixedNow = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

func newTestTracker(t *testing.T) (*BudgetTracker, *MockStorage) {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "budget-test-secret", Lifetime: time.Hour})
	require.NoError(t, err)
	store := NewMockStorage()
	bt := NewBudgetTracker(store, tokens, time.UTC).WithClock(func() time.Time { return fixedNow })
	return bt, store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

func TestSaveUser(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	user, err := bt.SaveUser(ctx, auth.NewUser{Name: " Alice ", Email: "alice@example.com", PasswordPlain: "secret1"})
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	require.Equal(t, "Alice", user.Name)
	require.NotEqual(t, "secret1", user.PasswordHashed)
	require.True(t, auth.ComparePasswords(user.PasswordHashed, "secret1"))

	tests := []struct {
		name         string
		input        auth.NewUser
		expectedCode string
	}{
		{
			name:         "duplicate email",
			input:        auth.NewUser{Name: "Other", Email: "alice@example.com", PasswordPlain: "secret2"},
			expectedCode: appErrors.ErrConflict,
		},
		{
			name:         "short password",
			input:        auth.NewUser{Name: "Bob", Email: "bob@example.com", PasswordPlain: "123"},
			expectedCode: appErrors.ErrInvalidInput,
		},
		{
			name:         "empty email",
			input:        auth.NewUser{Name: "Bob", PasswordPlain: "secret2"},
			expectedCode: appErrors.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.SaveUser(ctx, tt.input)
			require.Error(t, err)
			require.Equal(t, tt.expectedCode, appErrors.CodeOf(err))
		})
	}
}

func TestGenerateSession(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	user, err := bt.SaveUser(ctx, auth.NewUser{Name: "Alice", Email: "alice@example.com", PasswordPlain: "secret1"})
	require.NoError(t, err)

	session, err := bt.GenerateSession(ctx, auth.UserCredentialsPure{Email: "alice@example.com", PasswordPlain: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "bearer", session.TokenType)
	require.Equal(t, fixedNow.Add(time.Hour), session.ExpiresAt)

	userID, err := bt.tokens.Verify(session.Token, fixedNow)
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)

	tests := []struct {
		name  string
		creds auth.UserCredentialsPure
	}{
		{name: "wrong password", creds: auth.UserCredentialsPure{Email: "alice@example.com", PasswordPlain: "secret2"}},
		{name: "unknown email", creds: auth.UserCredentialsPure{Email: "nobody@example.com", PasswordPlain: "secret1"}},
	}
	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.GenerateSession(ctx, tt.creds)
			require.ErrorIs(t, err, auth.ErrInvalidCredential)
			require.Equal(t, appErrors.ErrAuth, appErrors.CodeOf(err))
			messages = append(messages, appErrors.MessageOf(err))
		})
	}
	require.Len(t, messages, 2)
	require.Equal(t, messages[0], messages[1], "failures must not reveal which credential was wrong")
}

func TestDummyHashFailureIsRetried(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()
	hook := logtest.NewLocal(logging.Logger)
	defer hook.Reset()

	calls := 0
	hashPassword = func(password string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("entropy exhausted")
		}
		return auth.HashPassword(password)
	}
	defer func() { hashPassword = auth.HashPassword }()

	creds := auth.UserCredentialsPure{Email: "nobody@example.com", PasswordPlain: "secret1"}
	_, err := bt.GenerateSession(ctx, creds)
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
	logged := false
	for _, entry := range hook.AllEntries() {
		logged = logged || strings.Contains(entry.Message, "entropy exhausted")
	}
	require.True(t, logged, "hash failure must be logged")
	require.Empty(t, bt.dummyHash)

	_, err = bt.GenerateSession(ctx, creds)
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
	require.NotEmpty(t, bt.dummyHash)
	require.Equal(t, 2, calls)

	_, err = bt.GenerateSession(ctx, creds)
	require.ErrorIs(t, err, auth.ErrInvalidCredential)
	require.Equal(t, 2, calls, "a good hash is cached")
}

func TestDeleteUser(t *testing.T) {
	bt, store := newTestTracker(t)
	ctx := context.Background()

	user, err := bt.SaveUser(ctx, auth.NewUser{Name: "Alice", Email: "alice@example.com", PasswordPlain: "secret1"})
	require.NoError(t, err)

	err = bt.DeleteUser(ctx, user.ID, auth.DeleteUser{Password: "wrong-pass"})
	require.Equal(t, appErrors.ErrAccessDenied, appErrors.CodeOf(err))

	err = bt.DeleteUser(ctx, user.ID, auth.DeleteUser{})
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))

	require.NoError(t, bt.DeleteUser(ctx, user.ID, auth.DeleteUser{Password: "secret1"}))
	require.Empty(t, store.users)
}

func TestCategories(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	food, err := bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Food"})
	require.NoError(t, err)
	require.Equal(t, DefaultCategoryColor, food.Color)

	_, err = bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Food", Color: "#ffffff"})
	require.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err))

	// same name under another owner is fine
	_, err = bt.SaveCategory(ctx, 2, CategoryRequest{Name: "Food"})
	require.NoError(t, err)

	travel, err := bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Travel", Color: "#10b981"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		id           int64
		patch        CategoryPatch
		expectedCode string
	}{
		{name: "rename to taken name", id: travel.ID, patch: CategoryPatch{Name: ptr("Food")}, expectedCode: appErrors.ErrConflict},
		{name: "invalid color", id: travel.ID, patch: CategoryPatch{Color: ptr("blue")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "empty name", id: travel.ID, patch: CategoryPatch{Name: ptr("  ")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "other owner", id: 999, patch: CategoryPatch{Name: ptr("X")}, expectedCode: appErrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.UpdateCategory(ctx, 1, tt.id, tt.patch)
			require.Error(t, err)
			require.Equal(t, tt.expectedCode, appErrors.CodeOf(err))
		})
	}

	updated, err := bt.UpdateCategory(ctx, 1, travel.ID, CategoryPatch{Color: ptr("#ec4899")})
	require.NoError(t, err)
	require.Equal(t, "Travel", updated.Name)
	require.Equal(t, "#ec4899", updated.Color)

	list, err := bt.ListCategories(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSaveExpense(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	food, err := bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Food"})
	require.NoError(t, err)
	foreign, err := bt.SaveCategory(ctx, 2, CategoryRequest{Name: "Theirs"})
	require.NoError(t, err)

	expense, err := bt.SaveExpense(ctx, 1, ExpenseRequest{Description: "Lunch", Amount: dec("12.505"), CategoryID: &food.ID})
	require.NoError(t, err)
	require.Equal(t, "12.51", FormatAmount(expense.Amount))
	require.Equal(t, fixedNow, expense.SpentAt)

	tests := []struct {
		name         string
		req          ExpenseRequest
		expectedCode string
	}{
		{name: "zero amount", req: ExpenseRequest{Description: "x", Amount: dec("0.004")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "negative amount", req: ExpenseRequest{Description: "x", Amount: dec("-1")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "too large", req: ExpenseRequest{Description: "x", Amount: dec("10000000000")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "empty description", req: ExpenseRequest{Description: " ", Amount: dec("1")}, expectedCode: appErrors.ErrInvalidInput},
		{name: "foreign category", req: ExpenseRequest{Description: "x", Amount: dec("1"), CategoryID: &foreign.ID}, expectedCode: appErrors.ErrNotFound},
		{name: "long description", req: ExpenseRequest{Description: strings.Repeat("a", MAX_EXPENSE_DESCRIPTION+1), Amount: dec("1")}, expectedCode: appErrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.SaveExpense(ctx, 1, tt.req)
			require.Error(t, err)
			require.Equal(t, tt.expectedCode, appErrors.CodeOf(err))
		})
	}
}

func TestUpdateExpense(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	food, err := bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Food"})
	require.NoError(t, err)
	expense, err := bt.SaveExpense(ctx, 1, ExpenseRequest{Description: "Lunch", Amount: dec("10"), CategoryID: &food.ID})
	require.NoError(t, err)

	updated, err := bt.UpdateExpense(ctx, 1, expense.ID, ExpensePatch{Amount: ptr(dec("15.5"))})
	require.NoError(t, err)
	require.Equal(t, "15.50", FormatAmount(updated.Amount))
	require.Equal(t, "Lunch", updated.Description)
	require.Equal(t, food.ID, *updated.CategoryID)

	updated, err = bt.UpdateExpense(ctx, 1, expense.ID, ExpensePatch{ClearCategory: true})
	require.NoError(t, err)
	require.Nil(t, updated.CategoryID)

	_, err = bt.UpdateExpense(ctx, 2, expense.ID, ExpensePatch{Description: ptr("mine now")})
	require.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))

	_, err = bt.UpdateExpense(ctx, 1, expense.ID, ExpensePatch{Amount: ptr(dec("0"))})
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))
}

func TestListExpensesDateRange(t *testing.T) {
	bt, store := newTestTracker(t)
	ctx := context.Background()

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 7, 0, 0, 0, 0, time.UTC)

	_, err := bt.ListExpenses(ctx, 1, ExpenseQuery{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Equal(t, start, *store.lastFilter.From)
	require.Equal(t, time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC), *store.lastFilter.To)

	_, err = bt.ListExpenses(ctx, 1, ExpenseQuery{StartDate: &end, EndDate: &start})
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))
}

func TestSaveBudget(t *testing.T) {
	bt, _ := newTestTracker(t)
	ctx := context.Background()

	food, err := bt.SaveCategory(ctx, 1, CategoryRequest{Name: "Food"})
	require.NoError(t, err)

	overall, err := bt.SaveBudget(ctx, 1, BudgetRequest{Month: time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC), Amount: dec("500")})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), overall.Month)

	_, err = bt.SaveBudget(ctx, 1, BudgetRequest{Month: time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), Amount: dec("100")})
	require.Equal(t, appErrors.ErrConflict, appErrors.CodeOf(err), "overall budget is unique per month")

	_, err = bt.SaveBudget(ctx, 1, BudgetRequest{Month: time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), Amount: dec("100"), CategoryID: &food.ID})
	require.NoError(t, err)

	_, err = bt.SaveBudget(ctx, 1, BudgetRequest{Amount: dec("100")})
	require.Equal(t, appErrors.ErrInvalidInput, appErrors.CodeOf(err))

	_, err = bt.SaveBudget(ctx, 2, BudgetRequest{Month: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), Amount: dec("100"), CategoryID: &food.ID})
	require.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err), "another owner's category")
	require.Equal(t, "Category not found.", appErrors.MessageOf(err))

	require.NoError(t, bt.DeleteBudget(ctx, 1, overall.ID))
	err = bt.DeleteBudget(ctx, 1, overall.ID)
	require.Equal(t, appErrors.ErrNotFound, appErrors.CodeOf(err))
}

func TestPatchApply(t *testing.T) {
	category := Category{ID: 1, Name: "Food", Color: "#ffffff"}
	require.Equal(t, category, CategoryPatch{}.Apply(category))
	require.Equal(t, "Groceries", CategoryPatch{Name: ptr("Groceries")}.Apply(category).Name)

	catID := int64(4)
	expense := Expense{ID: 1, Description: "Lunch", Amount: dec("1"), CategoryID: &catID}
	got := ExpensePatch{CategoryID: ptr(int64(5)), ClearCategory: true}.Apply(expense)
	require.Nil(t, got.CategoryID)
	require.Equal(t, int64(4), *expense.CategoryID, "apply must not mutate the original")
}

func TestMoneyConversions(t *testing.T) {
	require.Equal(t, int64(2050), ToCents(dec("20.50")))
	require.Equal(t, "20.50", FormatAmount(FromCents(2050)))
	require.True(t, dec("0.3").Equal(FromCents(10).Add(FromCents(20))))

	rounded, err := NormalizeAmount(dec("2.345"))
	require.NoError(t, err)
	require.Equal(t, "2.35", FormatAmount(rounded))

	_, err = NormalizeAmount(MaxAmount)
	require.NoError(t, err)
}
