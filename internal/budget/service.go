package budget

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/internal/contextutil"
	"github.com/qwertyz15/expense-app/logging"
)

const (
	MAX_CATEGORY_NAME_LENGTH  = 100
	MAX_CATEGORY_COLOR_LENGTH = 20
	MAX_EXPENSE_DESCRIPTION   = 255
	TOKEN_TYPE                = "bearer"
	dummyPassword             = "expense-app-dummy-password"
)

var colorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

type Storage interface {
	SaveUser(ctx context.Context, user auth.User) (auth.User, error)
	GetUserByID(ctx context.Context, id int64) (auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (auth.User, error)
	IsEmailExists(ctx context.Context, email string) (bool, error)
	DeleteUser(ctx context.Context, userID int64) error

	SaveCategory(ctx context.Context, category Category) (Category, error)
	GetCategory(ctx context.Context, ownerID, id int64) (Category, error)
	ListCategories(ctx context.Context, ownerID int64) ([]Category, error)
	IsCategoryNameTaken(ctx context.Context, ownerID int64, name string, exceptID int64) (bool, error)
	UpdateCategory(ctx context.Context, category Category) error
	DeleteCategory(ctx context.Context, ownerID, id int64) error

	SaveExpense(ctx context.Context, expense Expense) (Expense, error)
	GetExpense(ctx context.Context, ownerID, id int64) (Expense, error)
	ListExpenses(ctx context.Context, ownerID int64, filter ExpenseFilter) ([]Expense, error)
	UpdateExpense(ctx context.Context, expense Expense) error
	DeleteExpense(ctx context.Context, ownerID, id int64) error

	SaveBudget(ctx context.Context, b Budget) (Budget, error)
	IsBudgetExists(ctx context.Context, ownerID int64, categoryID *int64, month time.Time) (bool, error)
	ListBudgets(ctx context.Context, ownerID int64) ([]Budget, error)
	DeleteBudget(ctx context.Context, ownerID, id int64) error

	GetStorageType() string
	Ping(ctx context.Context) error
}

// BudgetTracker owns every write path: users, sessions, categories,
// expenses and budgets. Reads for reports live in the report package.
type BudgetTracker struct {
	storage     Storage
	tokens      *auth.TokenService
	loc         *time.Location
	now         func() time.Time
	StorageType string

	dummyMu   sync.Mutex
	dummyHash string
}

func NewBudgetTracker(s Storage, tokens *auth.TokenService, loc *time.Location) *BudgetTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &BudgetTracker{
		storage:     s,
		tokens:      tokens,
		loc:         loc,
		now:         time.Now,
		StorageType: s.GetStorageType(),
	}
}

// WithClock replaces the time source, for tests.
func (bt *BudgetTracker) WithClock(now func() time.Time) *BudgetTracker {
	bt.now = now
	return bt
}

func (bt *BudgetTracker) Now() time.Time {
	return bt.now()
}

func (bt *BudgetTracker) Location() *time.Location {
	return bt.loc
}

// CheckHealth reports whether the storage answers.
func (bt *BudgetTracker) CheckHealth(ctx context.Context) error {
	if err := bt.storage.Ping(ctx); err != nil {
		return appErrors.Wrap(appErrors.ErrInternal, "Storage is unavailable.", err)
	}
	return nil
}

// --- USERS --- //

func (bt *BudgetTracker) SaveUser(ctx context.Context, newUser auth.NewUser) (auth.User, error) {
	newUser.Name = strings.TrimSpace(newUser.Name)
	newUser.Email = strings.TrimSpace(newUser.Email)
	if err := newUser.ValidateUserFields(); err != nil {
		return auth.User{}, err
	}

	isEmailTaken, err := bt.storage.IsEmailExists(ctx, newUser.Email)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to check email availability: %w", err)
	}
	if isEmailTaken {
		return auth.User{}, appErrors.New(appErrors.ErrConflict, "Email already registered.")
	}

	hashedPassword, err := auth.HashPassword(newUser.PasswordPlain)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := auth.User{
		Name:           newUser.Name,
		Email:          newUser.Email,
		PasswordHashed: hashedPassword,
		CreatedAt:      StorageTime(bt.now()),
	}

	saved, err := bt.storage.SaveUser(ctx, user)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to registration: %w", err)
	}
	return saved, nil
}

// GenerateSession checks the credentials and issues a bearer token. The
// error never says whether the email or the password was wrong.
func (bt *BudgetTracker) GenerateSession(ctx context.Context, credentials auth.UserCredentialsPure) (Session, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	user, err := bt.storage.GetUserByEmail(ctx, strings.TrimSpace(credentials.Email))
	if err != nil {
		if !appErrors.IsCode(err, appErrors.ErrNotFound) {
			return Session{}, fmt.Errorf("failed to get user: %w", err)
		}
		// same bcrypt work as a wrong password
		auth.ComparePasswords(bt.dummyPasswordHash(ctx), credentials.PasswordPlain)
		logging.Logger.Debugf("[TraceID=%s] | login rejected: unknown email", traceID)
		return Session{}, invalidCredentials()
	}

	if !auth.ComparePasswords(user.PasswordHashed, credentials.PasswordPlain) {
		logging.Logger.Debugf("[TraceID=%s] | login rejected: wrong password for user %d", traceID, user.ID)
		return Session{}, invalidCredentials()
	}

	now := bt.now()
	token, err := bt.tokens.Issue(user.ID, now)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to issue token in BudgetTracker.GenerateSession() function | Error: %v", traceID, err)
		return Session{}, appErrors.Wrap(appErrors.ErrInternal, "Failed to create session, try again later.", err)
	}

	return Session{
		Token:     token,
		TokenType: TOKEN_TYPE,
		ExpiresAt: now.UTC().Truncate(auth.ClaimPrecision).Add(bt.tokens.Lifetime()),
	}, nil
}

func (bt *BudgetTracker) GetUser(ctx context.Context, userID int64) (auth.User, error) {
	user, err := bt.storage.GetUserByID(ctx, userID)
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// DeleteUser removes the account and everything it owns after checking
// the password once more.
func (bt *BudgetTracker) DeleteUser(ctx context.Context, userID int64, req auth.DeleteUser) error {
	if req.Password == "" {
		return invalidInput("Password cannot be empty!")
	}
	user, err := bt.storage.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !auth.ComparePasswords(user.PasswordHashed, req.Password) {
		return appErrors.New(appErrors.ErrAccessDenied, "Password is incorrect.")
	}
	if err := bt.storage.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// hashPassword is replaced in tests.
var hashPassword = auth.HashPassword

// dummyPasswordHash is computed on first use. A failed hash is logged and
// retried on the next call instead of being cached.
func (bt *BudgetTracker) dummyPasswordHash(ctx context.Context) string {
	bt.dummyMu.Lock()
	defer bt.dummyMu.Unlock()
	if bt.dummyHash == "" {
		hash, err := hashPassword(dummyPassword)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to hash dummy password in BudgetTracker.GenerateSession() function | Error: %v", contextutil.TraceIDFromContext(ctx), err)
			return ""
		}
		bt.dummyHash = hash
	}
	return bt.dummyHash
}

func invalidCredentials() error {
	return appErrors.Wrap(appErrors.ErrAuth, "Incorrect email or password.", auth.ErrInvalidCredential)
}

// --- CATEGORIES --- //

func (bt *BudgetTracker) SaveCategory(ctx context.Context, ownerID int64, req CategoryRequest) (Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Color == "" {
		req.Color = DefaultCategoryColor
	}
	if err := validateCategory(req.Name, req.Color); err != nil {
		return Category{}, err
	}

	taken, err := bt.storage.IsCategoryNameTaken(ctx, ownerID, req.Name, 0)
	if err != nil {
		return Category{}, fmt.Errorf("failed to check category name: %w", err)
	}
	if taken {
		return Category{}, categoryExists()
	}

	category, err := bt.storage.SaveCategory(ctx, Category{
		OwnerID:   ownerID,
		Name:      req.Name,
		Color:     req.Color,
		CreatedAt: StorageTime(bt.now()),
	})
	if err != nil {
		return Category{}, fmt.Errorf("failed to save category: %w", err)
	}
	return category, nil
}

func (bt *BudgetTracker) ListCategories(ctx context.Context, ownerID int64) ([]Category, error) {
	categories, err := bt.storage.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

func (bt *BudgetTracker) UpdateCategory(ctx context.Context, ownerID, id int64, patch CategoryPatch) (Category, error) {
	current, err := bt.storage.GetCategory(ctx, ownerID, id)
	if err != nil {
		return Category{}, fmt.Errorf("failed to get category: %w", err)
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	updated := patch.Apply(current)
	if err := validateCategory(updated.Name, updated.Color); err != nil {
		return Category{}, err
	}
	if updated.Name != current.Name {
		taken, err := bt.storage.IsCategoryNameTaken(ctx, ownerID, updated.Name, id)
		if err != nil {
			return Category{}, fmt.Errorf("failed to check category name: %w", err)
		}
		if taken {
			return Category{}, categoryExists()
		}
	}

	if err := bt.storage.UpdateCategory(ctx, updated); err != nil {
		return Category{}, fmt.Errorf("failed to update category: %w", err)
	}
	return updated, nil
}

// DeleteCategory keeps the category's expenses as uncategorized and drops
// its budgets.
func (bt *BudgetTracker) DeleteCategory(ctx context.Context, ownerID, id int64) error {
	if err := bt.storage.DeleteCategory(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func validateCategory(name, color string) error {
	if name == "" {
		return invalidInput("Category name cannot be empty!")
	}
	if len(name) > MAX_CATEGORY_NAME_LENGTH {
		return invalidInput(fmt.Sprintf("Category name is too long, the limit is: %d", MAX_CATEGORY_NAME_LENGTH))
	}
	if len(color) > MAX_CATEGORY_COLOR_LENGTH || !colorRegex.MatchString(color) {
		return invalidInput("Invalid color, example valid color: #3b82f6")
	}
	return nil
}

func categoryExists() error {
	return appErrors.New(appErrors.ErrConflict, "Category already exists.")
}

// --- EXPENSES --- //

func (bt *BudgetTracker) SaveExpense(ctx context.Context, ownerID int64, req ExpenseRequest) (Expense, error) {
	description := strings.TrimSpace(req.Description)
	if err := validateDescription(description); err != nil {
		return Expense{}, err
	}
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		return Expense{}, err
	}
	if err := bt.checkCategoryOwner(ctx, ownerID, req.CategoryID); err != nil {
		return Expense{}, err
	}

	now := bt.now()
	spentAt := now
	if req.SpentAt != nil {
		spentAt = *req.SpentAt
	}

	expense, err := bt.storage.SaveExpense(ctx, Expense{
		OwnerID:     ownerID,
		Description: description,
		Amount:      amount,
		SpentAt:     StorageTime(spentAt),
		CategoryID:  req.CategoryID,
		CreatedAt:   StorageTime(now),
	})
	if err != nil {
		return Expense{}, fmt.Errorf("failed to save expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns the owner's expenses, newest first. Query dates are
// calendar days in the tracker's time zone.
func (bt *BudgetTracker) ListExpenses(ctx context.Context, ownerID int64, query ExpenseQuery) ([]Expense, error) {
	var filter ExpenseFilter
	filter.CategoryID = query.CategoryID
	if query.StartDate != nil {
		from := StartOfDay(*query.StartDate, bt.loc)
		filter.From = &from
	}
	if query.EndDate != nil {
		to := StartOfDay(*query.EndDate, bt.loc).AddDate(0, 0, 1)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, invalidInput("start_date must be on or before end_date.")
	}

	expenses, err := bt.storage.ListExpenses(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses: %w", err)
	}
	return expenses, nil
}

func (bt *BudgetTracker) UpdateExpense(ctx context.Context, ownerID, id int64, patch ExpensePatch) (Expense, error) {
	current, err := bt.storage.GetExpense(ctx, ownerID, id)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to get expense: %w", err)
	}
	if patch.IsEmpty() {
		return current, nil
	}

	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if err := validateDescription(description); err != nil {
			return Expense{}, err
		}
		patch.Description = &description
	}
	if patch.Amount != nil {
		amount, err := NormalizeAmount(*patch.Amount)
		if err != nil {
			return Expense{}, err
		}
		patch.Amount = &amount
	}
	if patch.SpentAt != nil {
		spentAt := StorageTime(*patch.SpentAt)
		patch.SpentAt = &spentAt
	}
	if !patch.ClearCategory {
		if err := bt.checkCategoryOwner(ctx, ownerID, patch.CategoryID); err != nil {
			return Expense{}, err
		}
	}

	updated := patch.Apply(current)
	if err := bt.storage.UpdateExpense(ctx, updated); err != nil {
		return Expense{}, fmt.Errorf("failed to update expense: %w", err)
	}
	return updated, nil
}

func (bt *BudgetTracker) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	if err := bt.storage.DeleteExpense(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return nil
}

func (bt *BudgetTracker) checkCategoryOwner(ctx context.Context, ownerID int64, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	if _, err := bt.storage.GetCategory(ctx, ownerID, *categoryID); err != nil {
		if appErrors.IsCode(err, appErrors.ErrNotFound) {
			return appErrors.New(appErrors.ErrNotFound, "Category not found.")
		}
		return fmt.Errorf("failed to get category: %w", err)
	}
	return nil
}

func validateDescription(description string) error {
	if description == "" {
		return invalidInput("Description cannot be empty!")
	}
	if len(description) > MAX_EXPENSE_DESCRIPTION {
		return invalidInput(fmt.Sprintf("Description is too long, the limit is: %d", MAX_EXPENSE_DESCRIPTION))
	}
	return nil
}

// --- BUDGETS --- //

func (bt *BudgetTracker) SaveBudget(ctx context.Context, ownerID int64, req BudgetRequest) (Budget, error) {
	if req.Month.IsZero() {
		return Budget{}, invalidInput("Month cannot be empty!")
	}
	amount, err := NormalizeAmount(req.Amount)
	if err != nil {
		return Budget{}, err
	}
	if err := bt.checkCategoryOwner(ctx, ownerID, req.CategoryID); err != nil {
		return Budget{}, err
	}

	month := MonthStart(req.Month)
	exists, err := bt.storage.IsBudgetExists(ctx, ownerID, req.CategoryID, month)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to check budget existence: %w", err)
	}
	if exists {
		return Budget{}, appErrors.New(appErrors.ErrConflict, "Budget for this month already exists.")
	}

	saved, err := bt.storage.SaveBudget(ctx, Budget{
		OwnerID:    ownerID,
		Month:      month,
		Amount:     amount,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		return Budget{}, fmt.Errorf("failed to save budget: %w", err)
	}
	return saved, nil
}

func (bt *BudgetTracker) ListBudgets(ctx context.Context, ownerID int64) ([]Budget, error) {
	budgets, err := bt.storage.ListBudgets(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get budgets: %w", err)
	}
	return budgets, nil
}

func (bt *BudgetTracker) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	if err := bt.storage.DeleteBudget(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete budget: %w", err)
	}
	return nil
}
