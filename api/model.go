package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/qwertyz15/expense-app/internal/report"
	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

// REQUESTS START:
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type CategoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type CategoryUpdateRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type ExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	SpentAt     *time.Time      `json:"spent_at"`
	CategoryID  *int64          `json:"category_id"`
}

type ExpenseUpdateRequest struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	SpentAt     *time.Time       `json:"spent_at"`
	CategoryID  optionalID       `json:"category_id"`
}

type BudgetRequest struct {
	Month      string          `json:"month"`
	Amount     decimal.Decimal `json:"amount"`
	CategoryID *int64          `json:"category_id"`
}

// optionalID tells an explicit null apart from an absent field.
type optionalID struct {
	Set   bool
	Value *int64
}

func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

//REQUESTS END:

//RESPONSES:

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type CategoryResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	OwnerID int64  `json:"owner_id"`
}

type ExpenseResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	SpentAt     string `json:"spent_at"`
	CategoryID  *int64 `json:"category_id"`
	OwnerID     int64  `json:"owner_id"`
}

type BudgetResponse struct {
	ID         int64  `json:"id"`
	Month      string `json:"month"`
	Amount     string `json:"amount"`
	CategoryID *int64 `json:"category_id"`
	OwnerID    int64  `json:"owner_id"`
}

type DailyTotalResponse struct {
	Day   string `json:"day"`
	Total string `json:"total"`
}

type TopCategoryResponse struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Total      string `json:"total"`
}

type DashboardResponse struct {
	TotalSpent    string                `json:"total_spent"`
	MonthToDate   string                `json:"month_to_date"`
	Budgets       []BudgetResponse      `json:"budgets"`
	TopCategories []TopCategoryResponse `json:"top_categories"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrNotFound:
		return 404 // not found
	case appErrors.ErrInvalidInput:
		return 400 // bad request
	case appErrors.ErrAuth:
		return 401 // unauthorized
	case appErrors.ErrAccessDenied:
		return 403 // access denied
	case appErrors.ErrConflict:
		return 409 // conflict
	default:
		return 500 //internal error
	}
}

func UserToHttp(user auth.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(dateTimeLayout),
	}
}

func CategoryToHttp(category budget.Category) CategoryResponse {
	return CategoryResponse{
		ID:      category.ID,
		Name:    category.Name,
		Color:   category.Color,
		OwnerID: category.OwnerID,
	}
}

func ExpenseToHttp(expense budget.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          expense.ID,
		Description: expense.Description,
		Amount:      budget.FormatAmount(expense.Amount),
		SpentAt:     expense.SpentAt.UTC().Format(time.RFC3339Nano),
		CategoryID:  expense.CategoryID,
		OwnerID:     expense.OwnerID,
	}
}

func BudgetToHttp(b budget.Budget) BudgetResponse {
	return BudgetResponse{
		ID:         b.ID,
		Month:      b.Month.Format(dateLayout),
		Amount:     budget.FormatAmount(b.Amount),
		CategoryID: b.CategoryID,
		OwnerID:    b.OwnerID,
	}
}

func DailyTotalToHttp(total report.DailyTotal) DailyTotalResponse {
	return DailyTotalResponse{
		Day:   total.Day.Format(dateLayout),
		Total: budget.FormatAmount(total.Total),
	}
}

func TopCategoryToHttp(total report.CategoryTotal) TopCategoryResponse {
	return TopCategoryResponse{
		CategoryID: total.CategoryID,
		Name:       total.Name,
		Color:      total.Color,
		Total:      budget.FormatAmount(total.Total),
	}
}

func DashboardToHttp(summary report.DashboardSummary) DashboardResponse {
	resp := DashboardResponse{
		TotalSpent:    budget.FormatAmount(summary.TotalSpent),
		MonthToDate:   budget.FormatAmount(summary.MonthToDate),
		Budgets:       make([]BudgetResponse, 0, len(summary.Budgets)),
		TopCategories: make([]TopCategoryResponse, 0, len(summary.TopCategories)),
	}
	for _, b := range summary.Budgets {
		resp.Budgets = append(resp.Budgets, BudgetToHttp(b))
	}
	for _, c := range summary.TopCategories {
		resp.TopCategories = append(resp.TopCategories, TopCategoryToHttp(c))
	}
	return resp
}

// ExpenseCheckParams reads the list filters: category_id, start_date and
// end_date (YYYY-MM-DD, days in loc).
func ExpenseCheckParams(params url.Values, loc *time.Location) (budget.ExpenseQuery, error) {
	var query budget.ExpenseQuery

	if categoryStr := params.Get("category_id"); categoryStr != "" {
		id, err := strconv.ParseInt(categoryStr, 10, 64)
		if err != nil || id <= 0 {
			return query, invalidParam("category_id", categoryStr)
		}
		query.CategoryID = &id
	}

	start, err := dateParam(params, "start_date", loc)
	if err != nil {
		return query, err
	}
	end, err := dateParam(params, "end_date", loc)
	if err != nil {
		return query, err
	}
	query.StartDate = start
	query.EndDate = end
	return query, nil
}

func dateParam(params url.Values, name string, loc *time.Location) (*time.Time, error) {
	value := params.Get(name)
	if value == "" {
		return nil, nil
	}
	date, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return nil, invalidParam(name, value)
	}
	return &date, nil
}

func zeroIfNil(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// parseMonth accepts YYYY-MM-DD or YYYY-MM.
func parseMonth(value string) (time.Time, error) {
	for _, layout := range []string{dateLayout, "2006-01"} {
		if month, err := time.Parse(layout, value); err == nil {
			return month, nil
		}
	}
	return time.Time{}, invalidParam("month", value)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidParam("id", value)
	}
	return id, nil
}

func invalidParam(name, value string) error {
	return appErrors.New(appErrors.ErrInvalidInput, fmt.Sprintf("Invalid %s: '%s'", name, value))
}
