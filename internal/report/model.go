package report

import (
	"time"

	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/shopspring/decimal"
)

const DefaultTopCategories = 4

// DailyTotalsWindow is the number of days covered when no range is given.
const DailyTotalsWindow = 7

type DailyTotal struct {
	Day   time.Time
	Total decimal.Decimal
}

type CategoryTotal struct {
	CategoryID int64
	Name       string
	Color      string
	Total      decimal.Decimal
}

// ExpensePoint is the part of an expense the engine needs for bucketing.
type ExpensePoint struct {
	SpentAt time.Time
	Amount  decimal.Decimal
}

type DashboardSummary struct {
	TotalSpent    decimal.Decimal
	MonthToDate   decimal.Decimal
	Budgets       []budget.Budget
	TopCategories []CategoryTotal
}
