package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/shopspring/decimal"
)

// Querier is the read side the engine aggregates over. Every method is
// scoped to one owner; from is inclusive and to exclusive.
type Querier interface {
	TotalSpent(ctx context.Context, ownerID int64) (decimal.Decimal, error)
	SpentBetween(ctx context.Context, ownerID int64, from, to time.Time) (decimal.Decimal, error)
	ExpensesBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]ExpensePoint, error)
	CategoryTotals(ctx context.Context, ownerID int64, limit int) ([]CategoryTotal, error)
	ListBudgets(ctx context.Context, ownerID int64) ([]budget.Budget, error)
}

// Store runs fn against a consistent read-only view of the data.
type Store interface {
	Querier
	Snapshot(ctx context.Context, fn func(q Querier) error) error
}

// Engine computes reports. Calendar days are taken in loc.
type Engine struct {
	store Store
	loc   *time.Location
}

func NewEngine(store Store, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, loc: loc}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) TotalSpent(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	return totalSpent(ctx, e.store, ownerID)
}

// MonthToDate sums expenses from the first of today's month up to the end
// of today. Expenses dated later than today are not counted.
func (e *Engine) MonthToDate(ctx context.Context, ownerID int64, today time.Time) (decimal.Decimal, error) {
	return e.monthToDate(ctx, e.store, ownerID, today)
}

// DailyTotals sums expenses per calendar day over [start, end], both
// inclusive. Days without expenses are left out. A zero end means today
// and a zero start means six days before today, each on its own; a
// defaulted start that lands after end yields no days.
func (e *Engine) DailyTotals(ctx context.Context, ownerID int64, start, end, today time.Time) ([]DailyTotal, error) {
	startDefaulted := start.IsZero()
	if end.IsZero() {
		end = today
	}
	if startDefaulted {
		start = budget.StartOfDay(today, e.loc).AddDate(0, 0, -(DailyTotalsWindow - 1))
	}

	from := budget.StartOfDay(start, e.loc)
	to := budget.StartOfDay(end, e.loc).AddDate(0, 0, 1)
	if !from.Before(to) {
		if startDefaulted {
			return []DailyTotal{}, nil
		}
		return nil, appErrors.New(appErrors.ErrInvalidInput, "start_date must be on or before end_date.")
	}

	points, err := e.store.ExpensesBetween(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses for daily totals: %w", err)
	}
	return bucketByDay(points, e.loc), nil
}

// TopCategories ranks the owner's categories by total spent, highest
// first, ties going to the lower category id. Uncategorized expenses are
// not ranked.
func (e *Engine) TopCategories(ctx context.Context, ownerID int64, limit int) ([]CategoryTotal, error) {
	return topCategories(ctx, e.store, ownerID, limit)
}

// Dashboard reads every figure from one snapshot so the numbers agree
// with each other.
func (e *Engine) Dashboard(ctx context.Context, ownerID int64, now time.Time) (DashboardSummary, error) {
	var summary DashboardSummary
	err := e.store.Snapshot(ctx, func(q Querier) error {
		total, err := totalSpent(ctx, q, ownerID)
		if err != nil {
			return err
		}
		monthToDate, err := e.monthToDate(ctx, q, ownerID, now)
		if err != nil {
			return err
		}
		budgets, err := q.ListBudgets(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("failed to get budgets: %w", err)
		}
		top, err := topCategories(ctx, q, ownerID, DefaultTopCategories)
		if err != nil {
			return err
		}

		summary = DashboardSummary{
			TotalSpent:    total,
			MonthToDate:   monthToDate,
			Budgets:       nonNil(budgets),
			TopCategories: nonNil(top),
		}
		return nil
	})
	if err != nil {
		return DashboardSummary{}, err
	}
	return summary, nil
}

func (e *Engine) monthToDate(ctx context.Context, q Querier, ownerID int64, today time.Time) (decimal.Decimal, error) {
	day := budget.StartOfDay(today, e.loc)
	from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, e.loc)
	to := day.AddDate(0, 0, 1)

	sum, err := q.SpentBetween(ctx, ownerID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get month to date total: %w", err)
	}
	return sum, nil
}

func totalSpent(ctx context.Context, q Querier, ownerID int64) (decimal.Decimal, error) {
	sum, err := q.TotalSpent(ctx, ownerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get total spent: %w", err)
	}
	return sum, nil
}

func topCategories(ctx context.Context, q Querier, ownerID int64, limit int) ([]CategoryTotal, error) {
	if limit <= 0 {
		limit = DefaultTopCategories
	}
	totals, err := q.CategoryTotals(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get category totals: %w", err)
	}
	return nonNil(totals), nil
}

func bucketByDay(points []ExpensePoint, loc *time.Location) []DailyTotal {
	sums := make(map[time.Time]decimal.Decimal)
	for _, p := range points {
		day := budget.StartOfDay(p.SpentAt, loc)
		sums[day] = sums[day].Add(p.Amount)
	}

	out := make([]DailyTotal, 0, len(sums))
	for day, total := range sums {
		if total.IsZero() {
			continue
		}
		out = append(out, DailyTotal{Day: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
