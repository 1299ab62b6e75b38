package storage

import (
	"context"
	"time"

	"github.com/qwertyz15/expense-app/internal/budget"
	"github.com/qwertyz15/expense-app/internal/report"
	"github.com/shopspring/decimal"
)

// reader answers report queries through either the pool or a snapshot
// transaction.
type reader struct {
	q queryer
}

func (r reader) TotalSpent(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	var cents int64
	query := "SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE owner_id = ?"
	if err := r.q.QueryRowContext(ctx, query, ownerID).Scan(&cents); err != nil {
		return decimal.Zero, internalError(ctx, "TotalSpent", "sum expenses", "Failed to build the report, try again later.", err)
	}
	return budget.FromCents(cents), nil
}

func (r reader) SpentBetween(ctx context.Context, ownerID int64, from, to time.Time) (decimal.Decimal, error) {
	var cents int64
	query := "SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE owner_id = ? AND spent_at >= ? AND spent_at < ?"
	if err := r.q.QueryRowContext(ctx, query, ownerID, timeArg(from), timeArg(to)).Scan(&cents); err != nil {
		return decimal.Zero, internalError(ctx, "SpentBetween", "sum expenses in range", "Failed to build the report, try again later.", err)
	}
	return budget.FromCents(cents), nil
}

func (r reader) ExpensesBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]report.ExpensePoint, error) {
	query := "SELECT spent_at, amount_cents FROM expenses WHERE owner_id = ? AND spent_at >= ? AND spent_at < ? ORDER BY spent_at ASC"
	rows, err := r.q.QueryContext(ctx, query, ownerID, timeArg(from), timeArg(to))
	if err != nil {
		return nil, internalError(ctx, "ExpensesBetween", "list expenses in range", "Failed to build the report, try again later.", err)
	}
	defer rows.Close()

	var points []report.ExpensePoint
	for rows.Next() {
		var spentAt dbTime
		var cents int64
		if err := rows.Scan(&spentAt, &cents); err != nil {
			return nil, internalError(ctx, "ExpensesBetween", "scan expense", "Failed to build the report, try again later.", err)
		}
		points = append(points, report.ExpensePoint{SpentAt: spentAt.Time, Amount: budget.FromCents(cents)})
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ExpensesBetween", "iterate expenses", "Failed to build the report, try again later.", err)
	}
	return points, nil
}

// CategoryTotals ranks categories by total spent, ties broken by the lower
// id. Uncategorized expenses are left out by the join.
func (r reader) CategoryTotals(ctx context.Context, ownerID int64, limit int) ([]report.CategoryTotal, error) {
	query := `SELECT c.id, c.name, c.color, SUM(e.amount_cents) AS total
        FROM expenses e
        JOIN categories c ON c.id = e.category_id AND c.owner_id = e.owner_id
        WHERE e.owner_id = ?
        GROUP BY c.id, c.name, c.color
        ORDER BY total DESC, c.id ASC
        LIMIT ?`
	rows, err := r.q.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, internalError(ctx, "CategoryTotals", "rank categories", "Failed to build the report, try again later.", err)
	}
	defer rows.Close()

	var totals []report.CategoryTotal
	for rows.Next() {
		var t report.CategoryTotal
		var cents int64
		if err := rows.Scan(&t.CategoryID, &t.Name, &t.Color, &cents); err != nil {
			return nil, internalError(ctx, "CategoryTotals", "scan category total", "Failed to build the report, try again later.", err)
		}
		t.Total = budget.FromCents(cents)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "CategoryTotals", "iterate category totals", "Failed to build the report, try again later.", err)
	}
	return totals, nil
}

func (r reader) ListBudgets(ctx context.Context, ownerID int64) ([]budget.Budget, error) {
	query := "SELECT id, owner_id, category_id, month, amount_cents FROM budgets WHERE owner_id = ? ORDER BY month DESC, id ASC"
	rows, err := r.q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, internalError(ctx, "ListBudgets", "list budgets", "Failed to get budgets, try again later.", err)
	}
	defer rows.Close()

	budgets := []budget.Budget{}
	for rows.Next() {
		var b dbBudget
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.CategoryID, &b.Month, &b.AmountCents); err != nil {
			return nil, internalError(ctx, "ListBudgets", "scan budget", "Failed to get budgets, try again later.", err)
		}
		budgets = append(budgets, b.toBudget())
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListBudgets", "iterate budgets", "Failed to get budgets, try again later.", err)
	}
	return budgets, nil
}

func (s *SQLStorage) TotalSpent(ctx context.Context, ownerID int64) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reader{q: s.db}.TotalSpent(ctx, ownerID)
}

func (s *SQLStorage) SpentBetween(ctx context.Context, ownerID int64, from, to time.Time) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reader{q: s.db}.SpentBetween(ctx, ownerID, from, to)
}

func (s *SQLStorage) ExpensesBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]report.ExpensePoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reader{q: s.db}.ExpensesBetween(ctx, ownerID, from, to)
}

func (s *SQLStorage) CategoryTotals(ctx context.Context, ownerID int64, limit int) ([]report.CategoryTotal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reader{q: s.db}.CategoryTotals(ctx, ownerID, limit)
}

// Snapshot runs fn inside a read-only transaction so every query sees the
// same data.
func (s *SQLStorage) Snapshot(ctx context.Context, fn func(q report.Querier) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, s.dialect.snapshotOptions)
	if err != nil {
		return internalError(ctx, "Snapshot", "begin snapshot", "Failed to build the report, try again later.", err)
	}
	defer tx.Rollback()

	if err := fn(reader{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError(ctx, "Snapshot", "commit snapshot", "Failed to build the report, try again later.", err)
	}
	return nil
}
