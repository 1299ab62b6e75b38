package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/qwertyz15/expense-app/internal/budget"
)

func (s *SQLStorage) SaveBudget(ctx context.Context, b budget.Budget) (budget.Budget, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO budgets (owner_id, category_id, month, amount_cents) VALUES (?, ?, ?, ?);"
	res, err := s.db.ExecContext(ctx, query, b.OwnerID, nullableID(b.CategoryID), dateArg(b.Month), budget.ToCents(b.Amount))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return budget.Budget{}, conflict("Budget for this month already exists.")
		}
		return budget.Budget{}, internalError(ctx, "SaveBudget", "save budget", "Failed to save the budget, try again later.", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return budget.Budget{}, internalError(ctx, "SaveBudget", "read new budget id", "Failed to save the budget, try again later.", err)
	}
	b.ID = id
	return b, nil
}

// IsBudgetExists treats a nil categoryID as the overall budget. SQL unique
// keys do not compare NULLs, so that case is only enforced here.
func (s *SQLStorage) IsBudgetExists(ctx context.Context, ownerID int64, categoryID *int64, month time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT 1 FROM budgets WHERE owner_id = ? AND month = ? AND category_id IS NULL LIMIT 1"
	args := []any{ownerID, dateArg(month)}
	if categoryID != nil {
		query = "SELECT 1 FROM budgets WHERE owner_id = ? AND month = ? AND category_id = ? LIMIT 1"
		args = append(args, *categoryID)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(ctx, "IsBudgetExists", "check budget existence", "Failed to save the budget, try again later.", err)
	}
	return true, nil
}

func (s *SQLStorage) ListBudgets(ctx context.Context, ownerID int64) ([]budget.Budget, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return reader{q: s.db}.ListBudgets(ctx, ownerID)
}

func (s *SQLStorage) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM budgets WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return internalError(ctx, "DeleteBudget", "delete budget", "Failed to delete the budget, try again later.", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return internalError(ctx, "DeleteBudget", "check affected rows", "Failed to delete the budget, try again later.", err)
	}
	if rowsAffected == 0 {
		return notFound("Budget not found.")
	}
	return nil
}
