package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/qwertyz15/expense-app/internal/budget"
)

const expenseColumns = "id, owner_id, category_id, description, amount_cents, spent_at, created_at"

func scanExpense(row interface{ Scan(...any) error }) (budget.Expense, error) {
	var e dbExpense
	if err := row.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &e.Description, &e.AmountCents, &e.SpentAt, &e.CreatedAt); err != nil {
		return budget.Expense{}, err
	}
	return e.toExpense(), nil
}

func (s *SQLStorage) SaveExpense(ctx context.Context, expense budget.Expense) (budget.Expense, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO expenses (owner_id, category_id, description, amount_cents, spent_at, created_at) VALUES (?, ?, ?, ?, ?, ?);"
	res, err := s.db.ExecContext(ctx, query,
		expense.OwnerID,
		nullableID(expense.CategoryID),
		expense.Description,
		budget.ToCents(expense.Amount),
		timeArg(expense.SpentAt),
		timeArg(expense.CreatedAt),
	)
	if err != nil {
		return budget.Expense{}, internalError(ctx, "SaveExpense", "save expense", "Failed to save the expense, try again later.", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return budget.Expense{}, internalError(ctx, "SaveExpense", "read new expense id", "Failed to save the expense, try again later.", err)
	}
	expense.ID = id
	return expense, nil
}

func (s *SQLStorage) GetExpense(ctx context.Context, ownerID, id int64) (budget.Expense, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + expenseColumns + " FROM expenses WHERE id = ? AND owner_id = ?"
	expense, err := scanExpense(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Expense{}, notFound("Expense not found.")
		}
		return budget.Expense{}, internalError(ctx, "GetExpense", "get expense", "Failed to get the expense, try again later.", err)
	}
	return expense, nil
}

// ListExpenses returns the owner's expenses matching filter, newest first.
func (s *SQLStorage) ListExpenses(ctx context.Context, ownerID int64, filter budget.ExpenseFilter) ([]budget.Expense, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	conditions := []string{"owner_id = ?"}
	args := []any{ownerID}
	if filter.CategoryID != nil {
		conditions = append(conditions, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.From != nil {
		conditions = append(conditions, "spent_at >= ?")
		args = append(args, timeArg(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "spent_at < ?")
		args = append(args, timeArg(*filter.To))
	}

	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(conditions, " AND ") + " ORDER BY spent_at DESC, id DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internalError(ctx, "ListExpenses", "list expenses", "Failed to get expenses, try again later.", err)
	}
	defer rows.Close()

	expenses := []budget.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, internalError(ctx, "ListExpenses", "scan expense", "Failed to get expenses, try again later.", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListExpenses", "iterate expenses", "Failed to get expenses, try again later.", err)
	}
	return expenses, nil
}

func (s *SQLStorage) UpdateExpense(ctx context.Context, expense budget.Expense) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "UPDATE expenses SET category_id = ?, description = ?, amount_cents = ?, spent_at = ? WHERE id = ? AND owner_id = ?"
	_, err := s.db.ExecContext(ctx, query,
		nullableID(expense.CategoryID),
		expense.Description,
		budget.ToCents(expense.Amount),
		timeArg(expense.SpentAt),
		expense.ID,
		expense.OwnerID,
	)
	if err != nil {
		return internalError(ctx, "UpdateExpense", "update expense", "Failed to update the expense, try again later.", err)
	}
	return nil
}

func (s *SQLStorage) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return internalError(ctx, "DeleteExpense", "delete expense", "Failed to delete the expense, try again later.", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return internalError(ctx, "DeleteExpense", "check affected rows", "Failed to delete the expense, try again later.", err)
	}
	if rowsAffected == 0 {
		return notFound("Expense not found.")
	}
	return nil
}
