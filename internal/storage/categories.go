package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/qwertyz15/expense-app/internal/budget"
)

const categoryColumns = "id, owner_id, name, color, created_at"

func scanCategory(row interface{ Scan(...any) error }) (budget.Category, error) {
	var c dbCategory
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
		return budget.Category{}, err
	}
	return c.toCategory(), nil
}

func (s *SQLStorage) SaveCategory(ctx context.Context, category budget.Category) (budget.Category, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO categories (owner_id, name, color, created_at) VALUES (?, ?, ?, ?);"
	res, err := s.db.ExecContext(ctx, query, category.OwnerID, category.Name, category.Color, timeArg(category.CreatedAt))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return budget.Category{}, conflict("Category already exists.")
		}
		return budget.Category{}, internalError(ctx, "SaveCategory", "save category", "Failed to save the category, try again later.", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return budget.Category{}, internalError(ctx, "SaveCategory", "read new category id", "Failed to save the category, try again later.", err)
	}
	category.ID = id
	return category, nil
}

func (s *SQLStorage) GetCategory(ctx context.Context, ownerID, id int64) (budget.Category, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + categoryColumns + " FROM categories WHERE id = ? AND owner_id = ?"
	category, err := scanCategory(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return budget.Category{}, notFound("Category not found.")
		}
		return budget.Category{}, internalError(ctx, "GetCategory", "get category", "Failed to get the category, try again later.", err)
	}
	return category, nil
}

func (s *SQLStorage) ListCategories(ctx context.Context, ownerID int64) ([]budget.Category, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT " + categoryColumns + " FROM categories WHERE owner_id = ? ORDER BY name ASC, id ASC"
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, internalError(ctx, "ListCategories", "list categories", "Failed to get categories, try again later.", err)
	}
	defer rows.Close()

	categories := []budget.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, internalError(ctx, "ListCategories", "scan category", "Failed to get categories, try again later.", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(ctx, "ListCategories", "iterate categories", "Failed to get categories, try again later.", err)
	}
	return categories, nil
}

func (s *SQLStorage) IsCategoryNameTaken(ctx context.Context, ownerID int64, name string, exceptID int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists int
	query := "SELECT 1 FROM categories WHERE owner_id = ? AND name = ? AND id <> ? LIMIT 1"
	err := s.db.QueryRowContext(ctx, query, ownerID, name, exceptID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(ctx, "IsCategoryNameTaken", "check category name", "Failed to save the category, try again later.", err)
	}
	return true, nil
}

func (s *SQLStorage) UpdateCategory(ctx context.Context, category budget.Category) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "UPDATE categories SET name = ?, color = ? WHERE id = ? AND owner_id = ?"
	if _, err := s.db.ExecContext(ctx, query, category.Name, category.Color, category.ID, category.OwnerID); err != nil {
		if s.dialect.isDuplicate(err) {
			return conflict("Category already exists.")
		}
		return internalError(ctx, "UpdateCategory", "update category", "Failed to update the category, try again later.", err)
	}
	return nil
}

// DeleteCategory detaches the category's expenses, drops its budgets and
// removes it, in one transaction.
func (s *SQLStorage) DeleteCategory(ctx context.Context, ownerID, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM categories WHERE id = ? AND owner_id = ?", id, ownerID).Scan(&exists)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE expenses SET category_id = NULL WHERE category_id = ? AND owner_id = ?", id, ownerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM budgets WHERE category_id = ? AND owner_id = ?", id, ownerID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ? AND owner_id = ?", id, ownerID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Category not found.")
	}
	if err != nil {
		return internalError(ctx, "DeleteCategory", "delete category", "Failed to delete the category, try again later.", err)
	}
	return nil
}
