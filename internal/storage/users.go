package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qwertyz15/expense-app/internal/auth"
)

const userColumns = "id, name, email, password_hash, created_at"

func (s *SQLStorage) SaveUser(ctx context.Context, user auth.User) (auth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?);"
	res, err := s.db.ExecContext(ctx, query, user.Name, user.Email, user.PasswordHashed, timeArg(user.CreatedAt))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return auth.User{}, conflict("Email already registered.")
		}
		return auth.User{}, internalError(ctx, "SaveUser", "save user", "Registration failed, try again later.", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return auth.User{}, internalError(ctx, "SaveUser", "read new user id", "Registration failed, try again later.", err)
	}
	user.ID = id
	return user, nil
}

func (s *SQLStorage) GetUserByID(ctx context.Context, id int64) (auth.User, error) {
	return s.getUser(ctx, "GetUserByID", "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *SQLStorage) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.getUser(ctx, "GetUserByEmail", "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (s *SQLStorage) getUser(ctx context.Context, function, query string, arg any) (auth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var u dbUser
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, notFound("User not found.")
		}
		return auth.User{}, internalError(ctx, function, "get user", "Failed to get user, try again later.", err)
	}
	return u.toUser(), nil
}

func (s *SQLStorage) IsEmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email = ? LIMIT 1", email).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, internalError(ctx, "IsEmailExists", "check email existence", "Registration failed, try again later.", err)
	}
	return true, nil
}

// DeleteUser removes the user's expenses, budgets and categories and then
// the user, all in one transaction.
func (s *SQLStorage) DeleteUser(ctx context.Context, userID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var deleted int64
	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		for _, query := range []string{
			"DELETE FROM expenses WHERE owner_id = ?",
			"DELETE FROM budgets WHERE owner_id = ?",
			"DELETE FROM categories WHERE owner_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, query, userID); err != nil {
				return fmt.Errorf("%s: %w", query, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if deleted == 0 {
			return errUserMissing
		}
		return nil
	})
	if errors.Is(err, errUserMissing) {
		return notFound("User not found.")
	}
	if err != nil {
		return internalError(ctx, "DeleteUser", "delete user", "Failed to delete account, try again later.", err)
	}
	return nil
}

var errUserMissing = errors.New("user row missing")
