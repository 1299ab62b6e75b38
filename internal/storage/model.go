package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/qwertyz15/expense-app/internal/auth"
	"github.com/qwertyz15/expense-app/internal/budget"
)

const (
	timeLayout = "2006-01-02 15:04:05.000000"
	dateLayout = "2006-01-02"
)

var scanLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	dateLayout,
}

// dbTime scans DATETIME and DATE columns whether the driver hands over a
// time.Time (MySQL with parseTime) or text (SQLite).
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range scanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time value %q", s)
}

// Time parameters are bound as fixed width UTC text, which both engines
// compare in chronological order.
func timeArg(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func dateArg(t time.Time) string {
	return t.Format(dateLayout)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(id sql.NullInt64) *int64 {
	if !id.Valid {
		return nil
	}
	v := id.Int64
	return &v
}

type dbUser struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    dbTime
}

func (u dbUser) toUser() auth.User {
	return auth.User{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHashed: u.PasswordHash,
		CreatedAt:      u.CreatedAt.Time,
	}
}

type dbCategory struct {
	ID        int64
	OwnerID   int64
	Name      string
	Color     string
	CreatedAt dbTime
}

func (c dbCategory) toCategory() budget.Category {
	return budget.Category{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Name:      c.Name,
		Color:     c.Color,
		CreatedAt: c.CreatedAt.Time,
	}
}

type dbExpense struct {
	ID          int64
	OwnerID     int64
	CategoryID  sql.NullInt64
	Description string
	AmountCents int64
	SpentAt     dbTime
	CreatedAt   dbTime
}

func (e dbExpense) toExpense() budget.Expense {
	return budget.Expense{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		CategoryID:  idPtr(e.CategoryID),
		Description: e.Description,
		Amount:      budget.FromCents(e.AmountCents),
		SpentAt:     e.SpentAt.Time,
		CreatedAt:   e.CreatedAt.Time,
	}
}

type dbBudget struct {
	ID          int64
	OwnerID     int64
	CategoryID  sql.NullInt64
	Month       dbTime
	AmountCents int64
}

func (b dbBudget) toBudget() budget.Budget {
	return budget.Budget{
		ID:         b.ID,
		OwnerID:    b.OwnerID,
		CategoryID: idPtr(b.CategoryID),
		Month:      b.Month.Time,
		Amount:     budget.FromCents(b.AmountCents),
	}
}
