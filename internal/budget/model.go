package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCategoryColor = "#3b82f6"

// REQUESTS START:
type CategoryRequest struct {
	Name  string
	Color string
}

type ExpenseRequest struct {
	Description string
	Amount      decimal.Decimal
	SpentAt     *time.Time
	CategoryID  *int64
}

type BudgetRequest struct {
	Month      time.Time
	Amount     decimal.Decimal
	CategoryID *int64
}

// ExpenseQuery selects expenses by calendar dates, both ends inclusive.
type ExpenseQuery struct {
	CategoryID *int64
	StartDate  *time.Time
	EndDate    *time.Time
}

// REQUESTS END:

// PATCHES:

// CategoryPatch holds the fields a client asked to change; nil means
// leave as is.
type CategoryPatch struct {
	Name  *string
	Color *string
}

func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	return c
}

func (p CategoryPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil
}

// ExpensePatch holds the fields a client asked to change. ClearCategory
// detaches the expense from its category and wins over CategoryID.
type ExpensePatch struct {
	Description   *string
	Amount        *decimal.Decimal
	SpentAt       *time.Time
	CategoryID    *int64
	ClearCategory bool
}

func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.SpentAt != nil {
		e.SpentAt = *p.SpentAt
	}
	switch {
	case p.ClearCategory:
		e.CategoryID = nil
	case p.CategoryID != nil:
		id := *p.CategoryID
		e.CategoryID = &id
	}
	return e
}

func (p ExpensePatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.SpentAt == nil && p.CategoryID == nil && !p.ClearCategory
}

// MODELS:

type Category struct {
	ID        int64
	OwnerID   int64
	Name      string
	Color     string
	CreatedAt time.Time
}

type Expense struct {
	ID          int64
	OwnerID     int64
	Description string
	Amount      decimal.Decimal
	SpentAt     time.Time
	CategoryID  *int64
	CreatedAt   time.Time
}

// Budget is a spending limit for one month, either overall (nil
// CategoryID) or for a single category.
type Budget struct {
	ID         int64
	OwnerID    int64
	Month      time.Time
	Amount     decimal.Decimal
	CategoryID *int64
}

// ExpenseFilter is the storage side of ExpenseQuery: From is inclusive,
// To is exclusive.
type ExpenseFilter struct {
	CategoryID *int64
	From       *time.Time
	To         *time.Time
}

type Session struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}
