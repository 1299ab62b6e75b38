package budget

import (
	"fmt"
	"time"

	appErrors "github.com/qwertyz15/expense-app/customErrors"
	"github.com/shopspring/decimal"
)

const AmountScale = 2

// MaxAmount is the largest amount a NUMERIC(12,2) column can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// NormalizeAmount rounds to cents, half away from zero, and checks the
// result is positive and in range.
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	rounded := amount.Round(AmountScale)
	if !rounded.IsPositive() {
		return decimal.Decimal{}, invalidInput("Amount must be greater than zero.")
	}
	if rounded.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, invalidInput(fmt.Sprintf("Amount is too large, the limit is: %s", MaxAmount.StringFixed(AmountScale)))
	}
	return rounded, nil
}

// ToCents converts a normalized amount to its integer storage form.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(AmountScale).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -AmountScale)
}

// FormatAmount renders an amount with exactly two fraction digits.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(AmountScale)
}

// MonthStart returns the first day of t's month as a UTC date.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// StorageTime is the instant as persisted: UTC at microsecond precision.
func StorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func invalidInput(message string) appErrors.ErrorResponse {
	return appErrors.New(appErrors.ErrInvalidInput, message)
}
