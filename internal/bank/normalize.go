package bank

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// parseAmount accepts "1,500.00", "-12.3" and "$ 10".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// parseDate tries layouts in order. Date-only layouts are read in loc so
// the calendar day matches the institution's own statement.
func parseDate(s string, loc *time.Location, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q", s)
}

// signed applies the institution's direction indicator to an amount that
// may have been reported unsigned. With no indicator the sign decides.
func signed(amount decimal.Decimal, dir Direction) (decimal.Decimal, Direction) {
	switch dir {
	case Credit:
		return amount.Abs(), Credit
	case Debit:
		return amount.Abs().Neg(), Debit
	}
	if amount.IsNegative() {
		return amount, Debit
	}
	return amount, Credit
}

func dateParam(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02")
}
