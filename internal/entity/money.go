package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

var ErrInvalidDiscount = errors.New("invalid discount")

// Discount is the provider-independent effect of a promotion code.
// Amount is 0..100 for percent, a major-unit amount for fixed.
type Discount struct {
	Kind   DiscountKind
	Amount decimal.Decimal
}

func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountPercent:
		if d.Amount.IsNegative() || d.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return ErrInvalidDiscount
		}
	case DiscountFixed:
		if d.Amount.IsNegative() {
			return ErrInvalidDiscount
		}
	default:
		return ErrInvalidDiscount
	}
	return nil
}

// Apply returns the discounted total for subtotal. A nil discount is a no-op.
// The result never drops below zero.
func (d *Discount) Apply(subtotal decimal.Decimal) decimal.Decimal {
	if d == nil {
		return subtotal.Round(2)
	}
	var off decimal.Decimal
	switch d.Kind {
	case DiscountPercent:
		off = subtotal.Mul(d.Amount).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		off = decimal.Min(d.Amount, subtotal)
	}
	total := subtotal.Sub(off)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// ToMinor converts a major-unit amount to minor units (pence).
func ToMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromMinor converts minor units (pence) to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Reconciles reports whether two totals agree within one minor unit.
func Reconciles(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.New(1, -2))
}
