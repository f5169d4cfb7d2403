package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusFailed         Status = "failed"
)

// CanTransitionTo reports whether a ledger row in status s may be moved to next.
// Transitions only go forward; paid and failed are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPendingPayment, "":
		return next == StatusPaid || next == StatusFailed
	default:
		return false
	}
}

// ParseStatus reads a status cell. Legacy rows decorated the value
// (e.g. "paid ✅"), so only the leading word is significant.
func ParseStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(s, " \t"); i > 0 {
		s = s[:i]
	}
	return Status(s)
}

type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeDineIn   OrderType = "dine-in" // legacy, read-only
)

var (
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidItem      = errors.New("invalid item")
	ErrMissingCustomer  = errors.New("customer name and email are required")
	ErrMissingAddress   = errors.New("delivery address is required")
)

// ParseOrderType accepts every type that may appear in the ledger,
// including the retired dine-in variant.
func ParseOrderType(raw string) (OrderType, error) {
	switch t := OrderType(strings.ToLower(strings.TrimSpace(raw))); t {
	case OrderTypePickup, OrderTypeDelivery, OrderTypeDineIn:
		return t, nil
	}
	return "", ErrInvalidOrderType
}

// Orderable reports whether new checkouts may use this type.
func (t OrderType) Orderable() bool {
	return t == OrderTypePickup || t == OrderTypeDelivery
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

// Validate rejects prices finer than a penny: the provider charges each line
// in whole minor units, so the ledger total must be built from the same.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Name) == "" || li.Quantity < 1 || li.UnitPrice.IsNegative() {
		return ErrInvalidItem
	}
	if !li.UnitPrice.Equal(li.UnitPrice.Round(2)) {
		return ErrInvalidItem
	}
	return nil
}

// LineTotal is unitPrice × quantity, unrounded.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

type Order struct {
	ID                string
	Status            Status
	Type              OrderType
	Customer          Customer
	FulfillmentDetail string
	Items             []LineItem
	Notes             string
	Discount          *Discount
	Subtotal          decimal.Decimal
	Total             decimal.Decimal
	CreatedAt         time.Time
}

// Validate checks the caller-supplied part of a new order.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrEmptyCart
	}
	for _, it := range o.Items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(o.Customer.Name) == "" || strings.TrimSpace(o.Customer.Email) == "" {
		return ErrMissingCustomer
	}
	if !o.Type.Orderable() {
		return ErrInvalidOrderType
	}
	if o.Type == OrderTypeDelivery && strings.TrimSpace(o.FulfillmentDetail) == "" {
		return ErrMissingAddress
	}
	return nil
}

// Price fills Subtotal and Total from the items and the optional discount.
func (o *Order) Price() {
	o.Subtotal = Subtotal(o.Items)
	o.Total = o.Discount.Apply(o.Subtotal)
}

// Subtotal sums unitPrice × quantity, rounded to the currency minor unit.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum.Round(2)
}
