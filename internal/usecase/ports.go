package usecase

import (
	"context"

	domain "github.com/emunro22/root-fuel/internal/entity"
)

// Persistence shape of a ledger row (kept out of domain).
type OrderRecord struct {
	ID, Status, Type, CustomerName, CustomerEmail, CustomerPhone string
	FulfillmentDetail, Items, Total, Notes, Discount, CreatedAt  string
}

// Ledger is the external order table. Rows are keyed by order id and never deleted.
type Ledger interface {
	Append(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, orderID string) (*OrderRecord, error)
	// TransitionStatus moves the row to status `to` if the current status allows it.
	// It returns the status found before the call and whether a write happened.
	TransitionStatus(ctx context.Context, orderID string, to domain.Status) (prev domain.Status, changed bool, err error)
}

type SessionRequest struct {
	OrderID         string
	CustomerEmail   string
	Items           []domain.LineItem
	PromotionCodeID string
	Metadata        map[string]string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Promotion struct {
	ID       string
	Code     string
	Discount domain.Discount
}

// PaymentEvent is a verified provider event reduced to what fulfillment needs.
type PaymentEvent struct {
	ID            string
	Kind          string
	SessionID     string
	PaymentStatus string
	AmountTotal   int64 // minor units collected
	CustomerEmail string
	Metadata      map[string]string
}

type PaymentProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	FindPromotion(ctx context.Context, code string) (Promotion, error)
	GetPromotion(ctx context.Context, id string) (Promotion, error)
	// ParseEvent verifies the signature before decoding anything.
	ParseEvent(payload []byte, signature string) (PaymentEvent, error)
}

type Email struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, e Email) error
}

// Composer renders notification bodies.
type Composer interface {
	CustomerConfirmation(c Confirmation) (subject, html string, err error)
	MerchantNotice(c Confirmation) (subject, html string, err error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type OrderCache interface {
	SetStatus(ctx context.Context, orderID string, status string) error
	GetStatus(ctx context.Context, orderID string) (string, bool, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev OrderEvent) error
}

type Recorder interface {
	Checkout(outcome string)
	WebhookEvent(kind, outcome string)
	Step(step, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Checkout(string)             {}
func (nopRecorder) WebhookEvent(string, string) {}
func (nopRecorder) Step(string, string)         {}
