package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const scopeCheckout = "checkout"

type CheckoutInput struct {
	Items             []domain.LineItem
	Customer          domain.Customer
	OrderType         string
	FulfillmentDetail string
	Notes             string
	PromotionCodeID   string
	IdempotencyKey    string
}

type CheckoutOutput struct {
	OrderID   string          `json:"orderId"`
	SessionID string          `json:"sessionId"`
	URL       string          `json:"url"`
	Total     decimal.Decimal `json:"total"`
}

type Checkout struct {
	ledger   Ledger
	provider PaymentProvider
	idem     IdempotencyStore
	events   EventPublisher
	metrics  Recorder
	timeout  time.Duration
	newID    func() string
	now      func() time.Time
}

type CheckoutOption func(*Checkout)

func WithCheckoutIdempotency(s IdempotencyStore) CheckoutOption {
	return func(c *Checkout) { c.idem = s }
}
func WithCheckoutEvents(p EventPublisher) CheckoutOption {
	return func(c *Checkout) { c.events = p }
}
func WithCheckoutMetrics(r Recorder) CheckoutOption {
	return func(c *Checkout) { c.metrics = r }
}
func WithCheckoutTimeout(d time.Duration) CheckoutOption {
	return func(c *Checkout) {
		if d > 0 {
			c.timeout = d
		}
	}
}
func WithOrderIDs(gen func() string) CheckoutOption {
	return func(c *Checkout) { c.newID = gen }
}
func WithClock(now func() time.Time) CheckoutOption {
	return func(c *Checkout) { c.now = now }
}

func NewCheckout(ledger Ledger, provider PaymentProvider, opts ...CheckoutOption) *Checkout {
	c := &Checkout{
		ledger:   ledger,
		provider: provider,
		metrics:  nopRecorder{},
		timeout:  10 * time.Second,
		newID:    NewOrderID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOrderID returns a short human-legible id such as ORD-3FA85F64.
func NewOrderID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:8])
}

func (uc *Checkout) Execute(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	out, err := uc.execute(ctx, in)
	uc.metrics.Checkout(outcomeOf(err))
	return out, err
}

func (uc *Checkout) execute(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	log := logging.FromCtx(ctx)

	// Fast path: same idempotency key already produced a session
	locked := false
	if uc.idem != nil && in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		var (
			raw string
			ok  bool
			err error
		)
		uc.bounded(ctx, func(ictx context.Context) { raw, ok, err = uc.idem.Recall(ictx, scopeCheckout, key) })
		switch {
		case err != nil:
			log.Warn("idempotency recall failed", "err", err)
		case ok:
			var prev CheckoutOutput
			if err := json.Unmarshal([]byte(raw), &prev); err == nil {
				log.Info("checkout replayed", "order_id", prev.OrderID)
				return prev, nil
			}
			log.Warn("idempotency record unreadable, ignoring")
		}

		uc.bounded(ctx, func(ictx context.Context) { ok, err = uc.idem.TryLock(ictx, scopeCheckout, key) })
		if err != nil {
			return CheckoutOutput{}, upstream("idempotency lock", err)
		}
		if !ok {
			return CheckoutOutput{}, ErrDuplicate
		}
		locked = true
	}

	out, err := uc.create(ctx, in)
	if err != nil {
		if locked {
			uc.release(ctx, in.IdempotencyKey)
		}
		return CheckoutOutput{}, err
	}

	if locked {
		b, err := json.Marshal(out)
		if err == nil {
			uc.bounded(ctx, func(ictx context.Context) {
				err = uc.idem.Remember(ictx, scopeCheckout, in.IdempotencyKey, string(b))
			})
		}
		if err != nil {
			// Without a stored response the lock would turn every retry into a 409.
			log.Warn("idempotency remember failed, releasing key", "order_id", out.OrderID, "err", err)
			uc.release(ctx, in.IdempotencyKey)
		}
	}
	return out, nil
}

// bounded runs an idempotency store call under the checkout timeout. The
// caller going away does not cut short lock bookkeeping.
func (uc *Checkout) bounded(ctx context.Context, call func(context.Context)) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeout)
	defer cancel()
	call(ictx)
}

func (uc *Checkout) release(ctx context.Context, key string) {
	var err error
	uc.bounded(ctx, func(ictx context.Context) { err = uc.idem.Unlock(ictx, scopeCheckout, key) })
	if err != nil {
		logging.FromCtx(ctx).Warn("idempotency unlock failed", "err", err)
	}
}

func (uc *Checkout) create(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	log := logging.FromCtx(ctx)

	orderType, err := domain.ParseOrderType(in.OrderType)
	if err != nil {
		return CheckoutOutput{}, invalid(err)
	}
	o := &domain.Order{
		Status:            domain.StatusPendingPayment,
		Type:              orderType,
		Customer:          trimCustomer(in.Customer),
		FulfillmentDetail: strings.TrimSpace(in.FulfillmentDetail),
		Items:             in.Items,
		Notes:             strings.TrimSpace(in.Notes),
		CreatedAt:         uc.now(),
	}
	if err := o.Validate(); err != nil {
		return CheckoutOutput{}, invalid(err)
	}

	if in.PromotionCodeID != "" {
		pctx, cancel := context.WithTimeout(ctx, uc.timeout)
		promo, err := uc.provider.GetPromotion(pctx, in.PromotionCodeID)
		cancel()
		switch {
		case errors.Is(err, ErrNotFound):
			return CheckoutOutput{}, invalid(ErrUnknownPromotion)
		case err != nil:
			return CheckoutOutput{}, upstream("resolve promotion", err)
		}
		o.Discount = &promo.Discount
	}

	o.ID = uc.newID()
	o.Price()

	md, err := EncodeMetadata(o)
	if err != nil {
		return CheckoutOutput{}, invalid(err)
	}

	// Ledger first: an abandoned or failed session still leaves a trace.
	lctx, cancel := context.WithTimeout(ctx, uc.timeout)
	err = uc.ledger.Append(lctx, o)
	cancel()
	if err != nil {
		log.Error("ledger append failed", "order_id", o.ID, "err", err)
		return CheckoutOutput{}, upstream("ledger append", err)
	}

	sctx, cancel := context.WithTimeout(ctx, uc.timeout)
	sess, err := uc.provider.CreateSession(sctx, SessionRequest{
		OrderID:         o.ID,
		CustomerEmail:   o.Customer.Email,
		Items:           o.Items,
		PromotionCodeID: in.PromotionCodeID,
		Metadata:        md,
	})
	cancel()
	if err != nil {
		log.Error("payment session failed", "order_id", o.ID, "err", err)
		return CheckoutOutput{}, upstream("create payment session", err)
	}

	if uc.events != nil {
		ectx, cancel := context.WithTimeout(ctx, uc.timeout)
		if err := uc.events.PublishOrderEvent(ectx, OrderEvent{
			Type:       EventOrderCreated,
			OrderID:    o.ID,
			Status:     string(o.Status),
			OrderType:  string(o.Type),
			Total:      o.Total.StringFixed(2),
			OccurredAt: o.CreatedAt,
		}); err != nil {
			log.Warn("publish order.created failed", "order_id", o.ID, "err", err)
		}
		cancel()
	}

	log.Info("checkout session created", "order_id", o.ID, "session_id", sess.ID, "total", o.Total.StringFixed(2))
	return CheckoutOutput{OrderID: o.ID, SessionID: sess.ID, URL: sess.URL, Total: o.Total}, nil
}

func trimCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

func outcomeOf(err error) string {
	var (
		ve *ValidationError
		ue *UpstreamError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &ue):
		return "upstream_error"
	default:
		return "error"
	}
}
