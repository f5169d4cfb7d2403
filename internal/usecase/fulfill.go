package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/shopspring/decimal"
)

// Provider event kinds that matter here.
const (
	KindSessionCompleted      = "checkout.session.completed"
	KindAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	KindAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	KindSessionExpired        = "checkout.session.expired"
)

type StepOutcome string

const (
	StepDone      StepOutcome = "done"
	StepDuplicate StepOutcome = "duplicate"
	StepNotFound  StepOutcome = "not_found"
	StepSkipped   StepOutcome = "skipped"
	StepFailed    StepOutcome = "failed"
)

// FulfillmentReport describes what one delivery did. It is for logs and
// tests only; the provider always gets the same acknowledgement.
type FulfillmentReport struct {
	EventID   string
	Kind      string
	Fulfilled bool
	OrderID   string
	Ledger    StepOutcome
	Customer  StepOutcome
	Merchant  StepOutcome
	Event     StepOutcome
}

// Confirmation is the data both notification emails are rendered from.
type Confirmation struct {
	OrderID           string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	Type              domain.OrderType
	FulfillmentDetail string
	Notes             string
	Items             []domain.LineItem
	Total             decimal.Decimal
}

type Senders struct {
	CustomerFrom string
	MerchantFrom string
	Merchants    []string
}

type Fulfill struct {
	provider PaymentProvider
	ledger   Ledger
	notifier Notifier
	composer Composer
	senders  Senders
	dedup    IdempotencyStore
	cache    OrderCache
	events   EventPublisher
	metrics  Recorder
	timeouts Timeouts
	now      func() time.Time
}

// Timeouts bounds each kind of downstream call. Total caps one whole delivery
// and must stay under the HTTP write timeout so the acknowledgement is sent.
type Timeouts struct {
	Ledger time.Duration
	Email  time.Duration
	Store  time.Duration // dedup, cache and event publish
	Total  time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&t.Ledger, 10*time.Second)
	def(&t.Email, 10*time.Second)
	def(&t.Store, 2*time.Second)
	def(&t.Total, 20*time.Second)
	return t
}

type FulfillOption func(*Fulfill)

// WithNotificationDedup suppresses repeat emails for the same order.
func WithNotificationDedup(s IdempotencyStore) FulfillOption {
	return func(f *Fulfill) { f.dedup = s }
}
func WithStatusCache(c OrderCache) FulfillOption {
	return func(f *Fulfill) { f.cache = c }
}
func WithFulfillEvents(p EventPublisher) FulfillOption {
	return func(f *Fulfill) { f.events = p }
}
func WithFulfillMetrics(r Recorder) FulfillOption {
	return func(f *Fulfill) { f.metrics = r }
}

// WithTimeouts overrides the non-zero fields of t.
func WithTimeouts(t Timeouts) FulfillOption {
	return func(f *Fulfill) {
		if t.Ledger > 0 {
			f.timeouts.Ledger = t.Ledger
		}
		if t.Email > 0 {
			f.timeouts.Email = t.Email
		}
		if t.Store > 0 {
			f.timeouts.Store = t.Store
		}
		if t.Total > 0 {
			f.timeouts.Total = t.Total
		}
	}
}

func NewFulfill(provider PaymentProvider, ledger Ledger, notifier Notifier, composer Composer, senders Senders, opts ...FulfillOption) *Fulfill {
	f := &Fulfill{
		provider: provider,
		ledger:   ledger,
		notifier: notifier,
		composer: composer,
		senders:  senders,
		metrics:  nopRecorder{},
		timeouts: Timeouts{}.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handle authenticates and processes one webhook delivery. The only error it
// returns is an authentication failure; every downstream failure is logged,
// counted and reported but never returned.
func (uc *Fulfill) Handle(ctx context.Context, payload []byte, signature string) (FulfillmentReport, error) {
	log := logging.FromCtx(ctx)

	ev, err := uc.provider.ParseEvent(payload, signature)
	if errors.Is(err, ErrMalformedEvent) {
		// Redelivery would fail the same way; acknowledge and leave it to an operator.
		log.Error("webhook event could not be decoded", "event_id", ev.ID, "kind", ev.Kind, "err", err)
		uc.metrics.WebhookEvent(kindOrUnknown(ev.Kind), "malformed")
		return FulfillmentReport{EventID: ev.ID, Kind: ev.Kind}, nil
	}
	if err != nil {
		uc.metrics.WebhookEvent("unknown", "unauthenticated")
		if !errors.Is(err, ErrAuthentication) {
			err = fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return FulfillmentReport{}, err
	}

	rep := FulfillmentReport{EventID: ev.ID, Kind: ev.Kind}
	log = log.With("event_id", ev.ID, "kind", ev.Kind)

	if !fulfills(ev) {
		switch ev.Kind {
		case KindAsyncPaymentFailed, KindSessionExpired:
			log.Warn("payment did not complete", "order_id", ev.Metadata[MetaOrderID], "session_id", ev.SessionID)
		default:
			log.Info("webhook acknowledged without action", "payment_status", ev.PaymentStatus)
		}
		uc.metrics.WebhookEvent(ev.Kind, "ignored")
		return rep, nil
	}

	oc, errs := DecodeMetadata(ev.Metadata)
	for _, e := range errs {
		log.Error("order metadata damaged", "order_id", oc.OrderID, "err", e)
	}
	rep.Fulfilled = true
	rep.OrderID = oc.OrderID
	log = log.With("order_id", oc.OrderID)

	paid := domain.FromMinor(ev.AmountTotal)
	if oc.HasTotal && !domain.Reconciles(oc.Total, paid) {
		log.Warn("collected amount differs from checkout total",
			"checkout_total", oc.Total.StringFixed(2), "collected", paid.StringFixed(2))
	}

	// Side effects outlive the provider's HTTP request but not the delivery budget.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeouts.Total)
	defer cancel()
	ctx = logging.WithCtx(ctx, log)

	rep.Ledger = uc.markPaid(ctx, oc.OrderID)
	uc.metrics.Step("ledger", string(rep.Ledger))

	conf := Confirmation{
		OrderID:           oc.OrderID,
		CustomerName:      oc.CustomerName,
		CustomerEmail:     ev.CustomerEmail,
		CustomerPhone:     oc.CustomerPhone,
		Type:              oc.Type,
		FulfillmentDetail: oc.FulfillmentDetail,
		Notes:             oc.Notes,
		Items:             oc.Items,
		Total:             paid,
	}

	// The two emails are independent of each other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rep.Customer = uc.notifyCustomer(ctx, conf)
	}()
	go func() {
		defer wg.Done()
		rep.Merchant = uc.notifyMerchant(ctx, conf)
	}()
	wg.Wait()
	uc.metrics.Step("customer_email", string(rep.Customer))
	uc.metrics.Step("merchant_email", string(rep.Merchant))

	rep.Event = uc.publishPaid(ctx, conf)
	uc.metrics.Step("event", string(rep.Event))

	uc.metrics.WebhookEvent(ev.Kind, "fulfilled")
	log.Info("webhook fulfilled",
		"ledger", rep.Ledger, "customer_email", rep.Customer,
		"merchant_email", rep.Merchant, "event", rep.Event)
	return rep, nil
}

func kindOrUnknown(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}

func fulfills(ev PaymentEvent) bool {
	switch ev.Kind {
	case KindSessionCompleted:
		// delayed payment methods complete the session before funds arrive
		return ev.PaymentStatus == "" || ev.PaymentStatus == "paid" || ev.PaymentStatus == "no_payment_required"
	case KindAsyncPaymentSucceeded:
		return true
	}
	return false
}

func (uc *Fulfill) markPaid(ctx context.Context, orderID string) StepOutcome {
	log := logging.FromCtx(ctx)
	if orderID == "" {
		return StepSkipped
	}

	sctx, cancel := context.WithTimeout(ctx, uc.timeouts.Ledger)
	prev, changed, err := uc.ledger.TransitionStatus(sctx, orderID, domain.StatusPaid)
	cancel()

	var out StepOutcome
	switch {
	case errors.Is(err, ErrNotFound):
		log.Warn("ledger row not found")
		return StepNotFound
	case err != nil:
		log.Error("ledger update failed", "err", err)
		return StepFailed
	case changed:
		out = StepDone
	case prev == domain.StatusPaid:
		log.Info("ledger row already paid, duplicate delivery")
		out = StepDuplicate
	default:
		log.Warn("ledger row not transitionable", "status", prev)
		return StepSkipped
	}

	if uc.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, uc.timeouts.Store)
		_ = uc.cache.SetStatus(cctx, orderID, string(domain.StatusPaid))
		cancel()
	}
	return out
}

func (uc *Fulfill) notifyCustomer(ctx context.Context, c Confirmation) StepOutcome {
	if c.CustomerEmail == "" {
		logging.FromCtx(ctx).Warn("no customer email on payment event")
		return StepSkipped
	}
	subject, html, err := uc.composer.CustomerConfirmation(c)
	if err != nil {
		logging.FromCtx(ctx).Error("render customer email failed", "err", err)
		return StepFailed
	}
	return uc.deliver(ctx, "customer", c.OrderID, Email{
		From:    uc.senders.CustomerFrom,
		To:      []string{c.CustomerEmail},
		Subject: subject,
		HTML:    html,
	})
}

func (uc *Fulfill) notifyMerchant(ctx context.Context, c Confirmation) StepOutcome {
	if len(uc.senders.Merchants) == 0 {
		return StepSkipped
	}
	subject, html, err := uc.composer.MerchantNotice(c)
	if err != nil {
		logging.FromCtx(ctx).Error("render merchant email failed", "err", err)
		return StepFailed
	}
	return uc.deliver(ctx, "merchant", c.OrderID, Email{
		From:    uc.senders.MerchantFrom,
		To:      uc.senders.Merchants,
		Subject: subject,
		HTML:    html,
	})
}

// deliver sends e at most once per (channel, order) when dedup is configured.
// Dedup store errors fail open. The claim is released if the send fails.
func (uc *Fulfill) deliver(ctx context.Context, channel, orderID string, e Email) StepOutcome {
	log := logging.FromCtx(ctx).With("channel", channel)
	scope := "notify:" + channel

	claimed := false
	if uc.dedup != nil && orderID != "" {
		dctx, cancel := context.WithTimeout(ctx, uc.timeouts.Store)
		ok, err := uc.dedup.TryLock(dctx, scope, orderID)
		cancel()
		switch {
		case err != nil:
			log.Warn("notification dedup unavailable, sending anyway", "err", err)
		case !ok:
			log.Info("notification already sent, skipping")
			return StepDuplicate
		default:
			claimed = true
		}
	}

	sctx, cancel := context.WithTimeout(ctx, uc.timeouts.Email)
	err := uc.notifier.Send(sctx, e)
	cancel()
	if err != nil {
		log.Error("notification send failed", "err", err)
		if claimed {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.timeouts.Store)
			_ = uc.dedup.Unlock(uctx, scope, orderID)
			cancel()
		}
		return StepFailed
	}
	return StepDone
}

func (uc *Fulfill) publishPaid(ctx context.Context, c Confirmation) StepOutcome {
	if uc.events == nil {
		return StepSkipped
	}
	sctx, cancel := context.WithTimeout(ctx, uc.timeouts.Store)
	defer cancel()
	err := uc.events.PublishOrderEvent(sctx, OrderEvent{
		Type:       EventOrderPaid,
		OrderID:    c.OrderID,
		Status:     string(domain.StatusPaid),
		OrderType:  string(c.Type),
		Total:      c.Total.StringFixed(2),
		OccurredAt: uc.now(),
	})
	if err != nil {
		logging.FromCtx(ctx).Error("publish order.paid failed", "err", err)
		return StepFailed
	}
	return StepDone
}
