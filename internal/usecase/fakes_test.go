package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "github.com/emunro22/root-fuel/internal/entity"
)

var (
	ErrMockLedger   = errors.New("ledger unavailable")
	ErrMockProvider = errors.New("provider unavailable")
	ErrMockSend     = errors.New("smtp unavailable")
)

const testSignature = "t=1,v1=ok"

// fakeLedger is an in-memory ledger keyed by order id.
type fakeLedger struct {
	mu          sync.Mutex
	rows        map[string]*OrderRecord
	orders      []*domain.Order
	AppendErr   error
	UpdateErr   error
	Transitions int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*OrderRecord{}}
}

func (l *fakeLedger) Append(_ context.Context, o *domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AppendErr != nil {
		return l.AppendErr
	}
	l.orders = append(l.orders, o)
	l.rows[o.ID] = &OrderRecord{
		ID:            o.ID,
		Status:        string(o.Status),
		Type:          string(o.Type),
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		Total:         o.Total.StringFixed(2),
	}
	return nil
}

func (l *fakeLedger) Get(_ context.Context, id string) (*OrderRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *fakeLedger) TransitionStatus(_ context.Context, id string, to domain.Status) (domain.Status, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.UpdateErr != nil {
		return "", false, l.UpdateErr
	}
	r, ok := l.rows[id]
	if !ok {
		return "", false, ErrNotFound
	}
	prev := domain.ParseStatus(r.Status)
	if !prev.CanTransitionTo(to) {
		return prev, false, nil
	}
	r.Status = string(to)
	l.Transitions++
	return prev, true, nil
}

func (l *fakeLedger) status(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rows[id]; ok {
		return r.Status
	}
	return ""
}

// fakeProvider accepts testSignature only; payloads are JSON PaymentEvents.
type fakeProvider struct {
	mu         sync.Mutex
	promos     map[string]Promotion // by code
	sessions   []SessionRequest
	SessionErr error
	PromoErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{promos: map[string]Promotion{}}
}

func (p *fakeProvider) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SessionErr != nil {
		return Session{}, p.SessionErr
	}
	p.sessions = append(p.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return Session{ID: id, URL: "https://checkout.example.com/pay/" + id}, nil
}

func (p *fakeProvider) FindPromotion(_ context.Context, code string) (Promotion, error) {
	if p.PromoErr != nil {
		return Promotion{}, p.PromoErr
	}
	pr, ok := p.promos[code]
	if !ok {
		return Promotion{}, ErrNotFound
	}
	return pr, nil
}

func (p *fakeProvider) GetPromotion(_ context.Context, id string) (Promotion, error) {
	if p.PromoErr != nil {
		return Promotion{}, p.PromoErr
	}
	for _, pr := range p.promos {
		if pr.ID == id {
			return pr, nil
		}
	}
	return Promotion{}, ErrNotFound
}

func (p *fakeProvider) ParseEvent(payload []byte, signature string) (PaymentEvent, error) {
	if signature != testSignature {
		return PaymentEvent{}, ErrAuthentication
	}
	var ev PaymentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []Email
	FailTo string // fail sends addressed to this recipient
}

func (n *fakeNotifier) Send(_ context.Context, e Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, to := range e.To {
		if n.FailTo != "" && to == n.FailTo {
			return ErrMockSend
		}
	}
	n.sent = append(n.sent, e)
	return nil
}

func (n *fakeNotifier) sentTo(addr string) (Email, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.sent {
		for _, to := range e.To {
			if to == addr {
				return e, true
			}
		}
	}
	return Email{}, false
}

// blockingNotifier holds every send until its context ends.
type blockingNotifier struct{}

func (blockingNotifier) Send(ctx context.Context, _ Email) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeComposer struct{}

func (fakeComposer) CustomerConfirmation(c Confirmation) (string, string, error) {
	return "Order confirmed (" + c.OrderID + ")", itemsHTML(c), nil
}

func (fakeComposer) MerchantNotice(c Confirmation) (string, string, error) {
	return "New order " + c.OrderID + " " + c.Total.StringFixed(2), itemsHTML(c), nil
}

func itemsHTML(c Confirmation) string {
	var b strings.Builder
	for _, it := range c.Items {
		fmt.Fprintf(&b, "<li>%dx %s</li>", it.Quantity, it.Name)
	}
	return b.String()
}

type fakeStore struct {
	mu          sync.Mutex
	locks       map[string]bool
	values      map[string]string
	LockErr     error
	RememberErr error
	RecallErr   error
	Unbounded   int // calls made without a deadline
}

func newFakeStore() *fakeStore {
	return &fakeStore{locks: map[string]bool{}, values: map[string]string{}}
}

func (s *fakeStore) track(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		s.Unbounded++
	}
}

func (s *fakeStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(ctx)
	if s.LockErr != nil {
		return false, s.LockErr
	}
	k := scope + ":" + key
	if s.locks[k] {
		return false, nil
	}
	s.locks[k] = true
	return true, nil
}

func (s *fakeStore) Unlock(ctx context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(ctx)
	delete(s.locks, scope+":"+key)
	return nil
}

func (s *fakeStore) Remember(ctx context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(ctx)
	if s.RememberErr != nil {
		return s.RememberErr
	}
	s.values[scope+":"+key] = value
	return nil
}

func (s *fakeStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(ctx)
	if s.RecallErr != nil {
		return "", false, s.RecallErr
	}
	v, ok := s.values[scope+":"+key]
	return v, ok, nil
}

type fakeCache struct {
	mu     sync.Mutex
	status map[string]string
}

func (c *fakeCache) SetStatus(_ context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == nil {
		c.status = map[string]string{}
	}
	c.status[id] = status
	return nil
}

func (c *fakeCache) GetStatus(_ context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[id]
	return s, ok, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	Err    error
}

func (f *fakeEvents) PublishOrderEvent(_ context.Context, ev OrderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.events = append(f.events, ev)
	return nil
}
