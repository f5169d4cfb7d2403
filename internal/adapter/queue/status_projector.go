package queue

import (
	"context"
	"fmt"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/emunro22/root-fuel/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
)

const StatusQueue = "rootfuel.order-status.q"

// DeclareStatusQueue binds the projector's durable queue to every order event.
func DeclareStatusQueue(ch *amqp.Channel, exchange string) error {
	if exchange == "" {
		exchange = DefaultExchange
	}
	q, err := ch.QueueDeclare(
		StatusQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "order.*", exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}

// StatusProjector copies order events into the status cache.
type StatusProjector struct {
	cache usecase.OrderCache
}

func NewStatusProjector(cache usecase.OrderCache) *StatusProjector {
	return &StatusProjector{cache: cache}
}

// Handler returns the projector as a raw delivery handler for the Router.
func (p *StatusProjector) Handler() Handler {
	return JSONHandler[usecase.OrderEvent]{HandleFunc: p.Project}
}

func (p *StatusProjector) Project(ctx context.Context, ev usecase.OrderEvent) error {
	if ev.OrderID == "" {
		return fmt.Errorf("%w: event without order id", ErrPoison)
	}
	next := domain.ParseStatus(ev.Status)

	cur, ok, err := p.cache.GetStatus(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	// events can arrive out of order; paid is terminal
	if ok && domain.ParseStatus(cur) == domain.StatusPaid && next != domain.StatusPaid {
		logging.FromCtx(ctx).Info("stale order event ignored", "order_id", ev.OrderID, "type", ev.Type)
		return nil
	}
	if err := p.cache.SetStatus(ctx, ev.OrderID, string(next)); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
