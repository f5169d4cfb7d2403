package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emunro22/root-fuel/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "order.events"

var ErrNotConfirmed = errors.New("broker nacked publish")

// Publisher is the slice of *amqp.Channel the producer needs.
type Publisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// RabbitProducer implements usecase.EventPublisher. Events are routed by
// their type, e.g. order.paid.
type RabbitProducer struct {
	ch       Publisher
	exchange string
}

// NewRabbitProducer declares the exchange and turns on publisher confirms once at startup.
func NewRabbitProducer(ch *amqp.Channel, exchange string) (*RabbitProducer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitProducer{ch: ch, exchange: exchange}, nil
}

func newProducer(ch Publisher, exchange string) *RabbitProducer {
	return &RabbitProducer{ch: ch, exchange: exchange}
}

func (p *RabbitProducer) PublishOrderEvent(ctx context.Context, ev usecase.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conf, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		ev.Type, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.OrderID + ":" + ev.Type,
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if conf == nil {
		return nil
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

var _ usecase.EventPublisher = (*RabbitProducer)(nil)
