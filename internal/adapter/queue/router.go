package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emunro22/root-fuel/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer is the slice of *amqp.Channel the router needs.
type Consumer interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// Router manages one consumer per registered queue on a single AMQP channel.
type Router struct {
	ch            Consumer
	prefetch      int
	callTimeout   time.Duration
	requeueOnErr  bool
	registrations []registration
	wg            sync.WaitGroup
}

type registration struct {
	queueName   string
	handler     Handler
	consumerTag string
}

type RouterOption func(*Router)

func WithPrefetch(n int) RouterOption          { return func(r *Router) { r.prefetch = n } }
func WithTimeout(d time.Duration) RouterOption { return func(r *Router) { r.callTimeout = d } }
func WithRequeue(b bool) RouterOption          { return func(r *Router) { r.requeueOnErr = b } }

// NewRouter constructs a Router. Defaults: prefetch=20, timeout=10s, requeueOnErr=true.
func NewRouter(ch Consumer, opts ...RouterOption) *Router {
	r := &Router{
		ch:           ch,
		prefetch:     20,
		callTimeout:  10 * time.Second,
		requeueOnErr: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Register(queueName string, h Handler) {
	r.registrations = append(r.registrations, registration{
		queueName:   queueName,
		handler:     h,
		consumerTag: "rootfuel_" + queueName,
	})
}

// Start begins consuming and returns immediately. Cancelling ctx cancels the
// consumers on the broker; messages already delivered are still handled.
// Wait blocks until every consumer has drained.
func (r *Router) Start(ctx context.Context) error {
	if err := r.ch.Qos(r.prefetch, 0, false); err != nil {
		return err
	}

	for _, reg := range r.registrations {
		deliveries, err := r.ch.Consume(
			reg.queueName,
			reg.consumerTag,
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return err
		}

		r.wg.Add(1)
		go func(reg registration, msgs <-chan amqp.Delivery) {
			defer r.wg.Done()
			log := logging.FromCtx(ctx).With("queue", reg.queueName, "consumer", reg.consumerTag)
			for d := range msgs {
				r.dispatch(context.WithoutCancel(ctx), reg.handler, d)
			}
			log.Info("consumer stopped")
		}(reg, deliveries)
	}

	go func() {
		<-ctx.Done()
		for _, reg := range r.registrations {
			if err := r.ch.Cancel(reg.consumerTag, false); err != nil {
				logging.FromCtx(ctx).Warn("cancel consumer", "consumer", reg.consumerTag, "err", err)
			}
		}
	}()
	return nil
}

func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) dispatch(ctx context.Context, h Handler, d amqp.Delivery) {
	log := logging.FromCtx(ctx).With("routing_key", d.RoutingKey, "message_id", d.MessageId)

	hctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	err := h.Handle(hctx, d)
	cancel()

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrPoison):
		log.Error("dropping undecodable message", "err", err)
		_ = d.Nack(false, false)
	default:
		log.Warn("handler failed", "err", err, "requeue", r.requeueOnErr)
		_ = d.Nack(false, r.requeueOnErr)
	}
}
