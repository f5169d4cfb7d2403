package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/emunro22/root-fuel/configs"
	"github.com/emunro22/root-fuel/internal/adapter/cache"
	"github.com/emunro22/root-fuel/internal/adapter/email"
	"github.com/emunro22/root-fuel/internal/adapter/http"
	"github.com/emunro22/root-fuel/internal/adapter/http/middleware"
	"github.com/emunro22/root-fuel/internal/adapter/observ"
	"github.com/emunro22/root-fuel/internal/adapter/payment"
	"github.com/emunro22/root-fuel/internal/adapter/queue"
	"github.com/emunro22/root-fuel/internal/adapter/sheets"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/emunro22/root-fuel/internal/security"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

type App struct {
	Router *gin.Engine
	Server *nethttp.Server

	cfg      configs.Config
	log      *slog.Logger
	consumer *queue.Router
}

func InitWithConfig(ctx context.Context, cfg configs.Config) (*App, func(), error) {
	// init logger
	logger := logging.Init(logging.Options{Component: cfg.App.Name, FilePath: cfg.App.LogFile, Level: cfg.App.LogLevel})
	ctx = logging.WithCtx(ctx, logger)
	logger.Info("order-api: Starting up...")

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := observ.NewRecorder(reg)

	// ledger
	var credOpt option.ClientOption
	if cfg.Ledger.CredentialsJSON != "" {
		credOpt = option.WithCredentialsJSON([]byte(cfg.Ledger.CredentialsJSON))
	} else {
		credOpt = option.WithCredentialsFile(cfg.Ledger.CredentialsFile)
	}
	ledger, err := sheets.New(ctx, cfg.Ledger.SpreadsheetID, cfg.Ledger.Sheet, credOpt)
	if err != nil {
		return fail(fmt.Errorf("init ledger: %w", err))
	}

	// payment provider
	provider := payment.New(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, nil)

	// email
	notifier, err := email.NewResendNotifier(cfg.Email.APIKey)
	if err != nil {
		return fail(fmt.Errorf("init email: %w", err))
	}
	composer, err := email.NewComposer()
	if err != nil {
		return fail(fmt.Errorf("init templates: %w", err))
	}

	checkoutOpts := []usecase.CheckoutOption{
		usecase.WithCheckoutMetrics(rec),
		usecase.WithCheckoutTimeout(cfg.Stripe.Timeout),
	}
	fulfillOpts := []usecase.FulfillOption{
		usecase.WithFulfillMetrics(rec),
		usecase.WithTimeouts(usecase.Timeouts{
			Ledger: cfg.Ledger.Timeout,
			Email:  cfg.Email.Timeout,
			Store:  cfg.Redis.Timeout,
			Total:  cfg.HTTP.WebhookBudget,
		}),
	}

	// init redis (optional)
	var statusCache usecase.OrderCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}

		idem := cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL)
		rc := cache.NewRedisCache(rdb, cfg.Redis.StatusTTL)
		statusCache = rc
		checkoutOpts = append(checkoutOpts, usecase.WithCheckoutIdempotency(idem))
		fulfillOpts = append(fulfillOpts, usecase.WithNotificationDedup(idem), usecase.WithStatusCache(rc))
	} else {
		logger.Warn("redis disabled: no idempotent replay, email dedup or status cache")
	}

	// init rabbitmq (optional)
	var consumer *queue.Router
	if cfg.Rabbit.URL != "" {
		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return fail(fmt.Errorf("rabbitmq dial: %w", err))
		}
		closers = append(closers, func() { _ = conn.Close() })

		pubCh, err := conn.Channel()
		if err != nil {
			return fail(fmt.Errorf("rabbitmq channel: %w", err))
		}
		producer, err := queue.NewRabbitProducer(pubCh, cfg.Rabbit.Exchange)
		if err != nil {
			return fail(err)
		}
		checkoutOpts = append(checkoutOpts, usecase.WithCheckoutEvents(producer))
		fulfillOpts = append(fulfillOpts, usecase.WithFulfillEvents(producer))

		if statusCache != nil {
			consumer, err = setupQueue(conn, cfg, statusCache)
			if err != nil {
				return fail(err)
			}
		}
	}

	// use cases
	checkoutUC := usecase.NewCheckout(ledger, provider, checkoutOpts...)
	promoUC := usecase.NewValidatePromo(provider, cfg.Stripe.Timeout)
	statusUC := usecase.NewOrderStatus(ledger, statusCache, cfg.Ledger.Timeout)
	fulfillUC := usecase.NewFulfill(provider, ledger, notifier, composer, usecase.Senders{
		CustomerFrom: cfg.Email.From,
		MerchantFrom: cfg.Email.MerchantFrom,
		Merchants:    cfg.Email.MerchantRecipients,
	}, fulfillOpts...)

	// init handlers + routers + middleware
	router := http.NewRouter(http.RouterDeps{
		Orders:          http.NewOrderHandler(checkoutUC, promoUC, statusUC),
		Webhook:         http.NewWebhookHandler(fulfillUC),
		Tokens:          http.NewTokenHandler(cfg.Security, security.NewClients(cfg.Security.Clients)),
		Authz:           middleware.NewAuthz(cfg.Security),
		Metrics:         middleware.NewHTTPMetrics(reg),
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:          logging.New("http"),
		MaxWebhookBytes: cfg.HTTP.MaxWebhookBytes,
	})

	srv := &nethttp.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{Router: router, Server: srv, cfg: cfg, log: logger, consumer: consumer}, cleanup, nil
}

// setupQueue declares the status queue on its own channel and registers the
// projector. Consumption starts in Run.
func setupQueue(conn *amqp.Connection, cfg configs.Config, statusCache usecase.OrderCache) (*queue.Router, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consumer channel: %w", err)
	}
	if err := queue.DeclareStatusQueue(ch, cfg.Rabbit.Exchange); err != nil {
		return nil, err
	}

	router := queue.NewRouter(ch, queue.WithPrefetch(cfg.Rabbit.Prefetch))
	router.Register(queue.StatusQueue, queue.NewStatusProjector(statusCache).Handler())
	return router, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// consumers within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if a.consumer != nil {
		if err := a.consumer.Start(logging.WithCtx(ctx, logging.New("queue"))); err != nil {
			return fmt.Errorf("start consumers: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("order-api listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("order-api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	err := a.Server.Shutdown(shutdownCtx)

	if a.consumer != nil {
		done := make(chan struct{})
		go func() { a.consumer.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(a.cfg.HTTP.ShutdownTimeout):
			a.log.Warn("consumers did not drain before shutdown timeout")
		}
	}
	return err
}
