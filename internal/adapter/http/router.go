package http

import (
	"log/slog"
	"net/http"

	"github.com/emunro22/root-fuel/internal/adapter/http/middleware"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Orders          *OrderHandler
	Webhook         *WebhookHandler
	Tokens          *TokenHandler
	Authz           *middleware.Authz
	Metrics         *middleware.HTTPMetrics
	MetricsHandler  http.Handler
	Logger          *slog.Logger
	MaxWebhookBytes int64
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	if d.Logger == nil {
		d.Logger = logging.New("http")
	}
	r.Use(middleware.Logging(d.Logger))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	api := r.Group("/api")
	{
		api.POST("/checkout", d.Orders.Checkout)
		api.POST("/validate-promo", d.Orders.ValidatePromo)
		api.POST("/webhook", middleware.RawBody(d.MaxWebhookBytes), d.Webhook.Receive)
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/token", d.Tokens.IssueToken)
		v1.GET("/orders/:id", d.Authz.Require("orders.read"), d.Orders.GetOrderByID)
	}

	return r
}
