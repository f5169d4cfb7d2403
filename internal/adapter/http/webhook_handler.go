package http

import (
	"context"
	"io"
	"net/http"

	"github.com/emunro22/root-fuel/internal/adapter/http/middleware"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/gin-gonic/gin"
)

const signatureHeader = "Stripe-Signature"

type WebhookFulfiller interface {
	Handle(ctx context.Context, payload []byte, signature string) (usecase.FulfillmentReport, error)
}

type WebhookHandler struct {
	fulfill WebhookFulfiller
}

func NewWebhookHandler(f WebhookFulfiller) *WebhookHandler {
	return &WebhookHandler{fulfill: f}
}

// Receive answers 400 only for an unauthenticated delivery. Anything after
// that is acknowledged so the provider stops retrying; failures live in logs.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload := middleware.RawBodyFrom(c)
	if payload == nil {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		payload = b
	}

	rep, err := h.fulfill.Handle(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		logging.From(c).Warn("webhook rejected", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook Error: signature verification failed"})
		return
	}

	logging.From(c).Debug("webhook handled", "event_id", rep.EventID, "fulfilled", rep.Fulfilled)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
