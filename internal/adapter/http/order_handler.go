package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/logging"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type CheckoutRunner interface {
	Execute(ctx context.Context, in usecase.CheckoutInput) (usecase.CheckoutOutput, error)
}

type PromoValidator interface {
	Execute(ctx context.Context, code string) (usecase.PromoResult, error)
}

type StatusReader interface {
	Execute(ctx context.Context, orderID string) (usecase.OrderStatusOutput, error)
}

type OrderHandler struct {
	checkout CheckoutRunner
	promo    PromoValidator
	status   StatusReader
}

func NewOrderHandler(checkout CheckoutRunner, promo PromoValidator, status StatusReader) *OrderHandler {
	return &OrderHandler{checkout: checkout, promo: promo, status: status}
}

type itemReq struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type checkoutReq struct {
	Items    []itemReq `json:"items"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	OrderType         string `json:"orderType"`
	FulfillmentDetail string `json:"fulfillmentDetail"`
	// Address is the field older clients send for delivery orders.
	Address         string `json:"address"`
	Notes           string `json:"notes"`
	PromotionCodeID string `json:"promotionCodeId"`
}

type checkoutResp struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

// Checkout handler: translate to use case input
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	in := usecase.CheckoutInput{
		Customer:          domain.Customer{Name: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone},
		OrderType:         req.OrderType,
		FulfillmentDetail: req.FulfillmentDetail,
		Notes:             req.Notes,
		PromotionCodeID:   req.PromotionCodeID,
		IdempotencyKey:    c.GetHeader("X-Idempotency-Key"), // prevent duplicated requests
	}
	if in.FulfillmentDetail == "" {
		in.FulfillmentDetail = req.Address
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, domain.LineItem{Name: it.Name, UnitPrice: it.Price, Quantity: it.Quantity})
	}

	out, err := h.checkout.Execute(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkoutResp{URL: out.URL, SessionID: out.SessionID, OrderID: out.OrderID})
}

type promoReq struct {
	Code string `json:"code"`
}

type discountResp struct {
	Kind   string      `json:"kind"`
	Amount json.Number `json:"amount"`
}

type promoResp struct {
	Valid           bool         `json:"valid"`
	PromotionCodeID string       `json:"promotionCodeId"`
	Discount        discountResp `json:"discount"`
}

func (h *OrderHandler) ValidatePromo(c *gin.Context) {
	var req promoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.promo.Execute(c.Request.Context(), req.Code)
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid or expired promo code"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, promoResp{
		Valid:           true,
		PromotionCodeID: res.PromotionCodeID,
		Discount: discountResp{
			Kind:   string(res.Discount.Kind),
			Amount: json.Number(res.Discount.Amount.String()),
		},
	})
}

func (h *OrderHandler) GetOrderByID(c *gin.Context) {
	out, err := h.status.Execute(c.Request.Context(), c.Param("id"))
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId": out.OrderID,
		"status":  out.Status,
	})
}

// writeError maps use case errors onto status codes. Upstream causes are
// logged, not returned.
func writeError(c *gin.Context, err error) {
	var (
		ve *usecase.ValidationError
		ue *usecase.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Err.Error()})
	case errors.Is(err, usecase.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is already in progress"})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.As(err, &ue):
		logging.From(c).Error("upstream failure", "op", ue.Op, "err", ue.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Something went wrong. Please try again."})
	default:
		logging.From(c).Error("unhandled error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
	_ = c.Error(err)
}
