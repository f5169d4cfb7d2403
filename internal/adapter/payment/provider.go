// Package payment adapts Stripe Checkout to usecase.PaymentProvider.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type Provider struct {
	api *client.API
	cfg Config
}

// New builds a provider. A nil backends uses Stripe's public API.
func New(cfg Config, backends *stripe.Backends) *Provider {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyGBP)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Provider{api: api, cfg: cfg}
}

func (p *Provider) CreateSession(ctx context.Context, req usecase.SessionRequest) (usecase.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(successURL(p.cfg.SuccessURL, req.OrderID)),
		CancelURL:          stripe.String(p.cfg.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, it := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(p.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
				UnitAmount: stripe.Int64(domain.ToMinor(it.UnitPrice)),
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	if req.PromotionCodeID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{PromotionCode: stripe.String(req.PromotionCodeID)},
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	// a retried request for the same order reuses the session
	params.SetIdempotencyKey("checkout-" + req.OrderID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return usecase.Session{}, fmt.Errorf("stripe create session: %w", err)
	}
	return usecase.Session{ID: s.ID, URL: s.URL}, nil
}

func successURL(base, orderID string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	// the placeholder is substituted by Stripe and must stay unescaped
	return base + sep + "session_id={CHECKOUT_SESSION_ID}&order_id=" + url.QueryEscape(orderID)
}

// FindPromotion looks up an active promotion code by its customer-facing code.
func (p *Provider) FindPromotion(ctx context.Context, code string) (usecase.Promotion, error) {
	params := &stripe.PromotionCodeListParams{
		Code:   stripe.String(code),
		Active: stripe.Bool(true),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	it := p.api.PromotionCodes.List(params)
	for it.Next() {
		pc := it.PromotionCode()
		if promo, ok := p.toPromotion(pc); ok {
			return promo, nil
		}
	}
	if err := it.Err(); err != nil {
		return usecase.Promotion{}, fmt.Errorf("stripe list promotion codes: %w", err)
	}
	return usecase.Promotion{}, usecase.ErrNotFound
}

// GetPromotion re-resolves a promotion code id returned earlier by FindPromotion.
func (p *Provider) GetPromotion(ctx context.Context, id string) (usecase.Promotion, error) {
	params := &stripe.PromotionCodeParams{}
	params.Context = ctx

	pc, err := p.api.PromotionCodes.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return usecase.Promotion{}, usecase.ErrNotFound
		}
		return usecase.Promotion{}, fmt.Errorf("stripe get promotion code: %w", err)
	}
	promo, ok := p.toPromotion(pc)
	if !ok {
		return usecase.Promotion{}, usecase.ErrNotFound
	}
	return promo, nil
}

func (p *Provider) toPromotion(pc *stripe.PromotionCode) (usecase.Promotion, bool) {
	if pc == nil || !pc.Active || pc.Coupon == nil || !pc.Coupon.Valid {
		return usecase.Promotion{}, false
	}
	c := pc.Coupon
	var d domain.Discount
	switch {
	case c.PercentOff > 0:
		d = domain.Discount{Kind: domain.DiscountPercent, Amount: decimal.NewFromFloat(c.PercentOff)}
	case c.AmountOff > 0:
		if c.Currency != "" && !strings.EqualFold(string(c.Currency), p.cfg.Currency) {
			return usecase.Promotion{}, false
		}
		d = domain.Discount{Kind: domain.DiscountFixed, Amount: domain.FromMinor(c.AmountOff)}
	default:
		return usecase.Promotion{}, false
	}
	return usecase.Promotion{ID: pc.ID, Code: pc.Code, Discount: d}, true
}

// ParseEvent verifies the Stripe-Signature header against the raw payload
// before anything in it is trusted.
func (p *Provider) ParseEvent(payload []byte, signature string) (usecase.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return usecase.PaymentEvent{}, fmt.Errorf("%w: %v", usecase.ErrAuthentication, err)
	}

	out := usecase.PaymentEvent{ID: ev.ID, Kind: string(ev.Type)}
	if !strings.HasPrefix(out.Kind, "checkout.session.") || ev.Data == nil {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return out, fmt.Errorf("%w: decode checkout session: %v", usecase.ErrMalformedEvent, err)
	}
	out.SessionID = s.ID
	out.PaymentStatus = string(s.PaymentStatus)
	out.AmountTotal = s.AmountTotal
	out.Metadata = s.Metadata
	out.CustomerEmail = s.CustomerEmail
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	return out, nil
}

var _ usecase.PaymentProvider = (*Provider)(nil)
