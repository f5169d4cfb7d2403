package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/emunro22/root-fuel/configs"
	"github.com/emunro22/root-fuel/internal/adapter/http/middleware"
	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/security"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type stubCheckout struct {
	got usecase.CheckoutInput
	out usecase.CheckoutOutput
	err error
}

func (s *stubCheckout) Execute(_ context.Context, in usecase.CheckoutInput) (usecase.CheckoutOutput, error) {
	s.got = in
	return s.out, s.err
}

type stubPromo struct {
	res usecase.PromoResult
	err error
}

func (s *stubPromo) Execute(context.Context, string) (usecase.PromoResult, error) {
	return s.res, s.err
}

type stubStatus struct {
	err error
}

func (s *stubStatus) Execute(_ context.Context, id string) (usecase.OrderStatusOutput, error) {
	if s.err != nil {
		return usecase.OrderStatusOutput{}, s.err
	}
	return usecase.OrderStatusOutput{OrderID: id, Status: domain.StatusPaid}, nil
}

type stubFulfill struct {
	payload []byte
	sig     string
	err     error
}

func (s *stubFulfill) Handle(_ context.Context, payload []byte, sig string) (usecase.FulfillmentReport, error) {
	s.payload, s.sig = payload, sig
	return usecase.FulfillmentReport{EventID: "evt_1"}, s.err
}

const testSecret = "test-secret"

type routerFixture struct {
	checkout *stubCheckout
	promo    *stubPromo
	status   *stubStatus
	fulfill  *stubFulfill
	engine   *gin.Engine
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		checkout: &stubCheckout{out: usecase.CheckoutOutput{OrderID: "ORD-1", SessionID: "cs_1", URL: "https://pay.example/cs_1"}},
		promo:    &stubPromo{},
		status:   &stubStatus{},
		fulfill:  &stubFulfill{},
	}
	sec := configs.SecurityConfig{JWTSecret: testSecret, TTL: 15 * time.Minute}
	f.engine = NewRouter(RouterDeps{
		Orders:  NewOrderHandler(f.checkout, f.promo, f.status),
		Webhook: NewWebhookHandler(f.fulfill),
		Tokens: NewTokenHandler(sec, security.NewClients([]configs.ClientConfig{
			{ID: "ops", Secret: "s3cret", Perms: []string{"orders.read"}},
		})),
		Authz:           middleware.NewAuthz(sec),
		MaxWebhookBytes: 1024,
	})
	return f
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestCheckout_OK(t *testing.T) {
	f := newRouterFixture()
	req := jsonReq(http.MethodPost, "/api/checkout", `{
		"items":[{"name":"Bowl A","price":8.5,"quantity":2}],
		"customer":{"name":"A. Smith","email":"a@example.com","phone":"07700 900000"},
		"orderType":"delivery","address":"1 High St","notes":"ring twice"}`)
	req.Header.Set("X-Idempotency-Key", "key-1")

	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://pay.example/cs_1", body["url"])
	assert.Equal(t, "cs_1", body["sessionId"])
	assert.Equal(t, "ORD-1", body["orderId"])

	in := f.checkout.got
	assert.Equal(t, "key-1", in.IdempotencyKey)
	assert.Equal(t, "1 High St", in.FulfillmentDetail)
	require.Len(t, in.Items, 1)
	assert.True(t, in.Items[0].UnitPrice.Equal(decimal.RequireFromString("8.50")))
	assert.Equal(t, int64(2), in.Items[0].Quantity)
	assert.Equal(t, "07700 900000", in.Customer.Phone)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &usecase.ValidationError{Err: domain.ErrEmptyCart}, http.StatusBadRequest},
		{"duplicate", usecase.ErrDuplicate, http.StatusConflict},
		{"upstream", &usecase.UpstreamError{Op: "ledger.append", Err: errors.New("quota")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.checkout.err = tt.err

			w := f.do(jsonReq(http.MethodPost, "/api/checkout", `{"items":[]}`))

			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, decodeBody(t, w)["error"])
			assert.NotContains(t, w.Body.String(), "quota")
		})
	}
}

func TestCheckout_BadJSON(t *testing.T) {
	w := newRouterFixture().do(jsonReq(http.MethodPost, "/api/checkout", `{"items":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidatePromo(t *testing.T) {
	f := newRouterFixture()
	f.promo.res = usecase.PromoResult{
		PromotionCodeID: "promo_123",
		Discount:        domain.Discount{Kind: domain.DiscountPercent, Amount: decimal.RequireFromString("10")},
	}

	w := f.do(jsonReq(http.MethodPost, "/api/validate-promo", `{"code":"summer10"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true,"promotionCodeId":"promo_123","discount":{"kind":"percent","amount":10}}`, w.Body.String())
}

func TestValidatePromo_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty", &usecase.ValidationError{Err: usecase.ErrEmptyCode}, http.StatusBadRequest},
		{"unknown", usecase.ErrNotFound, http.StatusNotFound},
		{"provider down", &usecase.UpstreamError{Op: "promo.find", Err: errors.New("timeout")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			f.promo.err = tt.err
			w := f.do(jsonReq(http.MethodPost, "/api/validate-promo", `{"code":"x"}`))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestWebhook(t *testing.T) {
	f := newRouterFixture()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")

	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	assert.Equal(t, `{"id":"evt_1"}`, string(f.fulfill.payload))
	assert.Equal(t, "t=1,v1=abc", f.fulfill.sig)
}

func TestWebhook_Rejections(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		f := newRouterFixture()
		f.fulfill.err = usecase.ErrAuthentication
		w := f.do(httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "Webhook Error")
	})

	t.Run("wrong method", func(t *testing.T) {
		w := newRouterFixture().do(httptest.NewRequest(http.MethodGet, "/api/webhook", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("oversize", func(t *testing.T) {
		f := newRouterFixture()
		w := f.do(httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(strings.Repeat("x", 2048))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Nil(t, f.fulfill.payload)
	})
}

func issueToken(t *testing.T, f *routerFixture, secret string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"client_id": {"ops"}, "client_secret": {secret}}
	req := httptest.NewRequest(http.MethodPost, "/v1/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func TestTokenThenOrderLookup(t *testing.T) {
	f := newRouterFixture()

	w := issueToken(t, f, "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	tok := decodeBody(t, w)
	assert.Equal(t, float64(900), tok["expires_in"])

	parsed, err := jwt.Parse(tok["access_token"].(string), func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	sub, _ := parsed.Claims.GetSubject()
	assert.Equal(t, "ops", sub)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/ORD-1", nil)
	req.Header.Set("Authorization", "Bearer "+tok["access_token"].(string))
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orderId":"ORD-1","status":"paid"}`, w.Body.String())
}

func TestTokenRejectsBadSecret(t *testing.T) {
	w := issueToken(t, newRouterFixture(), "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderLookup(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		w := newRouterFixture().do(httptest.NewRequest(http.MethodGet, "/v1/orders/ORD-1", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newRouterFixture()
		f.status.err = usecase.ErrNotFound
		tok := decodeBody(t, issueToken(t, f, "s3cret"))["access_token"].(string)

		req := httptest.NewRequest(http.MethodGet, "/v1/orders/ORD-404", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		assert.Equal(t, http.StatusNotFound, f.do(req).Code)
	})
}

func TestHealthz(t *testing.T) {
	w := newRouterFixture().do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
