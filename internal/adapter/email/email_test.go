package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/emunro22/root-fuel/internal/entity"
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmation() usecase.Confirmation {
	return usecase.Confirmation{
		OrderID:           "ORD-1A2B3C4D",
		CustomerName:      "A. Smith",
		CustomerEmail:     "a@example.com",
		Type:              domain.OrderTypeDelivery,
		FulfillmentDetail: "1 High St",
		Notes:             "<b>no onions</b>",
		Items:             []domain.LineItem{{Name: "Bowl A", UnitPrice: decimal.RequireFromString("8.50"), Quantity: 2}},
		Total:             decimal.RequireFromString("17"),
	}
}

func TestComposer_Customer(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)

	subject, html, err := c.CustomerConfirmation(confirmation())
	require.NoError(t, err)

	assert.Equal(t, "Your Root + Fuel order is confirmed! (ORD-1A2B3C4D)", subject)
	assert.Contains(t, html, "ORD-1A2B3C4D")
	assert.Contains(t, html, "2× Bowl A")
	assert.Contains(t, html, "£17.00")
	assert.Contains(t, html, "1 High St")
	assert.Contains(t, html, "&lt;b&gt;no onions&lt;/b&gt;", "customer text is escaped")
}

func TestComposer_MerchantWithoutItems(t *testing.T) {
	c, err := NewComposer()
	require.NoError(t, err)
	conf := confirmation()
	conf.Items = nil
	conf.Type = domain.OrderTypePickup

	subject, html, err := c.MerchantNotice(conf)
	require.NoError(t, err)

	assert.Equal(t, "New order ORD-1A2B3C4D - £17.00 (Collection)", subject)
	assert.Contains(t, html, "Item details could not be read")
	assert.Contains(t, html, "a@example.com")
}

func TestResendNotifier_Send(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/emails", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	n, err := NewResendNotifier("re_test", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	err = n.Send(context.Background(), usecase.Email{
		From:    "Root Fuel <orders@example.com>",
		To:      []string{"kitchen@example.com", "owner@example.com"},
		Subject: "New order",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer re_test", auth)
	assert.Equal(t, "New order", got["subject"])
	assert.Equal(t, []any{"kitchen@example.com", "owner@example.com"}, got["to"])
	assert.Equal(t, "<p>hi</p>", got["html"])
}

func TestResendNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from field"}`))
	}))
	defer srv.Close()

	n, err := NewResendNotifier("re_test", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	assert.Error(t, n.Send(context.Background(), usecase.Email{To: []string{"a@example.com"}}))
	assert.ErrorIs(t, n.Send(context.Background(), usecase.Email{}), errNoRecipients)
}
