package observ

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Checkout("ok")
	r.Checkout("ok")
	r.WebhookEvent("checkout.session.completed", "fulfilled")
	r.Step("ledger", "duplicate")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.checkouts.WithLabelValues("ok")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP fulfillment_steps_total Fulfillment side effects by step and outcome
# TYPE fulfillment_steps_total counter
fulfillment_steps_total{outcome="duplicate",step="ledger"} 1
`), "fulfillment_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(r.webhooks))
}
