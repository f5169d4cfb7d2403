package observ

import (
	"github.com/emunro22/root-fuel/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder counts checkout and fulfillment outcomes.
type Recorder struct {
	checkouts *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	steps     *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout attempts by outcome",
		}, []string{"outcome"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment provider webhook deliveries by event kind and outcome",
		}, []string{"kind", "outcome"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_steps_total",
			Help: "Fulfillment side effects by step and outcome",
		}, []string{"step", "outcome"}),
	}
}

func (r *Recorder) Checkout(outcome string) {
	r.checkouts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) WebhookEvent(kind, outcome string) {
	r.webhooks.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) Step(step, outcome string) {
	r.steps.WithLabelValues(step, outcome).Inc()
}

var _ usecase.Recorder = (*Recorder)(nil)
