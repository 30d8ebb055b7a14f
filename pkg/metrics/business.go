package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const businessSubsystem = "subscriptions"

var MetricsSubscriptionTransitions = &Metric{
	Name:        "subscription_transitions_total",
	Description: "Subscription status transitions, partitioned by source and target status.",
	Type:        "counter_vec",
	Args:        []string{"from", "to"},
}

// Business records domain-level metrics. A nil *Business is a valid no-op recorder.
type Business struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewBusiness registers the business collectors on reg, reusing collectors that are
// already registered under the same name.
func NewBusiness(reg prometheus.Registerer) (*Business, error) {
	transitions, err := register(reg, MetricsSubscriptionTransitions, businessSubsystem)
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, MetricsBusinessProcess, businessSubsystem)
	if err != nil {
		return nil, err
	}
	return &Business{
		transitions: transitions.(*prometheus.CounterVec),
		duration:    duration.(*prometheus.HistogramVec),
	}, nil
}

// ObserveTransition counts one status transition.
func (b *Business) ObserveTransition(from, to string) {
	if b == nil {
		return
	}
	b.transitions.WithLabelValues(from, to).Inc()
}

// ObserveDuration records the latency of a business process started at start.
func (b *Business) ObserveDuration(typ, subtype string, start time.Time) {
	if b == nil {
		return
	}
	b.duration.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

// Transitions exposes the transition counter vector.
func (b *Business) Transitions() *prometheus.CounterVec {
	return b.transitions
}

func newDefaultBusiness() (*Business, error) {
	return NewBusiness(prometheus.DefaultRegisterer)
}

var Module = fx.Options(
	fx.Provide(newDefaultBusiness),
)
