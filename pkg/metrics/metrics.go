package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are latency buckets in milliseconds. Most API calls are a single
// transaction, sweeps over a large backlog land in the upper range.
var HistogramBuckets = []float64{
	5, 10, 25, 50, 75, 100, 150, 250, 400, 600,
	1000, 1500, 2500, 5000, 10000, 30000,
}

// Metric describes one collector. Type is one of counter_vec, histogram_vec or summary_vec.
type Metric struct {
	Name        string
	Description string
	Type        string
	Args        []string
}

// NewMetric builds the collector described by m under subsystem.
func NewMetric(m *Metric, subsystem string) (prometheus.Collector, error) {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   HistogramBuckets,
		}, m.Args), nil
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	}
	return nil, fmt.Errorf("unsupported metric type %q for %s", m.Type, m.Name)
}

// register builds and registers m, returning the collector already registered under
// the same descriptor when there is one.
func register(reg prometheus.Registerer, m *Metric, subsystem string) (prometheus.Collector, error) {
	c, err := NewMetric(m, subsystem)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, fmt.Errorf("register %s: %w", m.Name, err)
	}
	return c, nil
}

var MetricsBusinessProcess = &Metric{
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}
