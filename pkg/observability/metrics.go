package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Metrics is an Observer that records step and run metrics.
type Metrics struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	active       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "socrates",
				Name:      "steps_total",
				Help:      "Merged steps by step name and resulting status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "socrates",
				Name:      "step_duration_seconds",
				Help:      "Wall time of each step, including backend calls.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"step"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "socrates",
				Name:      "runs_total",
				Help:      "Finished runs by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "socrates",
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
	}
	for _, c := range []prometheus.Collector{m.steps, m.stepDuration, m.runs, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnEvent implements domain.Observer.
func (m *Metrics) OnEvent(ctx context.Context, e domain.Event) {
	switch e.Type {
	case domain.EventStart:
		m.active.Inc()
	case domain.EventProgress:
		m.steps.WithLabelValues(e.Step, string(e.Status)).Inc()
		m.stepDuration.WithLabelValues(e.Step).Observe(e.Duration.Seconds())
	case domain.EventComplete:
		m.active.Dec()
		m.runs.WithLabelValues(string(e.Mode), "complete").Inc()
	case domain.EventError:
		m.active.Dec()
		m.runs.WithLabelValues(string(e.Mode), string(e.Status)).Inc()
	}
}
