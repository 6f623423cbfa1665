package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds dispatcher collectors.
type Metrics struct {
	tasks        *prometheus.CounterVec
	ticksSkipped prometheus.Counter
	inFlight     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maverika",
			Subsystem: "dispatcher",
			Name:      "tasks_total",
			Help:      "Tasks handled by the dispatcher, by outcome.",
		}, []string{"outcome"}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maverika",
			Subsystem: "dispatcher",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous scan was still running.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "maverika",
			Subsystem: "dispatcher",
			Name:      "in_flight",
			Help:      "Tasks currently executing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tasks, m.ticksSkipped, m.inFlight)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	m.tasks.WithLabelValues(outcome).Inc()
}
