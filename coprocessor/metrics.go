package coprocessor

import "github.com/prometheus/client_golang/prometheus"

const namespace = "peerreview"

// Metrics is a set of coprocessor metrics.
type Metrics struct {
	executed *prometheus.CounterVec
	rejected prometheus.Counter
	pending  prometheus.Gauge

	lastBlock prometheus.Gauge
}

// NewMetrics creates and registers coprocessor metrics. Nil registerer
// leaves metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "executed_total",
			Help:      "Number of executed FHE operations",
		}, []string{"op"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "rejected_total",
			Help:      "Number of invalid FHE operations",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "pending",
			Help:      "Number of FHE operations waiting for operands",
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "last_block",
			Help:      "Index of the last processed block",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.executed, m.rejected, m.pending, m.lastBlock)
	}

	return m
}
