package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records lock contention and writes. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	lockWait     *prometheus.HistogramVec
	lockTimeouts *prometheus.CounterVec
	writes       *prometheus.CounterVec
}

// NewMetrics registers the store metrics on a private registry so several
// stores (and tests) never collide on the global one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		lockWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kanban_store_lock_wait_seconds",
				Help:    "Time spent waiting for a document lock",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"backend", "kind"},
		),
		lockTimeouts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kanban_store_lock_timeouts_total",
				Help: "Lock acquisitions abandoned after the retry policy ran out",
			},
			[]string{"backend", "kind"},
		),
		writes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kanban_store_writes_total",
				Help: "Document writes by outcome",
			},
			[]string{"backend", "kind", "result"},
		),
	}
}

func (m *Metrics) observeWait(backend string, key Key, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(backend, key.Kind()).Observe(d.Seconds())
}

func (m *Metrics) lockTimeout(backend string, key Key) {
	if m == nil {
		return
	}
	m.lockTimeouts.WithLabelValues(backend, key.Kind()).Inc()
}

func (m *Metrics) write(backend string, key Key, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(backend, key.Kind(), result).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
