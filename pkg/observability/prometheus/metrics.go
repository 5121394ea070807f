package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/threadpool/pkg/threadpool"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "threadpool"}, DefaultRegistry)
)

// PoolMetrics holds the Prometheus metrics of one pool.
// It implements threadpool.Observer; pass it with threadpool.WithObserver.
type PoolMetrics struct {
	ItemsSubmitted prometheus.Counter
	ItemsCompleted prometheus.Counter
	ItemsPanicked  prometheus.Counter
	ItemDuration   prometheus.Histogram
	WorkersExited  prometheus.Counter
}

var _ threadpool.Observer = (*PoolMetrics)(nil)

// NewPoolMetrics creates metrics for the named pool; every series carries a pool label
func NewPoolMetrics(registerer prometheus.Registerer, pool string) *PoolMetrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"pool": pool}, registerer))

	return &PoolMetrics{
		ItemsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadpool_items_submitted_total",
				Help: "Total number of items accepted by Submit",
			},
		),
		ItemsCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadpool_items_completed_total",
				Help: "Total number of handler invocations that finished",
			},
		),
		ItemsPanicked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadpool_items_panicked_total",
				Help: "Total number of handler invocations that panicked",
			},
		),
		ItemDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "threadpool_item_duration_seconds",
				Help:    "Handler execution time in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		WorkersExited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "threadpool_workers_exited_total",
				Help: "Total number of workers that terminated",
			},
		),
	}
}

// ItemSubmitted implements threadpool.Observer
func (m *PoolMetrics) ItemSubmitted(int) {
	m.ItemsSubmitted.Inc()
}

// ItemStarted implements threadpool.Observer
func (m *PoolMetrics) ItemStarted(int) {}

// ItemFinished implements threadpool.Observer
func (m *PoolMetrics) ItemFinished(_ int, elapsed time.Duration, panicked bool) {
	m.ItemsCompleted.Inc()
	m.ItemDuration.Observe(elapsed.Seconds())
	if panicked {
		m.ItemsPanicked.Inc()
	}
}

// BusyChanged implements threadpool.Observer. Busy workers are exported by
// the stats collector at scrape time, since these events can arrive out of order.
func (m *PoolMetrics) BusyChanged(int64) {}

// WorkerExited implements threadpool.Observer
func (m *PoolMetrics) WorkerExited(int) {
	m.WorkersExited.Inc()
}
