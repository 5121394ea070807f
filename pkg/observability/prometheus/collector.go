package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/threadpool/pkg/threadpool"
)

// StatsFunc returns a pool snapshot, normally (*threadpool.Pool[T]).Stats
type StatsFunc func() threadpool.Stats

// statsCollector reads queue depth, busy count and worker states from Stats at scrape time
type statsCollector struct {
	stats   StatsFunc
	queued  *prometheus.Desc
	busy    *prometheus.Desc
	workers *prometheus.Desc
	size    *prometheus.Desc
}

// NewStatsCollector creates a collector for gauges that are cheaper to read
// from the pool on scrape than to track on every event.
func NewStatsCollector(pool string, stats StatsFunc) prometheus.Collector {
	labels := prometheus.Labels{"pool": pool}
	return &statsCollector{
		stats: stats,
		queued: prometheus.NewDesc(
			"threadpool_queued_items",
			"Items waiting in the queue",
			nil, labels,
		),
		busy: prometheus.NewDesc(
			"threadpool_busy_workers",
			"Workers claiming or running an item",
			nil, labels,
		),
		workers: prometheus.NewDesc(
			"threadpool_workers",
			"Workers by looper state",
			[]string{"state"}, labels,
		),
		size: prometheus.NewDesc(
			"threadpool_concurrency",
			"Configured number of workers",
			nil, labels,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queued
	ch <- c.busy
	ch <- c.workers
	ch <- c.size
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(s.Queued))
	ch <- prometheus.MustNewConstMetric(c.busy, prometheus.GaugeValue, float64(s.Busy))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Concurrency))

	for state, n := range map[threadpool.WorkerState]int{
		threadpool.WorkerFetching:   s.Fetching,
		threadpool.WorkerProcessing: s.Processing,
		threadpool.WorkerWaiting:    s.Waiting,
		threadpool.WorkerExited:     s.Exited,
	} {
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(n), state.String())
	}
}
