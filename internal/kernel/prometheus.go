package kernel

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder fulfills MetricsRecorder on top of a Prometheus
// registry, for deployments that scrape rather than poll expvar.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worldcore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of kernel operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldcore",
			Name:      "operation_results_total",
			Help:      "Kernel operation outcomes by status.",
		}, []string{"operation", "status"}),
	}
	if err := reg.Register(r.durations); err != nil {
		return nil, err
	}
	if err := reg.Register(r.results); err != nil {
		return nil, err
	}
	return r, nil
}

// Observe records a kernel operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// BusStatsCollector exports PatchBus counters as Prometheus gauges. It reads
// a stats snapshot per scrape, so collection never contends with submission
// beyond the bus's reader lock.
type BusStatsCollector struct {
	bus *PatchBus

	submitted  *prometheus.Desc
	rejected   *prometheus.Desc
	committed  *prometheus.Desc
	rolledBack *prometheus.Desc
	expired    *prometheus.Desc
	deferred   *prometheus.Desc
	pending    *prometheus.Desc
	commitLog  *prometheus.Desc
	claimed    *prometheus.Desc
}

// NewBusStatsCollector constructs a collector over the given bus.
func NewBusStatsCollector(bus *PatchBus) *BusStatsCollector {
	return &BusStatsCollector{
		bus:        bus,
		submitted:  prometheus.NewDesc("worldcore_bus_submitted_total", "Transactions accepted by the bus.", nil, nil),
		rejected:   prometheus.NewDesc("worldcore_bus_rejected_total", "Transactions rejected at validation.", nil, nil),
		committed:  prometheus.NewDesc("worldcore_bus_committed_total", "Transactions committed.", nil, nil),
		rolledBack: prometheus.NewDesc("worldcore_bus_rolled_back_total", "Transactions rolled back after apply failure.", nil, nil),
		expired:    prometheus.NewDesc("worldcore_bus_expired_total", "Transactions cancelled by the expiry policy.", nil, nil),
		deferred:   prometheus.NewDesc("worldcore_bus_deferred_total", "Ready transactions deferred by conflicts.", nil, nil),
		pending:    prometheus.NewDesc("worldcore_bus_pending_depth", "Transactions waiting in the pending queue.", nil, nil),
		commitLog:  prometheus.NewDesc("worldcore_bus_commit_log_size", "Ids retained in the commit log.", nil, nil),
		claimed:    prometheus.NewDesc("worldcore_bus_claimed_targets", "Targets claimed by in-flight transactions.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *BusStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.submitted
	ch <- c.rejected
	ch <- c.committed
	ch <- c.rolledBack
	ch <- c.expired
	ch <- c.deferred
	ch <- c.pending
	ch <- c.commitLog
	ch <- c.claimed
}

// Collect implements prometheus.Collector.
func (c *BusStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.bus.Stats()
	ch <- prometheus.MustNewConstMetric(c.submitted, prometheus.CounterValue, float64(stats.Submitted))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(stats.Rejected))
	ch <- prometheus.MustNewConstMetric(c.committed, prometheus.CounterValue, float64(stats.Committed))
	ch <- prometheus.MustNewConstMetric(c.rolledBack, prometheus.CounterValue, float64(stats.RolledBack))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(stats.Expired))
	ch <- prometheus.MustNewConstMetric(c.deferred, prometheus.CounterValue, float64(stats.Deferred))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(stats.PendingDepth))
	ch <- prometheus.MustNewConstMetric(c.commitLog, prometheus.GaugeValue, float64(stats.CommitLogSize))
	ch <- prometheus.MustNewConstMetric(c.claimed, prometheus.GaugeValue, float64(stats.ClaimedSlots))
}
