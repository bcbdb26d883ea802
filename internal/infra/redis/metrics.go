package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Redis instrumentation: per-operation latency and error
// counters, connection pool gauges, and limiter verdict counters.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	operationErrors   *prometheus.CounterVec

	pool map[string]prometheus.Gauge

	rateLimitAllowed *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec
}

// DefaultMetrics is the package-wide instance every helper records into.
var DefaultMetrics = NewMetrics("taskforge")

// NewMetrics registers all Redis collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	hist := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labels)
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		operationDuration: hist("operation_duration_seconds",
			"Latency of Redis commands issued by the API.",
			[]float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			"operation"),
		operationTotal: counter("operations_total",
			"Redis commands issued by the API.", "operation"),
		operationErrors: counter("operation_errors_total",
			"Redis commands that returned an error.", "operation"),

		pool: map[string]prometheus.Gauge{
			"hits":     gauge("pool_hits_total", "Checkouts served by an idle pooled connection."),
			"misses":   gauge("pool_misses_total", "Checkouts that had to dial a new connection."),
			"timeouts": gauge("pool_timeouts_total", "Checkouts that timed out waiting for the pool."),
			"total":    gauge("pool_total_connections", "Connections currently held by the pool."),
			"idle":     gauge("pool_idle_connections", "Idle connections currently in the pool."),
			"stale":    gauge("pool_stale_connections", "Connections discarded as stale."),
		},

		rateLimitAllowed: counter("ratelimit_allowed_total",
			"Requests admitted by a distributed rate limiter.", "limiter"),
		rateLimitDenied: counter("ratelimit_denied_total",
			"Requests rejected by a distributed rate limiter.", "limiter"),
	}
}

// ObserveOperation records one command's latency and outcome.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(operation).Inc()
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordRateLimitResult counts a limiter verdict under the limiter's key
// prefix.
func (m *Metrics) RecordRateLimitResult(limiterName string, allowed bool) {
	if allowed {
		m.rateLimitAllowed.WithLabelValues(limiterName).Inc()
		return
	}
	m.rateLimitDenied.WithLabelValues(limiterName).Inc()
}

// UpdatePoolStats copies the driver's pool counters into the gauges.
func (m *Metrics) UpdatePoolStats(client *Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	if stats == nil {
		return
	}
	m.pool["hits"].Set(float64(stats.Hits))
	m.pool["misses"].Set(float64(stats.Misses))
	m.pool["timeouts"].Set(float64(stats.Timeouts))
	m.pool["total"].Set(float64(stats.TotalConns))
	m.pool["idle"].Set(float64(stats.IdleConns))
	m.pool["stale"].Set(float64(stats.StaleConns))
}

// StartPoolStatsCollector samples pool stats on the given interval until
// the returned stop function is called or ctx ends.
func StartPoolStatsCollector(ctx context.Context, client *Client, interval time.Duration) func() {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				DefaultMetrics.UpdatePoolStats(client)
			}
		}
	}()
	return cancel
}

// Timed times one command. Call the returned func with the command's
// error when it finishes:
//
//	done := Timed("get")
//	val, err := client.Get(ctx, key)
//	done(err)
func Timed(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		DefaultMetrics.ObserveOperation(operation, time.Since(start), err)
	}
}
