package logger

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	logsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "logger",
			Name:      "logs_dropped_total",
			Help:      "Total number of logs dropped by sampling",
		},
		[]string{"level"},
	)

	logsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "logger",
			Name:      "logs_processed_total",
			Help:      "Total number of logs processed before sampling",
		},
		[]string{"level"},
	)

	samplingKeyCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskforge",
			Subsystem: "logger",
			Name:      "sampling_key_count",
			Help:      "Distinct level+message pairs tracked by the sampler this tick",
		},
	)

	registerOnce sync.Once
)

// RegisterMetrics registers logger metrics with the given registry, or the
// default registry when nil. Safe to call multiple times.
func RegisterMetrics(registry prometheus.Registerer) {
	registerOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{logsDroppedTotal, logsProcessedTotal, samplingKeyCount} {
			_ = registry.Register(c)
		}
	})
}

func metricsOnProcessed(level slog.Level) {
	logsProcessedTotal.WithLabelValues(levelToString(level)).Inc()
}

func metricsOnDropped(level slog.Level) {
	logsDroppedTotal.WithLabelValues(levelToString(level)).Inc()
}

func setSamplingKeyCount(size int) {
	samplingKeyCount.Set(float64(size))
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// DroppedTotal reads back the dropped-log counter for a level. Test hook; in
// production scrape /metrics instead.
func DroppedTotal(level string) float64 {
	m, err := logsDroppedTotal.GetMetricWithLabelValues(level)
	if err != nil {
		return 0
	}

	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		return 0
	}

	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return 0
}
