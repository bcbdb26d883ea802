package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SamplingConfig caps the volume of repeated log messages. The first
// Threshold occurrences of a level+message pair per Tick always land; after
// that the pair is sampled at Rate (ErrorRate for warn and above).
type SamplingConfig struct {
	Enabled bool

	// Tick is the counter reset interval.
	Tick time.Duration

	// Threshold is how many identical messages land per tick before
	// sampling starts.
	Threshold uint64

	// Rate is the post-threshold sampling rate in [0.0, 1.0].
	Rate float64

	// ErrorRate applies to warn and error records.
	ErrorRate float64

	// MaxKeys bounds the number of distinct level+message pairs tracked per
	// tick. Beyond it, records pass through unsampled.
	MaxKeys int

	// NeverSamplePrefixes lists message prefixes exempt from sampling.
	// Authorization denials and audit writes go here.
	NeverSamplePrefixes []string
}

const (
	defaultSamplingTick      = time.Second
	defaultSamplingThreshold = 100
	defaultSamplingMaxKeys   = 10000
)

type samplingHandler struct {
	handler   slog.Handler
	config    SamplingConfig
	counters  sync.Map // map[string]*counter
	keyCount  atomic.Int64
	lastReset atomic.Int64
}

type counter struct {
	count atomic.Uint64
}

// NewSamplingHandler wraps h with threshold-based sampling. With sampling
// disabled it returns h unchanged.
func NewSamplingHandler(h slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return h
	}

	if cfg.Tick == 0 {
		cfg.Tick = defaultSamplingTick
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultSamplingThreshold
	}
	if cfg.MaxKeys == 0 {
		cfg.MaxKeys = defaultSamplingMaxKeys
	}

	sh := &samplingHandler{
		handler: h,
		config:  cfg,
	}
	sh.lastReset.Store(time.Now().UnixNano())

	return sh
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	metricsOnProcessed(r.Level)

	if h.neverSample(r.Message) {
		return h.handler.Handle(ctx, r)
	}

	h.maybeResetCounters()

	key := r.Level.String() + ":" + r.Message

	// Too many distinct keys this tick, pass through rather than grow.
	if h.keyCount.Load() >= int64(h.config.MaxKeys) {
		return h.handler.Handle(ctx, r)
	}

	val, loaded := h.counters.LoadOrStore(key, &counter{})
	if !loaded {
		h.keyCount.Add(1)
	}
	cnt := val.(*counter)
	count := cnt.count.Add(1)

	if count <= h.config.Threshold {
		return h.handler.Handle(ctx, r)
	}

	rate := h.config.Rate
	if r.Level >= slog.LevelWarn {
		rate = h.config.ErrorRate
	}

	if shouldSample(count, rate) {
		return h.handler.Handle(ctx, r)
	}

	metricsOnDropped(r.Level)
	return nil
}

func (h *samplingHandler) neverSample(message string) bool {
	for _, prefix := range h.config.NeverSamplePrefixes {
		if strings.HasPrefix(message, prefix) {
			return true
		}
	}
	return false
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{
		handler: h.handler.WithAttrs(attrs),
		config:  h.config,
	}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{
		handler: h.handler.WithGroup(name),
		config:  h.config,
	}
}

// shouldSample keeps every 1/rate-th record. Deterministic on the counter so
// replicas behave alike.
func shouldSample(count uint64, rate float64) bool {
	if rate >= 1.0 {
		return true
	}
	if rate <= 0.0 {
		return false
	}
	interval := uint64(1.0 / rate)
	return count%interval == 0
}

func (h *samplingHandler) maybeResetCounters() {
	now := time.Now().UnixNano()
	last := h.lastReset.Load()

	if now-last >= h.config.Tick.Nanoseconds() {
		if h.lastReset.CompareAndSwap(last, now) {
			h.counters.Range(func(key, _ any) bool {
				h.counters.Delete(key)
				return true
			})
			h.keyCount.Store(0)
			setSamplingKeyCount(0)
		}
	}
}
