package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	version string
	started time.Time
	deps    map[string]Pinger
}

// HealthHandlerOption configures the health handler.
type HealthHandlerOption func(*HealthHandler)

// WithVersion stamps responses with the build version.
func WithVersion(version string) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.version = version
	}
}

// WithDependency registers a named dependency for the readiness probe.
func WithDependency(name string, p Pinger) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.deps[name] = p
	}
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(opts ...HealthHandlerOption) *HealthHandler {
	h := &HealthHandler{
		started: time.Now(),
		deps:    make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health. It answers as long as the process serves
// requests; dependency state is the readiness probe's business.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: formatTime(time.Now().UTC()),
	})
}

// CheckResult reports one dependency check.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReadyResponse is the readiness probe payload.
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Ready handles GET /health/ready. All registered dependencies are pinged
// concurrently; any failure flips the response to 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(h.deps))
		ready  = true
	)

	for name, dep := range h.deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			result := checkDependency(ctx, dep)
			mu.Lock()
			checks[name] = result
			if result.Status != "ok" {
				ready = false
			}
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: formatTime(time.Now().UTC()),
		Checks:    checks,
	})
}

func checkDependency(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return CheckResult{
			Status:   "error",
			Duration: time.Since(start).String(),
			Error:    err.Error(),
		}
	}
	return CheckResult{
		Status:   "ok",
		Duration: time.Since(start).String(),
	}
}
