package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/taskforge/api/pkg/apierror"
)

// Timeout runs each handler with a deadline on the request context and
// answers 504 when the deadline fires before the handler writes. Paths in
// skipPaths are exempt; the activity feed websocket must be, since its
// connections outlive any sane request deadline.
func Timeout(timeout time.Duration, skipPaths ...string) func(http.Handler) http.Handler {
	exempt := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{
				ResponseWriter: w,
				handlerDone:    make(chan struct{}),
			}

			go func() {
				defer close(tw.handlerDone)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-tw.handlerDone:
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				if !tw.wrote {
					tw.expired = true
					apierror.New(http.StatusGatewayTimeout, "TIMEOUT", "Request timeout").WriteJSON(w)
				}
			}
		})
	}
}

// timeoutWriter serializes the race between the handler goroutine and the
// 504 response: whichever writes first wins, the other is dropped.
type timeoutWriter struct {
	http.ResponseWriter
	handlerDone chan struct{}
	mu          sync.Mutex
	wrote       bool
	expired     bool
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return 0, context.DeadlineExceeded
	}
	tw.wrote = true
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return
	}
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(code)
}

// Hijack lets upgraded connections escape the timeout writer.
func (tw *timeoutWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := tw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("timeoutWriter: underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}
