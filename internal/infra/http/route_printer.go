package http

import (
	"fmt"
	"io"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// RouteInfo is one line of the route table.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// RouteStats summarizes the registered routes.
type RouteStats struct {
	Total   int
	Methods map[string]int
	Routes  []RouteInfo
}

// CollectRoutes walks the router and returns its routes sorted by path,
// then method. The server binary's -print-routes flag consumes this; it
// doubles as a quick way to audit which guard chain serves which path.
func CollectRoutes(router Router) RouteStats {
	stats := RouteStats{
		Methods: make(map[string]int),
		Routes:  []RouteInfo{},
	}

	_ = router.Walk(func(method, path string, handler http.Handler) error {
		stats.Routes = append(stats.Routes, RouteInfo{
			Method:  method,
			Path:    path,
			Handler: handlerName(handler),
		})
		stats.Methods[method]++
		stats.Total++
		return nil
	})

	sort.Slice(stats.Routes, func(i, j int) bool {
		a, b := stats.Routes[i], stats.Routes[j]
		if a.Path == b.Path {
			return a.Method < b.Method
		}
		return a.Path < b.Path
	})

	return stats
}

// handlerName resolves the registered function's name via the runtime,
// trimming the package path and the method-value suffix.
func handlerName(handler http.Handler) string {
	fn := runtime.FuncForPC(reflect.ValueOf(handler).Pointer())
	if fn == nil {
		return fmt.Sprintf("%T", handler)
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// PrintRoutes renders the route table in a fixed-width layout.
func PrintRoutes(w io.Writer, stats RouteStats) {
	rule := strings.Repeat("-", 110)

	fmt.Fprintf(w, "%-8s %-60s %s\n", "METHOD", "PATH", "HANDLER")
	fmt.Fprintln(w, rule)
	for _, r := range stats.Routes {
		h := r.Handler
		if len(h) > 40 {
			h = "..." + h[len(h)-37:]
		}
		fmt.Fprintf(w, "%-8s %-60s %s\n", r.Method, r.Path, h)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%d routes\n", stats.Total)
}
