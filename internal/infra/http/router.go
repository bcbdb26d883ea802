package http

import "net/http"

// Middleware wraps an http.Handler in the standard net/http style.
type Middleware func(http.Handler) http.Handler

// Router is the routing surface the route tables are written against.
// Handlers and route registration depend on this interface, not on the
// concrete mux, so the underlying router can change without touching them.
//
// Route methods accept optional per-route middleware, applied so the first
// one listed runs outermost:
//
//	r.GET("/", handler)
//	r.GET("/", handler, requireActive)
//	r.GET("/", handler, requireActive, requireOrgAdmin)
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PUT(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group registers routes under a shared prefix. Group middleware wraps
	// every route inside the group.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use appends middleware for all routes registered afterwards.
	Use(middlewares ...Middleware)

	// Handler exposes the mux for http.Server.
	Handler() http.Handler

	// Walk visits every registered route.
	Walk(fn func(method, path string, handler http.Handler) error) error
}
