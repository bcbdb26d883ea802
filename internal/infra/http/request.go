package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PathParam reads a named path segment regardless of which router served
// the request. It prefers the chi route context and falls back to
// r.PathValue so handlers also work under the stdlib mux in tests.
func PathParam(r *http.Request, key string) string {
	if v := chi.URLParam(r, key); v != "" {
		return v
	}
	return r.PathValue(key)
}

// QueryParam reads a single query string value, empty when absent.
func QueryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// QueryParamDefault reads a query string value, substituting fallback
// when the parameter is missing or empty.
func QueryParamDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}
