package middleware

import "net/http"

// DefaultMaxBodySize caps request bodies at 1 MiB. The API only accepts
// small JSON documents; anything larger is a client bug or abuse.
const DefaultMaxBodySize = 1 << 20

// BodyLimit wraps request bodies in a MaxBytesReader. Methods that carry
// no body pass through untouched. A non-positive maxBytes selects
// DefaultMaxBodySize.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}

	bodyless := map[string]struct{}{
		http.MethodGet:     {},
		http.MethodHead:    {},
		http.MethodOptions: {},
		http.MethodTrace:   {},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bodyless[r.Method]; !ok {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
