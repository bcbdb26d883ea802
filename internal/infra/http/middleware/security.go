package middleware

import (
	"fmt"
	"net/http"
)

// SecurityHeadersConfig controls the Strict-Transport-Security header.
// The remaining hardening headers are unconditional.
type SecurityHeadersConfig struct {
	// HSTSEnabled turns the header on. Keep it off for plain-HTTP local
	// runs; once a browser caches the policy it will refuse http://.
	HSTSEnabled bool
	// HSTSMaxAge in seconds, one year when zero.
	HSTSMaxAge int
	// HSTSIncludeSubdomains extends the policy to subdomains.
	HSTSIncludeSubdomains bool
}

// SecurityHeaders is SecurityHeadersWithConfig with HSTS off.
func SecurityHeaders() func(http.Handler) http.Handler {
	return SecurityHeadersWithConfig(SecurityHeadersConfig{})
}

// SecurityHeadersWithConfig stamps browser hardening headers on every
// response. The CSP assumes a JSON-only API that never serves markup, and
// Cache-Control forbids storing responses since most carry authorization.
func SecurityHeadersWithConfig(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	if cfg.HSTSMaxAge == 0 {
		cfg.HSTSMaxAge = 31536000
	}

	hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
	if cfg.HSTSIncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	static := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Permissions-Policy":      "geolocation=(), microphone=(), camera=()",
		"Cache-Control":           "no-store, no-cache, must-revalidate, proxy-revalidate",
		"Pragma":                  "no-cache",
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range static {
				w.Header().Set(name, value)
			}
			if cfg.HSTSEnabled {
				w.Header().Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
