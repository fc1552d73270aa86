// security.go - Security headers applied to every response.
package server

import "net/http"

// securityHeadersMiddleware adds security headers to all responses.
// The API serves JSON and binary downloads only, so the CSP locks
// everything down; there is no HTML surface.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Prevent MIME sniffing, downloaded files are attacker-supplied
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Referrer Policy - don't leak transfer URLs
		w.Header().Set("Referrer-Policy", "no-referrer")

		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Permissions Policy - disable unused browser features
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}
