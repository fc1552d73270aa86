// ratelimit.go - Per-IP rate limiting middleware.
//
// Transfer clients poll the status endpoint every couple of seconds, so
// the default budget is generous; the limiter exists to stop credential
// stuffing and runaway scripts, not to meter polling. Designed to
// complement proxy-side limits.
package server

import (
	"net/http"
	"sync"
	"time"
)

// rateLimiter counts requests per client IP in fixed windows and
// responds 429 once the budget for the current window is spent.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests allowed per window
	window   time.Duration // window length
}

// visitor is the counter state for one client IP.
type visitor struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// newRateLimiter creates a limiter allowing `rate` requests per `window`
// per IP. Example: newRateLimiter(300, time.Minute).
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}

	// Drop idle visitor entries so the map does not grow forever.
	go rl.cleanup()

	return rl
}

// middleware enforces the limit. Liveness and readiness probes are
// exempt: orchestration must always be able to ask.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.allow(getClientIP(r)) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow consumes one request from ip's budget and reports whether it fit.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &visitor{count: 1, windowStart: now, lastSeen: now}
		return true
	}
	v.lastSeen = now

	if now.Sub(v.windowStart) >= rl.window {
		v.windowStart = now
		v.count = 1
		return true
	}

	if v.count >= rl.rate {
		return false
	}
	v.count++
	return true
}

// cleanup periodically removes visitors idle for more than two windows.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-rl.window * 2)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// getClientIP extracts the client's IP address from the request.
// It checks X-Forwarded-For and X-Real-IP headers first (for reverse proxies),
// then falls back to RemoteAddr.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list of IPs)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		for i, c := range xff {
			if c == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr (format: "ip:port")
	for i := len(r.RemoteAddr) - 1; i >= 0; i-- {
		if r.RemoteAddr[i] == ':' {
			return r.RemoteAddr[:i]
		}
	}

	return r.RemoteAddr
}
