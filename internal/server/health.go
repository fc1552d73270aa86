// health.go - Liveness and readiness endpoints with component detail.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// healthProbeID is a reserved id used only to probe storage reachability.
var healthProbeID = uuid.Nil

// isNotFound distinguishes "backend answered: no such object" from a
// backend that is unreachable.
func isNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var mErr minio.ErrorResponse
	return errors.As(err, &mErr) && mErr.Code == "NoSuchKey"
}

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    string  `json:"status"` // "up" or "down"
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	QueueDepth int                        `json:"queue_depth"`
	Components map[string]ComponentHealth `json:"components"`
}

// healthHandler reports component-level health: database, object
// storage, and the processing queue.
func (cfg Config) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		h := Health{
			Status:     HealthStatusHealthy,
			Timestamp:  time.Now().UTC(),
			Version:    cfg.Build.Version,
			Components: map[string]ComponentHealth{},
		}
		if cfg.Engine != nil {
			h.QueueDepth = cfg.Engine.QueueDepth()
			if stats, ok := cfg.Engine.BreakerStats(); ok {
				ch := ComponentHealth{Status: "up"}
				if stats.State == StateOpen {
					ch.Status = "down"
					ch.Message = "circuit breaker open"
					if h.Status == HealthStatusHealthy {
						h.Status = HealthStatusDegraded
					}
				}
				h.Components["storage_breaker"] = ch
			}
		}

		if cfg.DB != nil {
			start := time.Now()
			if err := cfg.DB.PingContext(ctx); err != nil {
				h.Components["database"] = ComponentHealth{Status: "down", Message: err.Error()}
				h.Status = HealthStatusUnhealthy
			} else {
				h.Components["database"] = ComponentHealth{Status: "up", LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
			}
		}

		if cfg.Blob != nil {
			start := time.Now()
			// Stat of an id that cannot exist: reachability is what matters,
			// "not found" still proves the backend answered.
			if _, err := cfg.Blob.Stat(ctx, healthProbeID); err == nil || isNotFound(err) {
				h.Components["object_storage"] = ComponentHealth{Status: "up", LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
			} else {
				h.Components["object_storage"] = ComponentHealth{Status: "down", Message: err.Error()}
				if h.Status == HealthStatusHealthy {
					h.Status = HealthStatusDegraded
				}
			}
		}

		code := http.StatusOK
		if h.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})
}

// readyHandler is the cheap readiness probe used by orchestration and
// the integration tests.
func (cfg Config) readyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
}
