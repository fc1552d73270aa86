// server.go - HTTP server wiring for the secure transfer backend.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// BuildInfo identifies the running binary in /health responses and logs.
type BuildInfo struct {
	Version string
	Commit  string
}

// Config carries every dependency the HTTP layer needs. It is built once
// in main and passed by value into handler constructors; business logic
// never reaches for ambient globals.
type Config struct {
	Addr   string // e.g. ":8080"
	Build  BuildInfo
	Auth   AuthConfig
	Engine *Engine
	DB     *sql.DB   // nil when running without audit persistence
	Blob   BlobStore // used by health checks
}

type Server struct {
	httpServer *http.Server
}

// New wires routes and middleware and returns an unstarted server.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	// Liveness and readiness
	mux.Handle("GET /health", cfg.healthHandler())
	mux.Handle("GET /ready", cfg.readyHandler())

	// Metrics (Prometheus text exposition)
	mux.Handle("GET /metrics", NewPrometheusExporter(cfg.Build.Version).Handler())

	// Authentication
	mux.Handle("POST /api/auth/login", cfg.loginHandler())

	// Transfers
	mux.Handle("POST /api/transfers", cfg.initiateHandler())
	mux.Handle("GET /api/transfers", cfg.listHandler())
	mux.Handle("GET /api/transfers/{id}", cfg.statusHandler())
	mux.Handle("GET /api/transfers/{id}/content", cfg.downloadHandler())

	// Wrap middleware: security headers -> requestID -> logging -> ratelimit -> mux
	var handler http.Handler = mux
	handler = newRateLimiter(300, time.Minute).middleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{httpServer: s}
}

// Handler exposes the configured handler chain for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeJSON is a small helper for ad-hoc JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
