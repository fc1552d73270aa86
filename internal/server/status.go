// status.go - Transfer status reads for polling clients.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// statusHandler handles GET /api/transfers/{id}. Only the sender or the
// receiver of the transfer may read its status. Clients poll this
// endpoint; 2 seconds is the recommended interval, the server enforces
// no minimum.
func (cfg Config) statusHandler() http.Handler {
	return cfg.Auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		t, err := cfg.Engine.Status(r.Context(), id, currentUser(r))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrForbidden) {
			cfg.audit(r, AuditActionStatusDenied, currentUser(r), id.String(), false, "not a participant")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(t)
	}))
}

// listHandler handles GET /api/transfers: every transfer the caller
// participates in, newest first.
func (cfg Config) listHandler() http.Handler {
	return cfg.Auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transfers, err := cfg.Engine.List(r.Context(), currentUser(r))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if transfers == nil {
			transfers = []*Transfer{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transfers)
	}))
}
