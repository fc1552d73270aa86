// download.go - GET /api/transfers/{id}/content: receiver-only delivery.
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// downloadHandler streams the stored bytes to the receiver. Responds 403
// for any requester other than the receiver, 409 while the transfer has
// not reached COMPLETED, 404 when the id is unknown.
func (cfg Config) downloadHandler() http.Handler {
	return cfg.Auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		requester := currentUser(r)
		start := time.Now()

		rc, t, err := cfg.Engine.Content(r.Context(), id, requester)
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
			return
		case errors.Is(err, ErrForbidden):
			cfg.audit(r, AuditActionDownload, requester, id.String(), false, "not the receiver")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		case errors.Is(err, ErrNotReady):
			http.Error(w, "transfer not completed", http.StatusConflict)
			return
		case err != nil:
			GetMetrics().RecordDownloadError()
			http.Error(w, "storage error", http.StatusBadGateway)
			return
		}
		defer func() { _ = rc.Close() }()

		w.Header().Set("Content-Type", "application/octet-stream")
		if t.SizeBytes > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(t.SizeBytes, 10))
		}
		// Encourage safe download behavior in browsers.
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, t.FileName))

		w.WriteHeader(http.StatusOK)

		n, _ := io.Copy(w, rc)
		GetMetrics().RecordDownload(n, time.Since(start))
		cfg.audit(r, AuditActionDownload, requester, id.String(), true, "")
	}))
}
