// initiate.go - POST /api/transfers: authenticated multipart intake.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// initiateResp is the JSON body of the 202 response. The client shows
// message verbatim and starts polling the status endpoint with the id.
type initiateResp struct {
	TransferID string `json:"transferId"`
	Message    string `json:"message"`
}

const initiateMessage = "Transfer initiated. Check status endpoint for progress."

// maxUploadBytes reads ST_MAX_UPLOAD_BYTES and returns the request body
// cap in bytes. Returns 0 if not set (meaning no limit).
func maxUploadBytes() (int64, error) {
	raw := os.Getenv("ST_MAX_UPLOAD_BYTES")
	if raw == "" {
		return 0, nil // no limit configured
	}
	return strconv.ParseInt(raw, 10, 64)
}

// initiateHandler handles POST /api/transfers. The sender is the
// authenticated caller; the multipart form carries `file` and
// `receiver`. Responds 202 with the transfer id even when intake fails
// after the record became visible - the client observes FAILED by
// polling. An unknown receiver is a 404 and nothing is persisted.
func (cfg Config) initiateHandler() http.Handler {
	return cfg.Auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := maxUploadBytes()
		if err != nil {
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}
		if limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		sender := currentUser(r)

		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}

		// Clients send the parts in either order. When `receiver` shows up
		// first the file part streams straight into intake; when `file`
		// comes first its bytes are spooled to a temp file until the
		// receiver field arrives.
		var (
			receiver, fileName     string
			haveReceiver, haveFile bool
			spool                  *os.File
		)
		defer func() {
			if spool != nil {
				_ = spool.Close()
				_ = os.Remove(spool.Name())
			}
		}()

		start := time.Now()
		for !haveReceiver || !haveFile {
			part, err := mr.NextPart()
			if err != nil {
				break
			}

			switch part.FormName() {
			case "receiver":
				receiver = strings.TrimSpace(readSmallField(part))
				haveReceiver = true
			case "file":
				fileName = part.FileName()
				haveFile = true
				if haveReceiver {
					cfg.finishInitiate(w, r, sender, receiver, fileName, part, start)
					_ = part.Close()
					return
				}
				spool, err = os.CreateTemp("", "transfer-intake-*")
				if err != nil {
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				if _, err := io.Copy(spool, part); err != nil {
					http.Error(w, "bad multipart", http.StatusBadRequest)
					return
				}
			}
		}

		if !haveFile {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		if !haveReceiver {
			http.Error(w, "missing receiver field", http.StatusBadRequest)
			return
		}
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		cfg.finishInitiate(w, r, sender, receiver, fileName, spool, start)
	}))
}

// finishInitiate validates the receiver/file pair, hands the stream to
// the engine and writes the 202 response.
func (cfg Config) finishInitiate(w http.ResponseWriter, r *http.Request, sender, receiver, fileName string, body io.Reader, start time.Time) {
	if receiver == "" {
		http.Error(w, "missing receiver field", http.StatusBadRequest)
		return
	}
	// Junk receiver values are unknown by definition; skip the
	// directory lookup.
	if !ValidUsername(receiver) {
		http.Error(w, "unknown receiver", http.StatusNotFound)
		return
	}
	if fileName == "" {
		http.Error(w, "missing file name", http.StatusBadRequest)
		return
	}

	id, err := cfg.Engine.Initiate(r.Context(), sender, receiver, fileName, body)
	if errors.Is(err, ErrUnknownReceiver) {
		cfg.audit(r, AuditActionInitiate, sender, "", false, "unknown receiver")
		http.Error(w, "unknown receiver", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("service=api msg=%q err=%v", "initiate_failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	GetMetrics().RecordInitiateDuration(time.Since(start))
	cfg.audit(r, AuditActionInitiate, sender, id.String(), true, "")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(initiateResp{
		TransferID: id.String(),
		Message:    initiateMessage,
	})
}

// readSmallField reads a form field capped at 1KB; longer values are
// truncated rather than buffered.
func readSmallField(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return string(b)
}
