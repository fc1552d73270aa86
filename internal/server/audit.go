// audit.go - Durable trail for authentication and transfer events.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLogin        AuditAction = "login"
	AuditActionInitiate     AuditAction = "transfer_initiate"
	AuditActionDownload     AuditAction = "content_download"
	AuditActionStatusDenied AuditAction = "status_denied"
)

// auditEntry is one audit row. Resource holds the transfer id when the
// action concerns a specific transfer.
type auditEntry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    AuditAction
	Username  string
	IPAddress string
	UserAgent string
	Resource  string
	Success   bool
	ErrorMsg  string
}

// audit records an audit row for the request. Failures are logged, never
// propagated: an audit outage must not break transfers. A nil DB (tests,
// local runs) disables persistence.
func (cfg Config) audit(r *http.Request, action AuditAction, username, resource string, success bool, errMsg string) {
	if cfg.DB == nil {
		return
	}

	e := auditEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Username:  username,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
		Resource:  resource,
		Success:   success,
		ErrorMsg:  errMsg,
	}

	// Detached context: the request may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cfg.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (id, ts, action, username, ip_address, user_agent, resource, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Timestamp, string(e.Action), e.Username, e.IPAddress, e.UserAgent, e.Resource, e.Success, e.ErrorMsg)
	if err != nil {
		log.Printf("service=audit msg=%q action=%s err=%v", "insert_failed", action, err)
	}
}
