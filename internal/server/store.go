// store.go - Durable transfer metadata store backed by Postgres.
//
// The store is the single source of truth for status queries. Status
// updates are expressed as compare-and-set statements so that concurrent
// writers on the same id serialize on the row and illegal transitions
// are rejected in the database, not by caller discipline.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferStore persists transfer records and enforces the status state
// machine on every update.
type TransferStore interface {
	// Create inserts a new record. The record becomes visible to readers
	// atomically or not at all.
	Create(ctx context.Context, t *Transfer) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Transfer, error)

	// UpdateStatus moves the transfer to next, recording reason when next
	// is FAILED. Fails with ErrNotFound or ErrInvalidTransition. Concurrent
	// calls on the same id are serialized; at most one of two racing legal
	// transitions is applied.
	UpdateStatus(ctx context.Context, id uuid.UUID, next Status, reason string) error

	// RecordIntegrity stores the checksum and byte count produced by the
	// processing pipeline. Only applies while the transfer is PROCESSING.
	RecordIntegrity(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) error

	// ListForUser returns transfers where username is sender or receiver,
	// newest first.
	ListForUser(ctx context.Context, username string) ([]*Transfer, error)

	// StaleProcessing returns ids of transfers stuck in PROCESSING since
	// before cutoff. Used by the watchdog.
	StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// postgresTransferStore implements TransferStore on *sql.DB.
type postgresTransferStore struct {
	db *sql.DB
}

// NewTransferStore returns a Postgres-backed TransferStore.
func NewTransferStore(db *sql.DB) TransferStore {
	return &postgresTransferStore{db: db}
}

func (s *postgresTransferStore) Create(ctx context.Context, t *Transfer) error {
	if !validStatus(t.Status) {
		return fmt.Errorf("create transfer: bad status %q", t.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (id, sender, receiver, file_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, t.ID, t.Sender, t.Receiver, t.FileName, string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (s *postgresTransferStore) Get(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	return scanTransfer(s.db.QueryRowContext(ctx, `
		SELECT id, sender, receiver, file_name, status, failure_reason, checksum, size_bytes, created_at, updated_at
		FROM transfers
		WHERE id = $1
	`, id))
}

func (s *postgresTransferStore) UpdateStatus(ctx context.Context, id uuid.UUID, next Status, reason string) error {
	if !validStatus(next) {
		return ErrInvalidTransition
	}

	sources := legalSources(next)
	if len(sources) == 0 {
		// PENDING is never a transition target.
		return ErrInvalidTransition
	}
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	var failureReason sql.NullString
	if next == StatusFailed {
		failureReason = sql.NullString{String: reason, Valid: true}
	}

	// Compare-and-set: the row moves only if its current status is a legal
	// source for `next`. Postgres row locking serializes racing writers.
	res, err := s.db.ExecContext(ctx, `
		UPDATE transfers
		SET status = $2, failure_reason = COALESCE($3, failure_reason), updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])
	`, id, string(next), failureReason, pqStringArray(from))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the id is unknown or the current status does
	// not permit the transition.
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM transfers WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return ErrInvalidTransition
}

func (s *postgresTransferStore) RecordIntegrity(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transfers
		SET checksum = $2, size_bytes = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, checksum, sizeBytes, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("record integrity: %w", err)
	}
	return nil
}

func (s *postgresTransferStore) ListForUser(ctx context.Context, username string) ([]*Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, file_name, status, failure_reason, checksum, size_bytes, created_at, updated_at
		FROM transfers
		WHERE sender = $1 OR receiver = $1
		ORDER BY created_at DESC
		LIMIT 200
	`, username)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []*Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresTransferStore) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM transfers
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, string(StatusProcessing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("stale processing: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	var (
		t             Transfer
		status        string
		failureReason sql.NullString
		checksum      sql.NullString
		sizeBytes     sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Sender, &t.Receiver, &t.FileName, &status,
		&failureReason, &checksum, &sizeBytes, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	t.Status = Status(status)
	t.FailureReason = failureReason.String
	t.Checksum = checksum.String
	t.SizeBytes = sizeBytes.Int64
	return &t, nil
}

// pqStringArray renders a []string as a Postgres text[] literal for use
// with status = ANY($n). Statuses are fixed identifiers, never user input.
func pqStringArray(items []string) string {
	out := "{"
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out + "}"
}
