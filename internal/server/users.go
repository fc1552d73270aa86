// users.go - User directory: credential checks and receiver lookups.
//
// The identity set itself is an external concern; this service only
// reads it. Passwords are stored as bcrypt hashes.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// UserDirectory verifies credentials and answers existence queries.
type UserDirectory interface {
	// Authenticate returns nil when the password matches the stored hash
	// for username, ErrInvalidCredentials otherwise.
	Authenticate(ctx context.Context, username, password string) error

	// Exists reports whether username is a known identity.
	Exists(ctx context.Context, username string) (bool, error)
}

type postgresUserDirectory struct {
	db *sql.DB
}

// NewUserDirectory returns a Postgres-backed UserDirectory.
func NewUserDirectory(db *sql.DB) UserDirectory {
	return &postgresUserDirectory{db: db}
}

func (d *postgresUserDirectory) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	err := d.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = $1`, username,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		// Burn comparable time so unknown users are not distinguishable
		// from wrong passwords by latency.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMye"), []byte(password))
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (d *postgresUserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE username = $1`, username,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return true, nil
}

// SeedDemoUsers inserts the demo identities (alice, bob, charlie) when
// they are absent. Intended for development and e2e environments; the
// production credential store is provisioned externally.
func SeedDemoUsers(ctx context.Context, db *sql.DB) error {
	demo := map[string]string{
		"alice":   "alice123",
		"bob":     "bob123",
		"charlie": "charlie123",
	}
	for username, password := range demo {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO users (username, password_hash)
			VALUES ($1, $2)
			ON CONFLICT (username) DO NOTHING
		`, username, string(hash))
		if err != nil {
			return fmt.Errorf("seed user %s: %w", username, err)
		}
	}
	return nil
}

// memUserDirectory holds plaintext-password users for tests.
type memUserDirectory struct {
	mu    sync.RWMutex
	users map[string]string
}

// NewMemUserDirectory returns an in-memory UserDirectory seeded with the
// given username -> password pairs.
func NewMemUserDirectory(users map[string]string) UserDirectory {
	cp := make(map[string]string, len(users))
	for u, p := range users {
		cp[u] = p
	}
	return &memUserDirectory{users: cp}
}

func (d *memUserDirectory) Authenticate(ctx context.Context, username, password string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.users[username]; ok && p == password {
		return nil
	}
	return ErrInvalidCredentials
}

func (d *memUserDirectory) Exists(ctx context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok, nil
}
