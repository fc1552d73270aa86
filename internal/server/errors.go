// errors.go - Sentinel errors shared across the transfer engine and HTTP layer.
package server

import "errors"

var (
	// ErrInvalidCredentials is returned when a login attempt fails.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for malformed, unsigned, or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrUnknownReceiver is returned when a transfer names a receiver that
	// does not exist in the user directory. Nothing is persisted in that case.
	ErrUnknownReceiver = errors.New("unknown receiver")

	// ErrNotFound is returned when a transfer id has no record.
	ErrNotFound = errors.New("transfer not found")

	// ErrForbidden is returned when the requester is neither sender nor
	// receiver of the transfer (or, for content, not the receiver).
	ErrForbidden = errors.New("forbidden")

	// ErrNotReady is returned when content is requested before the transfer
	// reaches COMPLETED.
	ErrNotReady = errors.New("transfer not ready")

	// ErrInvalidTransition is returned when a status update would violate
	// the transfer state machine. It indicates a programming or integrity
	// error and must never surface to API clients.
	ErrInvalidTransition = errors.New("invalid status transition")
)
