// transfer.go - Transfer record and its status state machine.
//
// A transfer moves PENDING -> PROCESSING -> COMPLETED, with FAILED
// reachable from any non-terminal status. COMPLETED and FAILED are
// terminal; no further transitions are permitted.
package server

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a transfer as seen by polling clients.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Transfer is one file-sending operation between a sender and a receiver.
// The lifecycle engine is the only component that mutates it; handlers
// read it through the engine.
type Transfer struct {
	ID            uuid.UUID `json:"id"`
	Sender        string    `json:"sender"`
	Receiver      string    `json:"receiver"`
	FileName      string    `json:"fileName"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	Checksum      string    `json:"checksum,omitempty"`
	SizeBytes     int64     `json:"sizeBytes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validStatus reports whether s is one of the four lifecycle statuses.
func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// validTransitions maps a current status to the set of statuses it may
// move to. Terminal statuses map to the empty set.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition reports whether moving from -> to is legal.
func canTransition(from, to Status) bool {
	return validTransitions[from][to]
}

// legalSources returns every status from which `to` is reachable.
// Used by the store to express the transition check as a compare-and-set.
func legalSources(to Status) []Status {
	var out []Status
	for from, targets := range validTransitions {
		if targets[to] {
			out = append(out, from)
		}
	}
	return out
}
