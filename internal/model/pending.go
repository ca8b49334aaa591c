package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op identifies the kind of mutation a pending operation carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Valid reports whether op is one of the known mutation kinds.
func (op Op) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// DefaultMaxRetries bounds delivery attempts per pending operation.
const DefaultMaxRetries = 3

// PendingOperation is a queued, not-yet-acknowledged mutation awaiting
// remote delivery. Exactly one is created per logical mutation; it is
// removed from the pending queue on acknowledged delivery or when
// RetryCount reaches MaxRetries (the entry then moves to the dead-letter
// collection).
//
// Invariant: RetryCount <= MaxRetries holds after every update.
type PendingOperation struct {
	ID         string          `json:"id"`
	Op         Op              `json:"operation"`
	EntityType string          `json:"entity_type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// Validate checks if the PendingOperation has valid field values.
func (p *PendingOperation) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !p.Op.Valid() {
		return fmt.Errorf("unknown operation %q", p.Op)
	}
	if p.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if p.RetryCount < 0 {
		return fmt.Errorf("retry_count must be non-negative (got %d)", p.RetryCount)
	}
	if p.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive (got %d)", p.MaxRetries)
	}
	if p.RetryCount > p.MaxRetries {
		return fmt.Errorf("retry_count %d exceeds max_retries %d", p.RetryCount, p.MaxRetries)
	}
	return nil
}

// Exhausted reports whether the operation has used up its delivery
// attempts and must leave the pending queue.
func (p *PendingOperation) Exhausted() bool {
	return p.RetryCount >= p.MaxRetries
}

// SyncStatus is a derived snapshot of the sync subsystem, never stored.
type SyncStatus struct {
	HasPendingSync bool       `json:"has_pending_sync"`
	PendingCount   int        `json:"pending_count"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	Online         bool       `json:"online"`
}

// SyncResult is the aggregate outcome of one drain pass, emitted once
// per pass regardless of per-entry outcomes.
type SyncResult struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
