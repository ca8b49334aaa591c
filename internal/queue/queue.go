// Package queue builds and persists pending operations for the sync
// engine.
//
// Enqueue is the single entry point for "this local mutation must
// eventually reach the remote endpoint". The caller never blocks on
// remote completion: when the monitor reports online the queue only
// fires a drain request and returns.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/localfirst/tasksync/internal/event"
	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/netmon"
	"github.com/localfirst/tasksync/internal/store"
)

// DrainRequester receives fire-and-forget drain triggers. Satisfied by
// the sync engine.
type DrainRequester interface {
	RequestDrain()
}

// Queue persists pending operations and triggers drains.
type Queue struct {
	store  *store.Store
	mon    *netmon.Monitor
	drains DrainRequester
	bus    *event.Bus
	logger *log.Logger
}

// Option configures optional collaborators.
type Option func(*Queue)

// WithBus publishes a queue_update event after every enqueue.
func WithBus(bus *event.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates a Queue. drains may be nil when no engine is attached
// (enqueue-only tooling).
func New(st *store.Store, mon *netmon.Monitor, drains DrainRequester, opts ...Option) *Queue {
	q := &Queue{
		store:  st,
		mon:    mon,
		drains: drains,
		logger: log.New(os.Stderr, "[queue] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue builds a PendingOperation for the mutation, persists it, and
// requests a drain iff the monitor currently reports online. Multiple
// mutations of the same entity queue independently and replay in
// insertion order; there is no cross-entry uniqueness constraint.
func (q *Queue) Enqueue(ctx context.Context, op model.Op, entityType string, payload any) (*model.PendingOperation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	pending := &model.PendingOperation{
		ID:         uuid.New().String(),
		Op:         op,
		EntityType: entityType,
		Data:       data,
		Timestamp:  time.Now(),
		RetryCount: 0,
		MaxRetries: model.DefaultMaxRetries,
	}

	if err := q.store.AppendPending(ctx, pending); err != nil {
		return nil, err
	}

	q.logger.Printf("Queued %s %s (%s)", op, entityType, pending.ID)

	if q.bus != nil {
		if count, err := q.store.CountPending(ctx); err == nil {
			q.bus.Publish(event.Event{Type: event.TypeQueueUpdate, Data: count})
		}
	}

	if q.drains != nil && q.mon.Online() {
		q.drains.RequestDrain()
	}

	return pending, nil
}

// Pending returns the queued operations in insertion order.
func (q *Queue) Pending(ctx context.Context) ([]*model.PendingOperation, error) {
	return q.store.ListPending(ctx)
}
