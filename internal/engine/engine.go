// Package engine drains the pending-operation queue against the remote
// endpoint whenever connectivity is present.
//
// A drain pass re-reads the queue from the durable store every time it
// runs, so it always acts on current durable state, never a cached
// copy. Entries are delivered sequentially, one full remote round-trip
// at a time, so multiple queued mutations of the same entity replay in
// order and the remote endpoint sees bounded concurrency.
//
// Drain triggers (enqueue-while-online, reconnect, explicit request)
// land on a capacity-1 scheduling channel consumed by a single
// goroutine, so overlapping triggers coalesce into at most one pending
// pass. An in-flight lock shared with ForceSync guarantees two passes
// never run concurrently.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/localfirst/tasksync/internal/event"
	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/netmon"
	"github.com/localfirst/tasksync/internal/remote"
	"github.com/localfirst/tasksync/internal/store"
)

// ErrOffline is returned by ForceSync when the connectivity monitor
// reports offline.
var ErrOffline = errors.New("cannot sync while offline")

// MetaLastSyncTime is the metadata key holding the completion time of
// the most recent drain pass.
const MetaLastSyncTime = "last_sync_time"

// defaultDeliveryTimeout bounds a single remote delivery attempt.
const defaultDeliveryTimeout = 10 * time.Second

// Config holds engine configuration.
type Config struct {
	// DeliveryTimeout bounds each remote delivery attempt (default: 10s).
	DeliveryTimeout time.Duration

	// Bus receives the aggregate completion event of every pass.
	// Optional.
	Bus *event.Bus

	// Clock stamps lastSyncTime and completion events (default: real time).
	Clock Clock

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// Engine coordinates drain passes over the pending queue.
type Engine struct {
	store     *store.Store
	mon       *netmon.Monitor
	transport remote.Transport
	cfg       Config

	// inflight serializes whole passes across the scheduler and ForceSync.
	inflight sync.Mutex

	// reqs coalesces fire-and-forget drain triggers.
	reqs chan struct{}

	wg sync.WaitGroup
}

// New creates an Engine. The store must already be open.
func New(st *store.Store, mon *netmon.Monitor, transport remote.Transport, cfg Config) *Engine {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		store:     st,
		mon:       mon,
		transport: transport,
		cfg:       cfg,
		reqs:      make(chan struct{}, 1),
	}
}

// Start launches the drain scheduler and subscribes to connectivity
// transitions so a reconnect triggers a pass. It returns immediately;
// the scheduler stops when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mon.Subscribe(func(online bool) {
		if online {
			e.RequestDrain()
		}
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.reqs:
				if err := e.runPass(ctx); err != nil {
					e.cfg.Logger.Printf("drain pass failed: %v", err)
				}
			}
		}
	}()
}

// Wait blocks until the scheduler goroutine has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// RequestDrain asks for a drain pass without blocking. Requests made
// while one is already pending coalesce.
func (e *Engine) RequestDrain() {
	select {
	case e.reqs <- struct{}{}:
	default:
	}
}

// ForceSync runs a drain pass synchronously. Unlike the fire-and-forget
// triggers it fails with ErrOffline when the monitor reports offline.
func (e *Engine) ForceSync(ctx context.Context) error {
	if !e.mon.Online() {
		return ErrOffline
	}
	return e.runPass(ctx)
}

// runPass performs one full sweep of the pending queue.
//
// Offline: immediate no-op with no side effects. A failure to read the
// queue aborts the pass, skips the lastSyncTime update, and emits one
// failure event. Per-entry delivery failures are absorbed by the retry
// policy and never abort the pass; after the loop lastSyncTime updates
// and exactly one success event is emitted.
func (e *Engine) runPass(ctx context.Context) error {
	e.inflight.Lock()
	defer e.inflight.Unlock()

	if !e.mon.Online() {
		return nil
	}

	ops, err := e.store.ListPending(ctx)
	if err != nil {
		e.emit(false, err)
		return fmt.Errorf("failed to read pending queue: %w", err)
	}

	for _, op := range ops {
		if err := e.deliver(ctx, op); err != nil {
			e.cfg.Logger.Printf("Delivery failed for %s %s (%s): %v",
				op.Op, op.EntityType, op.ID, err)
			e.retry(ctx, op)
			continue
		}

		if err := e.store.DeletePending(ctx, op.ID); err != nil {
			e.cfg.Logger.Printf("Warning: failed to dequeue acknowledged %s: %v", op.ID, err)
		}
		e.acknowledge(ctx, op)
	}

	now := e.cfg.Clock.Now()
	if err := e.store.PutMeta(ctx, MetaLastSyncTime, now.Format(time.RFC3339Nano)); err != nil {
		e.cfg.Logger.Printf("Warning: failed to record last sync time: %v", err)
	}

	e.emit(true, nil)
	return nil
}

// deliver attempts one remote round-trip with a bounded timeout.
func (e *Engine) deliver(ctx context.Context, op *model.PendingOperation) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()
	return e.transport.Deliver(attemptCtx, op)
}

// acknowledge reflects a delivered mutation back onto the stored
// entity: a task create or update the remote accepted marks the task
// synced. Deletes and non-task entities carry no local flag to update.
// Store failures here are logged, never propagated.
func (e *Engine) acknowledge(ctx context.Context, op *model.PendingOperation) {
	if op.EntityType != "task" || op.Op == model.OpDelete {
		return
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(op.Data, &payload); err != nil || payload.ID == "" {
		return
	}

	if err := e.store.MarkTaskSynced(ctx, payload.ID); err != nil {
		e.cfg.Logger.Printf("Warning: failed to mark task %s synced: %v", payload.ID, err)
	}
}

// retry applies the retry policy to a failed entry: increment the
// counter, write it back, and move the entry to the dead-letter
// collection once its attempts are exhausted. Store failures here are
// logged, never propagated; one entry must not abort the pass.
func (e *Engine) retry(ctx context.Context, op *model.PendingOperation) {
	op.RetryCount++

	if op.Exhausted() {
		e.cfg.Logger.Printf("Giving up on %s %s (%s) after %d attempts, moving to dead letter",
			op.Op, op.EntityType, op.ID, op.RetryCount)
		if err := e.store.MoveToDeadLetter(ctx, op); err != nil {
			e.cfg.Logger.Printf("Warning: failed to dead-letter %s: %v", op.ID, err)
		}
		return
	}

	if err := e.store.UpdatePendingRetry(ctx, op.ID, op.RetryCount); err != nil {
		e.cfg.Logger.Printf("Warning: failed to record retry for %s: %v", op.ID, err)
	}
}

// emit publishes the aggregate pass outcome.
func (e *Engine) emit(success bool, err error) {
	if e.cfg.Bus == nil {
		return
	}

	result := model.SyncResult{
		Success:   success,
		Timestamp: e.cfg.Clock.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	e.cfg.Bus.Publish(event.Event{Type: event.TypeSyncComplete, Data: result})
}

// Status assembles the derived sync status snapshot.
func (e *Engine) Status(ctx context.Context) (*model.SyncStatus, error) {
	count, err := e.store.CountPending(ctx)
	if err != nil {
		return nil, err
	}

	status := &model.SyncStatus{
		HasPendingSync: count > 0,
		PendingCount:   count,
		Online:         e.mon.Online(),
	}

	var stamp string
	err = e.store.GetMeta(ctx, MetaLastSyncTime, &stamp)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// never synced
	case err != nil:
		return nil, err
	default:
		if t, perr := time.Parse(time.RFC3339Nano, stamp); perr == nil {
			status.LastSyncTime = &t
		}
	}

	return status, nil
}

// Requeue moves a dead-letter entry back into the pending queue and,
// when online, requests a drain so it gets another delivery attempt.
func (e *Engine) Requeue(ctx context.Context, id string) error {
	if err := e.store.RequeueDeadLetter(ctx, id); err != nil {
		return err
	}
	if e.mon.Online() {
		e.RequestDrain()
	}
	return nil
}
