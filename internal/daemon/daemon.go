// Package daemon runs the long-lived sync process.
//
// The daemon:
//  1. Starts the connectivity monitor and the engine's drain scheduler
//  2. Watches an outbox directory where other local processes drop
//     mutation files, enqueueing each one
//  3. Relays connectivity transitions onto the event bus
//  4. Serves the WebSocket dashboard
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/localfirst/tasksync/internal/engine"
	"github.com/localfirst/tasksync/internal/event"
	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/netmon"
	"github.com/localfirst/tasksync/internal/queue"
)

// Mutation is the envelope format of outbox files: one JSON document
// per local mutation that must eventually reach the remote endpoint.
type Mutation struct {
	Op         model.Op        `json:"op"`
	EntityType string          `json:"entity_type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Config holds daemon configuration.
type Config struct {
	// OutboxDir is the directory watched for mutation files.
	OutboxDir string

	// DebounceInterval is how long to wait before processing outbox
	// changes, batching rapid writes together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates the monitor, engine, and outbox intake.
type Daemon struct {
	queue  *queue.Queue
	engine *engine.Engine
	mon    *netmon.Monitor
	bus    *event.Bus
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued time
	changeQueueMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a Daemon. All collaborators are required except bus.
func New(q *queue.Queue, eng *engine.Engine, mon *netmon.Monitor, bus *event.Bus, config *Config) (*Daemon, error) {
	if q == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if mon == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	return &Daemon{
		queue:       q,
		engine:      eng,
		mon:         mon,
		bus:         bus,
		config:      config,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.bus != nil {
		d.mon.Subscribe(func(online bool) {
			d.bus.Publish(event.Event{Type: event.TypeConnectivity, Data: online})
		})
	}

	d.engine.Start(ctx)
	d.mon.Start(ctx)

	// Drain anything left over from previous runs once we know we are up
	d.engine.RequestDrain()

	if d.config.OutboxDir != "" {
		if err := d.startOutbox(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	d.config.Logger.Println("Shutdown signal received")

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}
	d.wg.Wait()
	d.engine.Wait()
	d.mon.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// startOutbox provisions the outbox directory, processes anything
// already sitting in it, and begins watching for new files.
func (d *Daemon) startOutbox(ctx context.Context) error {
	if err := os.MkdirAll(d.config.OutboxDir, 0755); err != nil {
		return fmt.Errorf("failed to create outbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	d.watcher = watcher

	if err := watcher.Add(d.config.OutboxDir); err != nil {
		return fmt.Errorf("failed to watch outbox directory: %w", err)
	}

	d.config.Logger.Printf("Watching outbox: %s", d.config.OutboxDir)

	if err := d.sweepOutbox(ctx); err != nil {
		return err
	}

	d.wg.Add(2)
	go d.watchFileEvents(ctx)
	go d.processChangeQueue(ctx)

	return nil
}

// sweepOutbox enqueues mutation files left over from previous runs.
func (d *Daemon) sweepOutbox(ctx context.Context) error {
	entries, err := os.ReadDir(d.config.OutboxDir)
	if err != nil {
		return fmt.Errorf("failed to read outbox directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(d.config.OutboxDir, entry.Name())
		if err := d.ingestMutation(ctx, path); err != nil {
			d.config.Logger.Printf("Warning: failed to ingest %s: %v", entry.Name(), err)
		}
	}
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}

			d.queueChange(ev.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue ingests queued outbox files once they have been
// quiet for a debounce interval.
func (d *Daemon) processChangeQueue(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges(ctx)
		}
	}
}

// processPendingChanges ingests files that have been queued long enough.
// Due paths are collected under the lock but ingested after releasing
// it, so the watcher goroutine never blocks on file reads or store
// writes.
func (d *Daemon) processPendingChanges(ctx context.Context) {
	d.changeQueueMu.Lock()
	now := time.Now()
	var due []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)
		due = append(due, path)
	}
	d.changeQueueMu.Unlock()

	for _, path := range due {
		if err := d.ingestMutation(ctx, path); err != nil {
			d.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
	}
}

// ingestMutation parses one outbox file, enqueues its mutation, and
// removes the file. A file deleted out from under us is not an error.
func (d *Daemon) ingestMutation(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read mutation file: %w", err)
	}

	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse mutation file: %w", err)
	}
	if !m.Op.Valid() {
		return fmt.Errorf("unknown operation %q", m.Op)
	}
	if m.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}

	pending, err := d.queue.Enqueue(ctx, m.Op, m.EntityType, m.Data)
	if err != nil {
		return err
	}

	d.config.Logger.Printf("Ingested %s (%s %s -> %s)",
		filepath.Base(path), m.Op, m.EntityType, pending.ID)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.config.Logger.Printf("Warning: failed to remove %s: %v", path, err)
	}
	return nil
}
