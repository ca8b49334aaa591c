// Command tsync is the offline-first task manager CLI.
//
// Local mutations land in the durable store immediately and are queued
// for eventual delivery to the remote task service; the daemon (or a
// best-effort flush after each one-shot command) drains the queue when
// connectivity is present.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/localfirst/tasksync/internal/config"
	"github.com/localfirst/tasksync/internal/engine"
	"github.com/localfirst/tasksync/internal/event"
	"github.com/localfirst/tasksync/internal/netmon"
	"github.com/localfirst/tasksync/internal/queue"
	"github.com/localfirst/tasksync/internal/remote"
	"github.com/localfirst/tasksync/internal/store"
)

var dbPathFlag string

var rootCmd = &cobra.Command{
	Use:   "tsync",
	Short: "Offline-first task manager with eventual remote sync",
	Long: `tsync keeps your tasks in a local SQLite store and queues every
mutation for delivery to the remote task service. Edits made while
offline sync automatically once connectivity returns.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database path (overrides config)")
}

// app bundles the wired-up collaborators one-shot commands need.
type app struct {
	cfg    *config.Config
	store  *store.Store
	mon    *netmon.Monitor
	engine *engine.Engine
	queue  *queue.Queue
	bus    *event.Bus
}

// newApp loads config, opens the store, and wires the sync subsystem.
// One-shot commands probe connectivity once instead of running the
// monitor's probe loop.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}

	st := store.New(cfg.DBPath)
	if err := st.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	mon := netmon.New(netmon.Config{
		ProbeURL:      cfg.ProbeURL,
		ProbeInterval: cfg.ProbeInterval,
		Logger:        log.New(os.Stderr, "[netmon] ", 0),
	})
	mon.ProbeOnce(ctx)

	bus := event.NewBus()
	transport := remote.NewHTTPTransport(cfg.RemoteURL, nil)
	eng := engine.New(st, mon, transport, engine.Config{
		Bus:    bus,
		Logger: log.New(os.Stderr, "[engine] ", 0),
	})
	q := queue.New(st, mon, eng,
		queue.WithBus(bus),
		queue.WithLogger(log.New(os.Stderr, "[queue] ", 0)))

	return &app{cfg: cfg, store: st, mon: mon, engine: eng, queue: q, bus: bus}, nil
}

// close releases the store.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// flush runs a best-effort drain pass before a one-shot command exits.
// Being offline is not an error; the daemon (or the next command run
// online) picks the queue up later.
func (a *app) flush(ctx context.Context) {
	err := a.engine.ForceSync(ctx)
	if errors.Is(err, engine.ErrOffline) {
		fmt.Fprintln(os.Stderr, "Offline: changes queued for later sync")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync failed: %v\n", err)
	}
}

// fatal prints the error and exits non-zero.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
