package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localfirst/tasksync/internal/engine"
	"github.com/localfirst/tasksync/internal/event"
	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/netmon"
	"github.com/localfirst/tasksync/internal/queue"
	"github.com/localfirst/tasksync/internal/store"
)

type nopTransport struct{}

func (nopTransport) Deliver(ctx context.Context, op *model.PendingOperation) error { return nil }

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

type harness struct {
	store  *store.Store
	daemon *Daemon
	outbox string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "daemon.db"))
	if err := st.Open(context.Background()); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// Offline monitor so ingested mutations stay queued and observable.
	mon := netmon.New(netmon.Config{Logger: quiet()})
	mon.SetOnline(false)

	eng := engine.New(st, mon, nopTransport{}, engine.Config{Logger: quiet()})
	q := queue.New(st, mon, eng, queue.WithLogger(quiet()))

	outbox := filepath.Join(dir, "outbox")
	d, err := New(q, eng, mon, event.NewBus(), &Config{
		OutboxDir:        outbox,
		DebounceInterval: 10 * time.Millisecond,
		Logger:           quiet(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return &harness{store: st, daemon: d, outbox: outbox}
}

func (h *harness) dropMutation(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(h.outbox, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write outbox file: %v", err)
	}
	return path
}

func (h *harness) waitForPending(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		count, err := h.store.CountPending(context.Background())
		if err != nil {
			t.Fatalf("CountPending() failed: %v", err)
		}
		if count == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending count = %d, want %d", count, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, nil); err == nil {
		t.Error("New() accepted a nil queue")
	}
}

func TestOutboxIngestion(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Start(ctx) }()

	// Wait for the outbox directory to exist before dropping files
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(h.outbox); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("outbox directory never created")
		}
		time.Sleep(10 * time.Millisecond)
	}

	path := h.dropMutation(t, "m1.json", `{"op":"create","entity_type":"task","data":{"id":"t-1","title":"x"}}`)
	h.waitForPending(t, 1)

	// Ingested files are consumed
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("outbox file still present after ingestion: %v", err)
	}

	pending, err := h.store.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if pending[0].Op != model.OpCreate || pending[0].EntityType != "task" {
		t.Errorf("ingested operation = %s %s, want create task", pending[0].Op, pending[0].EntityType)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned %v", err)
	}
}

func TestSweepPicksUpLeftoverFiles(t *testing.T) {
	h := newHarness(t)

	// Files already in the outbox before the daemon starts
	if err := os.MkdirAll(h.outbox, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	h.dropMutation(t, "old1.json", `{"op":"delete","entity_type":"task","data":{"id":"t-1"}}`)
	h.dropMutation(t, "old2.json", `{"op":"update","entity_type":"tag","data":{"name":"work"}}`)
	h.dropMutation(t, "ignored.txt", `not a mutation`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Start(ctx) }()

	h.waitForPending(t, 2)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned %v", err)
	}
}

func TestProcessPendingChangesHonorsDebounce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := os.MkdirAll(h.outbox, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	duePath := h.dropMutation(t, "due.json", `{"op":"create","entity_type":"task","data":{"id":"t-1"}}`)
	freshPath := h.dropMutation(t, "fresh.json", `{"op":"create","entity_type":"task","data":{"id":"t-2"}}`)

	d := h.daemon
	d.changeQueueMu.Lock()
	d.changeQueue[duePath] = time.Now().Add(-time.Second)
	d.changeQueue[freshPath] = time.Now()
	d.changeQueueMu.Unlock()

	d.processPendingChanges(ctx)

	// Only the due file was ingested
	count, err := h.store.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}
	if _, err := os.Stat(duePath); !os.IsNotExist(err) {
		t.Errorf("due file still present: %v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh file consumed early: %v", err)
	}

	// The fresh file stays queued and the queue stays usable: a watcher
	// signal arriving mid-cycle must not block or get lost.
	d.queueChange(freshPath)
	d.changeQueueMu.Lock()
	_, queued := d.changeQueue[freshPath]
	remaining := len(d.changeQueue)
	d.changeQueueMu.Unlock()
	if !queued || remaining != 1 {
		t.Errorf("change queue = %d entries (fresh queued: %v), want exactly the fresh file", remaining, queued)
	}
}

func TestMalformedMutationRejected(t *testing.T) {
	h := newHarness(t)

	if err := os.MkdirAll(h.outbox, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	bad := h.dropMutation(t, "bad.json", `{"op":"merge","entity_type":"task"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Start(ctx) }()

	// Give the sweep time to run, then confirm nothing was queued.
	time.Sleep(100 * time.Millisecond)
	count, err := h.store.CountPending(context.Background())
	if err != nil {
		t.Fatalf("CountPending() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("pending count = %d after malformed mutation, want 0", count)
	}

	// Rejected files are left in place for inspection
	if _, err := os.Stat(bad); err != nil {
		t.Errorf("rejected file removed: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned %v", err)
	}
}
