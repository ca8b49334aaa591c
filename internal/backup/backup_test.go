package backup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st := store.New(filepath.Join(t.TempDir(), "backup.db"))
	if err := st.Open(context.Background()); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestService(st *store.Store, opts ...Option) *Service {
	opts = append(opts, WithLogger(log.New(io.Discard, "", 0)))
	return NewService(st, opts...)
}

func seedStore(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tasks := []*model.Task{
		{ID: "t-1", Title: "alpha", Tag: "work", CreatedAt: now, UpdatedAt: now, Synced: true},
		{ID: "t-2", Title: "beta", Done: true, CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute)},
	}
	if err := st.PutTasks(ctx, tasks); err != nil {
		t.Fatalf("PutTasks() failed: %v", err)
	}
	if err := st.PutTag(ctx, &model.Tag{Name: "work", CreatedAt: now}); err != nil {
		t.Fatalf("PutTag() failed: %v", err)
	}
	if err := st.PutMeta(ctx, "theme", "dark"); err != nil {
		t.Fatalf("PutMeta() failed: %v", err)
	}
}

func TestCreateRestoreRoundTrip(t *testing.T) {
	src := newTestStore(t)
	seedStore(t, src)
	ctx := context.Background()

	fixedMillis := int64(1717243200000)
	svc := newTestService(src, WithTimestamp(func() int64 { return fixedMillis }))

	snap, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if snap.Version != FormatVersion {
		t.Errorf("version = %q, want %q", snap.Version, FormatVersion)
	}
	if snap.Timestamp != fixedMillis {
		t.Errorf("timestamp = %d, want %d", snap.Timestamp, fixedMillis)
	}
	if len(snap.Data.Tasks) != 2 || len(snap.Data.Tags) != 1 || len(snap.Data.Metadata) != 1 {
		t.Fatalf("snapshot data = %d tasks / %d tags / %d metadata, want 2/1/1",
			len(snap.Data.Tasks), len(snap.Data.Tags), len(snap.Data.Metadata))
	}

	// Restore into a fresh store
	dst := newTestStore(t)
	if err := newTestService(dst).Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	tasks, err := dst.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("restored %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "t-1" || tasks[0].Title != "alpha" || !tasks[0].Synced {
		t.Errorf("restored task = %+v, want t-1 alpha synced", tasks[0])
	}

	var theme string
	if err := dst.GetMeta(ctx, "theme", &theme); err != nil || theme != "dark" {
		t.Errorf("restored theme = %q (%v), want dark", theme, err)
	}
}

func TestRestoreInvalidFormat(t *testing.T) {
	st := newTestStore(t)
	seedStore(t, st)
	ctx := context.Background()
	svc := newTestService(st)

	// An empty JSON object parses but has no data section.
	var snap Snapshot
	if err := json.Unmarshal([]byte(`{}`), &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if err := svc.Restore(ctx, &snap); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Restore({}) = %v, want ErrInvalidFormat", err)
	}
	if err := svc.Restore(ctx, nil); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Restore(nil) = %v, want ErrInvalidFormat", err)
	}

	// Validation precedes any destructive step: everything survives.
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("store has %d tasks after rejected restore, want 2", len(tasks))
	}
}

func TestRestoreIncompatibleVersion(t *testing.T) {
	st := newTestStore(t)
	seedStore(t, st)
	svc := newTestService(st)

	snap := &Snapshot{Version: "2.0.0", Data: &Data{}}
	if err := svc.Restore(context.Background(), snap); !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("Restore(v2) = %v, want ErrIncompatibleVersion", err)
	}

	tasks, err := st.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("store has %d tasks after rejected restore, want 2", len(tasks))
	}
}

func TestRestoreClearsPendingQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	op := &model.PendingOperation{
		ID:         "p-1",
		Op:         model.OpCreate,
		EntityType: "task",
		Data:       []byte(`{}`),
		Timestamp:  time.Now(),
		MaxRetries: model.DefaultMaxRetries,
	}
	if err := st.AppendPending(ctx, op); err != nil {
		t.Fatalf("AppendPending() failed: %v", err)
	}

	snap := &Snapshot{Version: FormatVersion, Data: &Data{}}
	if err := newTestService(st).Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	count, err := st.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("pending count = %d after restore, want 0", count)
	}
}

func TestRestoreMirrorsLegacyDocument(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	mirror := filepath.Join(t.TempDir(), "flat.json")

	now := time.Now().UTC()
	snap := &Snapshot{
		Version: FormatVersion,
		Data: &Data{
			Tasks: []*model.Task{{ID: "t-1", Title: "mirrored", CreatedAt: now, UpdatedAt: now}},
			Tags:  []*model.Tag{{Name: "work", CreatedAt: now}},
		},
	}

	svc := newTestService(st, WithMirrorPath(mirror))
	if err := svc.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	raw, err := os.ReadFile(mirror)
	if err != nil {
		t.Fatalf("mirror file not written: %v", err)
	}
	var doc struct {
		Tasks []map[string]any `json:"tasks"`
		Tags  []string         `json:"tags"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("mirror does not parse: %v", err)
	}
	if len(doc.Tasks) != 1 || len(doc.Tags) != 1 || doc.Tags[0] != "work" {
		t.Errorf("mirror = %d tasks / %v tags, want 1 task and [work]", len(doc.Tasks), doc.Tags)
	}
}

func TestWriteReadFile(t *testing.T) {
	st := newTestStore(t)
	seedStore(t, st)
	path := filepath.Join(t.TempDir(), "snap.json")

	snap, err := newTestService(st).Create(context.Background())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := WriteFile(snap, path); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if got.Version != snap.Version || got.Timestamp != snap.Timestamp {
		t.Errorf("round-trip header = %s/%d, want %s/%d",
			got.Version, got.Timestamp, snap.Version, snap.Timestamp)
	}
	if len(got.Data.Tasks) != len(snap.Data.Tasks) {
		t.Errorf("round-trip tasks = %d, want %d", len(got.Data.Tasks), len(snap.Data.Tasks))
	}
}
