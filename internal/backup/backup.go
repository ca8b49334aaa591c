// Package backup serializes the durable store to a portable snapshot
// and restores it.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/mod/semver"

	"github.com/localfirst/tasksync/internal/legacy"
	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/store"
)

// FormatVersion is the snapshot format written by Create. Restore
// accepts any snapshot with the same major version.
const FormatVersion = "1.0.0"

// ErrInvalidFormat is returned when a snapshot lacks its data section.
// Restore fails with it before any destructive step.
var ErrInvalidFormat = errors.New("invalid backup format: missing data section")

// ErrIncompatibleVersion is returned when a snapshot's format version
// has a different major version than this binary writes.
var ErrIncompatibleVersion = errors.New("incompatible backup format version")

// Snapshot is the portable backup document. The exact shape round-trips
// through Create and Restore.
type Snapshot struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Data      *Data  `json:"data"`
}

// Data holds the backed-up collections. The pending queue is
// deliberately excluded: queued mutations are transient delivery state,
// not user data.
type Data struct {
	Tasks    []*model.Task          `json:"tasks"`
	Tags     []*model.Tag           `json:"tags"`
	Metadata []*model.MetadataEntry `json:"metadata"`
}

// Service provides backup and restore against one store.
type Service struct {
	store *store.Store

	// mirrorPath, when set, is where restores project the legacy flat
	// document for older code paths. Empty disables mirroring.
	mirrorPath string

	clock  func() int64
	logger *log.Logger
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithMirrorPath enables legacy flat-document mirroring after restore.
func WithMirrorPath(path string) Option {
	return func(s *Service) { s.mirrorPath = path }
}

// WithTimestamp overrides the snapshot timestamp source (tests).
func WithTimestamp(clock func() int64) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a backup Service for an open store.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		clock:  unixMillisNow,
		logger: log.New(os.Stderr, "[backup] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create reads tasks, tags, and metadata in full and wraps them with
// the format version and a timestamp. Pure read, no side effects.
func (s *Service) Create(ctx context.Context) (*Snapshot, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	metadata, err := s.store.ListMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	if tasks == nil {
		tasks = []*model.Task{}
	}
	if tags == nil {
		tags = []*model.Tag{}
	}
	if metadata == nil {
		metadata = []*model.MetadataEntry{}
	}

	return &Snapshot{
		Version:   FormatVersion,
		Timestamp: s.clock(),
		Data: &Data{
			Tasks:    tasks,
			Tags:     tags,
			Metadata: metadata,
		},
	}, nil
}

// Restore replaces the store's contents with the snapshot.
//
// Validation happens before any destructive step: a snapshot without a
// data section fails with ErrInvalidFormat and leaves the store
// untouched. After validation the tasks, tags, metadata, and pending
// collections are cleared, each section present in the snapshot is
// bulk-written, and the restored state is mirrored into the legacy
// flat document when a mirror path is configured.
//
// The whole operation is NOT transactional: a failure between the
// clears and the writes leaves the store partially empty. Known risk,
// inherited from the format's contract.
func (s *Service) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Data == nil {
		return ErrInvalidFormat
	}
	if snap.Version != "" {
		if semver.Major("v"+snap.Version) != semver.Major("v"+FormatVersion) {
			return fmt.Errorf("%w: snapshot is %q, this binary writes %q",
				ErrIncompatibleVersion, snap.Version, FormatVersion)
		}
	}

	s.logger.Printf("Restoring snapshot (version %s, %d tasks, %d tags)",
		snap.Version, len(snap.Data.Tasks), len(snap.Data.Tags))

	clears := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tasks", s.store.ClearTasks},
		{"tags", s.store.ClearTags},
		{"metadata", s.store.ClearMeta},
		{"pending_sync", s.store.ClearPending},
	}
	for _, c := range clears {
		if err := c.fn(ctx); err != nil {
			return fmt.Errorf("failed to clear %s: %w", c.name, err)
		}
	}

	if err := s.store.PutTasks(ctx, snap.Data.Tasks); err != nil {
		return fmt.Errorf("failed to restore tasks: %w", err)
	}
	if err := s.store.PutTags(ctx, snap.Data.Tags); err != nil {
		return fmt.Errorf("failed to restore tags: %w", err)
	}
	for _, entry := range snap.Data.Metadata {
		if err := s.store.PutMetaEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to restore metadata %s: %w", entry.Key, err)
		}
	}

	if s.mirrorPath != "" {
		if err := legacy.ExportFile(ctx, s.store, s.mirrorPath); err != nil {
			return fmt.Errorf("failed to mirror restored state: %w", err)
		}
	}

	return nil
}

// WriteFile serializes a snapshot to a pretty-printed JSON file.
func WriteFile(snap *Snapshot, path string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

func unixMillisNow() int64 {
	return time.Now().UnixMilli()
}

// ReadFile parses a snapshot file. Format validation is Restore's job;
// this only requires syntactically valid JSON.
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}
