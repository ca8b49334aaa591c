// Package legacy converts between the structured store and the flat
// single-document representation older tooling consumes.
//
// The flat format is strictly a legacy import/export surface: it is
// produced and consumed by explicit one-shot conversions, and only the
// structured store is authoritative at runtime. The projections are
// lossy in both directions: tags flatten to bare name strings going
// down, and imported tasks gain a synced=false flag plus an updated_at
// default coming up.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/localfirst/tasksync/internal/model"
	"github.com/localfirst/tasksync/internal/store"
)

// MetaTheme is the metadata key the flat document's theme maps to.
const MetaTheme = "theme"

// Document is the flat key-value mirror: one JSON document holding
// everything the legacy code paths know about.
type Document struct {
	Tasks []FlatTask `json:"tasks"`
	Tags  []string   `json:"tags"`
	Theme string     `json:"theme,omitempty"`
}

// FlatTask is the legacy task shape. It has no synced flag and
// updated_at is optional.
type FlatTask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Tag       string     `json:"tag,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Project reads tasks, tags, and the theme from the store and builds
// the flat document. Tag records flatten to their name strings only.
func Project(ctx context.Context, st *store.Store) (*Document, error) {
	tasks, err := st.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	tags, err := st.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	doc := &Document{
		Tasks: make([]FlatTask, 0, len(tasks)),
		Tags:  make([]string, 0, len(tags)),
	}

	for _, task := range tasks {
		updatedAt := task.UpdatedAt
		doc.Tasks = append(doc.Tasks, FlatTask{
			ID:        task.ID,
			Title:     task.Title,
			Tag:       task.Tag,
			Due:       task.Due,
			Done:      task.Done,
			CreatedAt: task.CreatedAt,
			UpdatedAt: &updatedAt,
		})
	}

	for _, tag := range tags {
		doc.Tags = append(doc.Tags, tag.Name)
	}

	var theme string
	if err := st.GetMeta(ctx, MetaTheme, &theme); err == nil {
		doc.Theme = theme
	}

	return doc, nil
}

// Apply writes the flat document into the structured store. Imported
// tasks are marked synced=false and given an updated_at default; bare
// tag strings are promoted to full tag records.
func Apply(ctx context.Context, st *store.Store, doc *Document) error {
	now := time.Now()

	for i := range doc.Tasks {
		flat := &doc.Tasks[i]

		task := &model.Task{
			ID:        flat.ID,
			Title:     flat.Title,
			Tag:       flat.Tag,
			Due:       flat.Due,
			Done:      flat.Done,
			CreatedAt: flat.CreatedAt,
			Synced:    false,
		}
		if flat.UpdatedAt != nil {
			task.UpdatedAt = *flat.UpdatedAt
		} else if !flat.CreatedAt.IsZero() {
			task.UpdatedAt = flat.CreatedAt
		} else {
			task.UpdatedAt = now
		}
		task.SetDefaults()

		if err := st.PutTask(ctx, task); err != nil {
			return fmt.Errorf("failed to import task %s: %w", flat.ID, err)
		}
	}

	for _, name := range doc.Tags {
		tag := &model.Tag{Name: name, CreatedAt: now}
		if err := st.PutTag(ctx, tag); err != nil {
			return fmt.Errorf("failed to import tag %s: %w", name, err)
		}
	}

	if doc.Theme != "" {
		if err := st.PutMeta(ctx, MetaTheme, doc.Theme); err != nil {
			return fmt.Errorf("failed to import theme: %w", err)
		}
	}

	return nil
}

// ExportFile projects the store into a flat document file at path.
func ExportFile(ctx context.Context, st *store.Store, path string) error {
	doc, err := Project(ctx, st)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flat document: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write flat document %s: %w", path, err)
	}
	return nil
}

// ImportFile reads a flat document file and applies it to the store.
func ImportFile(ctx context.Context, st *store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read flat document %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse flat document %s: %w", path, err)
	}

	return Apply(ctx, st, &doc)
}
