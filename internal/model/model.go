// Package model defines the persistent data types shared across the
// tasksync store, queue, and sync engine.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task is a single to-do item. Tasks are created and mutated locally and
// carry a Synced flag that reflects whether the last local edit has been
// acknowledged by the remote endpoint.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Tag       string     `json:"tag,omitempty"`
	Due       *time.Time `json:"due,omitempty"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Synced    bool       `json:"synced"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// Touch sets UpdatedAt to the current time and clears the Synced flag.
// Call this whenever any field is modified locally.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now()
	t.Synced = false
}

// Tag is a task label. Tags are keyed by name; deleting a tag never
// deletes the tasks that reference it, only clears their reference.
type Tag struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the Tag has valid field values.
func (g *Tag) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// MetadataEntry is a generic sideband key-value record (current theme,
// last sync time, and similar). Value is opaque JSON.
type MetadataEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
