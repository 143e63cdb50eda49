// Package task defines the synced entity record. The same JSON field
// names are used by the local store, the remote record API, and the
// change-feed values, so a decoded feed value maps directly onto columns.
package task

import (
	"fmt"
	"time"
)

// Task is the domain record kept consistent between the local store and
// the remote record store. Fields are flat and independently updatable,
// with last-write-wins-by-field semantics; timestamps resolve conflicts.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks that the Task has valid field values.
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
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Fields returns the task as a field map keyed by JSON name, the form the
// remote record API and the pending-operation payloads use.
func (t *Task) Fields() map[string]any {
	fields := map[string]any{
		"id":         t.ID,
		"title":      t.Title,
		"completed":  t.Completed,
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.Description != "" {
		fields["description"] = t.Description
	}
	if t.DueAt != nil {
		fields["due_at"] = t.DueAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

// knownColumns is the set of field names a sparse update may touch.
// Anything else arriving in a feed value is ignored rather than written.
var knownColumns = map[string]bool{
	"title":       true,
	"description": true,
	"completed":   true,
	"due_at":      true,
	"created_at":  true,
	"updated_at":  true,
}

// KnownColumn reports whether name is an updatable task column.
func KnownColumn(name string) bool {
	return knownColumns[name]
}
