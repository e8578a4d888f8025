// Package store defines the backend-agnostic contract for per-user task storage.
package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"gtodo/internal/todo"
)

// Store defines the interface for task backend operations.
// Every backend (SQLite, Google Tasks) goes through this interface.
// Commands and sessions never import a backend SDK directly.
type Store interface {
	// Subscribe opens a live stream of full-collection snapshots for userID.
	// The first snapshot is sent as soon as it is available; each later one
	// supersedes the previous. The channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error)

	// Create persists a new task and returns its assigned id.
	Create(ctx context.Context, userID string, task NewTask) (string, error)

	// Update merges the non-nil fields of p into the task.
	// Returns ErrNotFound if itemID does not exist.
	Update(ctx context.Context, userID, itemID string, p Patch) error

	// SetCompleted is Update with only Completed set.
	SetCompleted(ctx context.Context, userID, itemID string, completed bool) error

	// Delete removes a task. Deleting a missing task is not an error.
	Delete(ctx context.Context, userID, itemID string) error
}

// Snapshot is one emission of a subscription: either the ordered collection
// or a stream failure. On failure Tasks is nil.
type Snapshot struct {
	Tasks []todo.Task
	Err   error
}

// NewTask holds the fields of a task to create.
type NewTask struct {
	Title     string
	Priority  string
	Category  string
	Completed bool
	CreatedAt time.Time // zero means now
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title     *string
	Priority  *string
	Category  *string
	Completed *bool
}

// Apply returns t with the set fields of p merged in.
func (p Patch) Apply(t todo.Task) todo.Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// Materialize fills defaults for a task about to be created.
func (n NewTask) Materialize(id string, now time.Time) todo.Task {
	t := todo.Task{
		ID:        id,
		Title:     n.Title,
		Priority:  n.Priority,
		Category:  n.Category,
		Completed: n.Completed,
		CreatedAt: n.CreatedAt,
	}
	if t.Priority == "" {
		t.Priority = todo.Medium.String()
	}
	if t.Category == "" {
		t.Category = todo.DefaultCategory
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	return t
}

// SortNewestFirst orders tasks by creation time descending, then id.
// Backends use it so every store emits the same order.
func SortNewestFirst(tasks []todo.Task) {
	slices.SortStableFunc(tasks, func(a, b todo.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
