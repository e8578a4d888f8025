// Package session holds the signed-in user's view of their tasks.
//
// A Session is created after sign-in and closed on sign-out. It combines the
// live snapshot from a livelist.Synchronizer with the current search query and
// priority filter, recomputing the derived list on every change, and forwards
// add/toggle/update/delete commands to the store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"gtodo/internal/livelist"
	"gtodo/internal/pipeline"
	"gtodo/internal/store"
	"gtodo/internal/todo"
)

// ValidationError is a command rejected before reaching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Observer receives the derived list after every recompute.
// It runs with the session locked and must not call back into the Session.
type Observer func(tasks []todo.Task)

// Session is the presentation state for one signed-in user.
type Session struct {
	store  store.Store
	sync   *livelist.Synchronizer
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	raw       []todo.Task
	query     string
	filter    *todo.Priority
	derived   []todo.Task
	observers map[int]Observer
	nextObs   int
}

// New creates a Session on top of s. logger may be nil.
func New(s store.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	sess := &Session{
		store:     s,
		logger:    logger,
		now:       time.Now,
		derived:   []todo.Task{},
		observers: make(map[int]Observer),
	}
	sess.sync = livelist.New(s, sess.onSnapshot, logger)
	return sess
}

// SetClock replaces the clock used for createdAt (for testing).
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

// StartObserving attaches the live list to userID. See livelist.Synchronizer.
func (s *Session) StartObserving(ctx context.Context, userID string) error {
	return s.sync.StartObserving(ctx, userID)
}

// Wait blocks until the first snapshot for the observed user has arrived.
func (s *Session) Wait(ctx context.Context) error {
	return s.sync.Wait(ctx)
}

// Err returns the last subscription failure, if any.
func (s *Session) Err() error {
	return s.sync.Err()
}

// UserID returns the observed user.
func (s *Session) UserID() string {
	return s.sync.UserID()
}

// Close detaches from the store and clears all state.
func (s *Session) Close() {
	s.sync.Stop()
}

// Tasks returns the derived list.
func (s *Session) Tasks() []todo.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.derived)
}

// Snapshot returns the raw list in store order.
func (s *Session) Snapshot() []todo.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.raw)
}

// Lookup finds a task in the raw snapshot by id.
func (s *Session) Lookup(id string) (todo.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.raw {
		if t.ID == id {
			return t, true
		}
	}
	return todo.Task{}, false
}

// Progress counts completed tasks in the derived list.
func (s *Session) Progress() todo.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return todo.Stats(s.derived)
}

// Query returns the current search text.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Filter returns the current priority filter, or nil.
func (s *Session) Filter() *todo.Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter == nil {
		return nil
	}
	p := *s.filter
	return &p
}

// SetQuery changes the search text and recomputes.
func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = q
	s.recomputeLocked()
}

// SetFilter changes the priority filter and recomputes. nil clears it.
func (s *Session) SetFilter(p *todo.Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.filter = nil
	} else {
		v := *p
		s.filter = &v
	}
	s.recomputeLocked()
}

// Observe registers fn and calls it once with the current derived list.
// The returned func unregisters it.
func (s *Session) Observe(fn Observer) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	fn(slices.Clone(s.derived))

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// onSnapshot is the synchronizer's listener.
func (s *Session) onSnapshot(userID string, tasks []todo.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = tasks
	s.recomputeLocked()
}

// recomputeLocked rebuilds the derived list from scratch and notifies observers.
func (s *Session) recomputeLocked() {
	s.derived = pipeline.Derive(s.raw, s.query, s.filter)
	for _, fn := range s.observers {
		fn(slices.Clone(s.derived))
	}
}

// Add creates a task in the default category.
func (s *Session) Add(ctx context.Context, userID, title, priority string) (string, error) {
	return s.AddInCategory(ctx, userID, title, priority, "")
}

// AddInCategory creates a task. A blank title is rejected without calling the store.
// The new task shows up with the next snapshot.
func (s *Session) AddInCategory(ctx context.Context, userID, title, priority, category string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", &ValidationError{Field: "title", Reason: "required"}
	}

	id, err := s.store.Create(ctx, userID, store.NewTask{
		Title:     title,
		Priority:  todo.ResolvePriority(priority).String(),
		Category:  strings.TrimSpace(category),
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("add failed", "user", userID, "err", err)
		return "", store.Wrap("create", userID, "", err)
	}
	s.logger.Debug("added", "user", userID, "id", id)
	return id, nil
}

// Toggle flips the completed flag of t.
func (s *Session) Toggle(ctx context.Context, userID string, t todo.Task) error {
	if err := s.store.SetCompleted(ctx, userID, t.ID, !t.Completed); err != nil {
		s.logger.Warn("toggle failed", "user", userID, "id", t.ID, "err", err)
		return store.Wrap("update", userID, t.ID, err)
	}
	return nil
}

// Update changes the title and/or priority of a task. Empty arguments are
// left unchanged.
func (s *Session) Update(ctx context.Context, userID, itemID, title, priority string) error {
	var p store.Patch
	if title != "" {
		if strings.TrimSpace(title) == "" {
			return &ValidationError{Field: "title", Reason: "must not be blank"}
		}
		p.Title = &title
	}
	if priority != "" {
		resolved := todo.ResolvePriority(priority).String()
		p.Priority = &resolved
	}
	if p.Title == nil && p.Priority == nil {
		return &ValidationError{Field: "update", Reason: "has nothing to change"}
	}

	if err := s.store.Update(ctx, userID, itemID, p); err != nil {
		s.logger.Warn("update failed", "user", userID, "id", itemID, "err", err)
		return store.Wrap("update", userID, itemID, err)
	}
	return nil
}

// Delete removes a task. The list reflects it with the next snapshot.
func (s *Session) Delete(ctx context.Context, userID, itemID string) error {
	if err := s.store.Delete(ctx, userID, itemID); err != nil {
		s.logger.Warn("delete failed", "user", userID, "id", itemID, "err", err)
		return store.Wrap("delete", userID, itemID, err)
	}
	return nil
}
