// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"gtodo/internal/store"
	"gtodo/internal/todo"
)

// Subscription is one stream handed out by FakeStore.Subscribe.
type Subscription struct {
	UserID string

	mu     sync.Mutex
	ch     chan store.Snapshot
	closed bool
	ctx    context.Context
}

// Send pushes a snapshot on this stream, as if the backend emitted it.
// Returns false if the stream is already closed.
func (s *Subscription) Send(snap store.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- snap
	return true
}

// Cancelled reports whether the subscriber cancelled its context.
func (s *Subscription) Cancelled() bool {
	return s.ctx.Err() != nil
}

// Close ends the stream from the backend side.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// FakeStore is an in-memory implementation of store.Store for testing.
// Mutations are broadcast to every open subscription of the same user.
type FakeStore struct {
	mu     sync.Mutex
	tasks  map[string][]todo.Task // userID -> tasks, newest first
	subs   []*Subscription
	nextID int

	// Now supplies creation times. Defaults to a fixed clock that advances
	// one second per call so ordering is deterministic.
	Now func() time.Time

	// Manual disables automatic emission; tests push with Subscription.Send.
	Manual bool

	// HoldOpen keeps streams open after their context is cancelled, so a
	// test can deliver a late emission on a replaced subscription.
	HoldOpen bool

	// Error injection for testing
	SubscribeErr    error
	CreateErr       error
	UpdateErr       error
	SetCompletedErr error
	DeleteErr       error

	// Call counters
	CreateCalls       int
	UpdateCalls       int
	SetCompletedCalls int
	DeleteCalls       int
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	return &FakeStore{
		tasks: make(map[string][]todo.Task),
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
}

// Seed replaces a user's collection, keeping the given order.
func (f *FakeStore) Seed(userID string, tasks ...todo.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[userID] = slices.Clone(tasks)
	f.broadcastLocked(userID)
}

// Tasks returns a copy of a user's collection.
func (f *FakeStore) Tasks(userID string) []todo.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.tasks[userID])
}

// Subscriptions returns every stream opened for userID, oldest first.
func (f *FakeStore) Subscriptions(userID string) []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// Subscribe implements store.Store.
func (f *FakeStore) Subscribe(ctx context.Context, userID string) (<-chan store.Snapshot, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	sub := &Subscription{
		UserID: userID,
		ch:     make(chan store.Snapshot, 16),
		ctx:    ctx,
	}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	if !f.Manual {
		sub.ch <- store.Snapshot{Tasks: slices.Clone(f.tasks[userID])}
	}
	f.mu.Unlock()

	if !f.HoldOpen {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub.ch, nil
}

// Create implements store.Store.
func (f *FakeStore) Create(ctx context.Context, userID string, task store.NewTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	t := task.Materialize(id, f.Now())
	f.tasks[userID] = append([]todo.Task{t}, f.tasks[userID]...)
	f.broadcastLocked(userID)
	return id, nil
}

// Update implements store.Store.
func (f *FakeStore) Update(ctx context.Context, userID, itemID string, p store.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	return f.patchLocked(userID, itemID, p)
}

// SetCompleted implements store.Store.
func (f *FakeStore) SetCompleted(ctx context.Context, userID, itemID string, completed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetCompletedCalls++
	if f.SetCompletedErr != nil {
		return f.SetCompletedErr
	}
	return f.patchLocked(userID, itemID, store.Patch{Completed: &completed})
}

// Delete implements store.Store.
func (f *FakeStore) Delete(ctx context.Context, userID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	tasks := f.tasks[userID]
	for i, t := range tasks {
		if t.ID == itemID {
			f.tasks[userID] = slices.Delete(slices.Clone(tasks), i, i+1)
			f.broadcastLocked(userID)
			return nil
		}
	}
	return nil
}

func (f *FakeStore) patchLocked(userID, itemID string, p store.Patch) error {
	tasks := slices.Clone(f.tasks[userID])
	for i, t := range tasks {
		if t.ID == itemID {
			tasks[i] = p.Apply(t)
			f.tasks[userID] = tasks
			f.broadcastLocked(userID)
			return nil
		}
	}
	return store.Wrap("update", userID, itemID, store.ErrNotFound)
}

func (f *FakeStore) broadcastLocked(userID string) {
	if f.Manual {
		return
	}
	for _, s := range f.subs {
		if s.UserID == userID && !s.Cancelled() {
			s.Send(store.Snapshot{Tasks: slices.Clone(f.tasks[userID])})
		}
	}
}
