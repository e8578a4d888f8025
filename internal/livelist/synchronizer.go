// Package livelist keeps the latest task snapshot for the signed-in user.
//
// A Synchronizer owns a single store subscription at a time. Snapshots are
// applied and handed downstream under one lock, and every subscription is
// tagged with a generation number so an emission from a replaced
// subscription is dropped instead of overwriting the current user's data.
package livelist

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"gtodo/internal/store"
	"gtodo/internal/todo"
)

var (
	// ErrNotObserving is returned by Wait when no subscription is active.
	ErrNotObserving = errors.New("not observing")

	// ErrSubscriptionClosed is recorded when the store ends a stream on its own.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// Listener receives each accepted snapshot. It is called with the
// Synchronizer's lock held and must not call back into the Synchronizer.
type Listener func(userID string, tasks []todo.Task)

// Synchronizer mirrors the store's live collection for one user.
type Synchronizer struct {
	store  store.Store
	notify Listener
	logger *slog.Logger

	mu       sync.Mutex
	userID   string
	gen      uint64
	cancel   context.CancelFunc // nil when no stream is attached
	snapshot []todo.Task
	err      error
	ready    chan struct{} // closed on the first emission of the current stream
	settled  bool
}

// New creates a Synchronizer. notify may be nil.
func New(s store.Store, notify Listener, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{store: s, notify: notify, logger: logger}
}

// StartObserving subscribes to userID's collection.
// It is a no-op when already subscribed to userID. Observing a different
// user cancels the previous subscription and clears the held snapshot first.
func (s *Synchronizer) StartObserving(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil && s.userID == userID {
		return nil
	}

	previous := s.userID
	s.detachLocked()
	if previous != userID {
		s.userID = userID
		s.snapshot = nil
		s.err = nil
		if previous != "" {
			// Nothing of the previous user's list may stay visible.
			s.deliverLocked()
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := s.store.Subscribe(subCtx, userID)
	if err != nil {
		cancel()
		s.ready = make(chan struct{})
		s.settled = false
		s.settleLocked()
		s.err = store.Wrap("subscribe", userID, "", err)
		s.logger.Warn("subscribe failed", "user", userID, "err", err)
		return s.err
	}

	s.cancel = cancel
	s.ready = make(chan struct{})
	s.settled = false
	gen := s.gen

	s.logger.Debug("observing", "user", userID, "gen", gen)
	go s.run(gen, ch)
	return nil
}

// Stop cancels the subscription and forgets the user. Used on sign-out.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachLocked()
	s.userID = ""
	s.snapshot = nil
	s.err = nil
	s.ready = nil
	s.deliverLocked()
}

// UserID returns the observed user, or "" when stopped.
func (s *Synchronizer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Snapshot returns a copy of the held raw snapshot.
func (s *Synchronizer) Snapshot() []todo.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snapshot)
}

// Err returns the last stream failure, or nil after a good snapshot.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the current subscription has emitted once.
// It returns the stream error if that first emission was a failure.
func (s *Synchronizer) Wait(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	if ready == nil {
		return ErrNotObserving
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return s.err
	}
	return nil
}

// detachLocked cancels the stream and bumps the generation so anything still
// in flight from it is ignored.
func (s *Synchronizer) detachLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *Synchronizer) run(gen uint64, ch <-chan store.Snapshot) {
	for snap := range ch {
		s.apply(gen, snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	// The store ended the stream. Keep what we have; a later
	// StartObserving for the same user attaches a new one.
	s.logger.Warn("subscription closed by store", "user", s.userID)
	s.cancel = nil
	if s.err == nil {
		s.err = store.Wrap("subscribe", s.userID, "", ErrSubscriptionClosed)
	}
	s.settleLocked()
}

func (s *Synchronizer) apply(gen uint64, snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("dropping stale snapshot", "gen", gen, "current", s.gen)
		return
	}

	if snap.Err != nil {
		// Stale-but-available: the last good snapshot stays.
		s.err = store.Wrap("subscribe", s.userID, "", snap.Err)
		s.logger.Warn("subscription error", "user", s.userID, "err", snap.Err)
		s.settleLocked()
		return
	}

	s.snapshot = slices.Clone(snap.Tasks)
	if s.snapshot == nil {
		s.snapshot = []todo.Task{}
	}
	s.err = nil
	s.settleLocked()
	s.logger.Debug("snapshot", "user", s.userID, "tasks", len(s.snapshot))
	s.deliverLocked()
}

func (s *Synchronizer) settleLocked() {
	if s.ready != nil && !s.settled {
		s.settled = true
		close(s.ready)
	}
}

func (s *Synchronizer) deliverLocked() {
	if s.notify != nil {
		s.notify(s.userID, slices.Clone(s.snapshot))
	}
}
