// Package googletasks implements store.Store on the user's default Google
// Tasks list.
//
// Google Tasks has no priority or category, so both are kept with the
// creation time as a small YAML document in the task's notes. Google Tasks
// also has no push channel; Subscribe polls the list and emits whenever the
// collection changed.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
	"gopkg.in/yaml.v3"

	"gtodo/internal/auth"
	"gtodo/internal/config"
	"gtodo/internal/store"
	"gtodo/internal/todo"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// APITimeout is the timeout for API calls.
	APITimeout = 5 * time.Second

	// DefaultPollInterval is used when no interval is configured.
	DefaultPollInterval = 5 * time.Second

	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"
)

// Store implements store.Store using the Google Tasks API. The signed-in
// Google account owns the list; userID only labels errors.
type Store struct {
	svc          *tasks.Service
	logger       *slog.Logger
	now          func() time.Time
	pollInterval time.Duration

	mu    sync.Mutex
	kicks map[chan struct{}]struct{}
}

// New creates a store authorized with the token in cfg.Dir.
// Requires oauth_client.json and token.json to exist.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	httpClient, err := auth.HTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewWithHTTPClient(ctx, httpClient)
	if err != nil {
		return nil, err
	}
	s.logger = cfg.Log()
	if cfg.Settings.PollInterval > 0 {
		s.pollInterval = cfg.Settings.PollInterval
	}
	return s, nil
}

// NewWithHTTPClient creates a store with a custom HTTP client (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Store{
		svc:          svc,
		logger:       slog.Default(),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		kicks:        make(map[chan struct{}]struct{}),
	}, nil
}

// SetPollInterval changes how often subscriptions re-read the list.
func (s *Store) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// SetClock replaces the clock used for createdAt (for testing).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe implements store.Store. Fetch failures are emitted as error
// snapshots and polling continues; the channel holds at most one pending
// snapshot.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan store.Snapshot, error) {
	out := make(chan store.Snapshot, 1)
	kick := make(chan struct{}, 1)

	s.mu.Lock()
	s.kicks[kick] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.kicks, kick)
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var (
			last    []todo.Task
			emitted bool
			failing bool
		)
		for {
			current, err := s.fetch(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				s.logger.Warn("poll failed", "user", userID, "err", err)
				failing = true
				send(out, store.Snapshot{Err: store.Wrap("subscribe", userID, "", err)})
			case !emitted || failing || !sameTasks(last, current):
				last, emitted, failing = current, true, false
				send(out, store.Snapshot{Tasks: current})
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-kick:
			}
		}
	}()

	return out, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, userID string, task store.NewTask) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	t := task.Materialize("", s.now())
	notes, err := encodeNotes(t)
	if err != nil {
		return "", store.Wrap("create", userID, "", err)
	}
	created, err := s.svc.Tasks.Insert(DefaultListID, &tasks.Task{
		Title:  t.Title,
		Notes:  notes,
		Status: status(t.Completed),
	}).Context(ctx).Do()
	if err != nil {
		return "", store.Wrap("create", userID, "", wrapError(err))
	}

	s.refresh()
	return created.Id, nil
}

// Update implements store.Store. Priority and category changes rewrite the
// notes, so the current task is read first.
func (s *Store) Update(ctx context.Context, userID, itemID string, p store.Patch) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	patch := &tasks.Task{}
	if p.Title != nil {
		patch.Title = *p.Title
		if patch.Title == "" {
			patch.ForceSendFields = append(patch.ForceSendFields, "Title")
		}
	}
	if p.Completed != nil {
		setStatus(patch, *p.Completed)
	}
	if p.Priority != nil || p.Category != nil {
		current, err := s.svc.Tasks.Get(DefaultListID, itemID).Context(ctx).Do()
		if err != nil {
			return store.Wrap("update", userID, itemID, wrapError(err))
		}
		merged := p.Apply(toTask(current))
		notes, err := encodeNotes(merged)
		if err != nil {
			return store.Wrap("update", userID, itemID, err)
		}
		patch.Notes = notes
	}

	if _, err := s.svc.Tasks.Patch(DefaultListID, itemID, patch).Context(ctx).Do(); err != nil {
		return store.Wrap("update", userID, itemID, wrapError(err))
	}

	s.refresh()
	return nil
}

// SetCompleted implements store.Store.
func (s *Store) SetCompleted(ctx context.Context, userID, itemID string, completed bool) error {
	return s.Update(ctx, userID, itemID, store.Patch{Completed: &completed})
}

// Delete implements store.Store. A task that is already gone counts as
// deleted.
func (s *Store) Delete(ctx context.Context, userID, itemID string) error {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	err := s.svc.Tasks.Delete(DefaultListID, itemID).Context(ctx).Do()
	if err = wrapError(err); err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Wrap("delete", userID, itemID, err)
	}

	s.refresh()
	return nil
}

// fetch reads every task in the default list, newest first.
func (s *Store) fetch(ctx context.Context) ([]todo.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	result := []todo.Task{}
	err := s.svc.Tasks.List(DefaultListID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true).
		ShowDeleted(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, item := range resp.Items {
				result = append(result, toTask(item))
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}

	store.SortNewestFirst(result)
	return result, nil
}

// refresh wakes every subscription so a local mutation shows up without
// waiting for the next poll.
func (s *Store) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kick := range s.kicks {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// notes is the metadata kept in a task's notes field.
type notes struct {
	Priority  string    `yaml:"priority"`
	Category  string    `yaml:"category"`
	CreatedAt time.Time `yaml:"createdAt"`
}

func encodeNotes(t todo.Task) (string, error) {
	data, err := yaml.Marshal(notes{
		Priority:  t.Priority,
		Category:  t.Category,
		CreatedAt: t.CreatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode notes: %w", err)
	}
	return string(data), nil
}

// toTask converts an API task. Tasks created outside gtodo have free-form
// notes; they get the default priority and category and fall back to the
// last update time.
func toTask(item *tasks.Task) todo.Task {
	var meta notes
	if item.Notes != "" {
		if err := yaml.Unmarshal([]byte(item.Notes), &meta); err != nil {
			meta = notes{}
		}
	}
	if meta.Priority == "" {
		meta.Priority = todo.Medium.String()
	}
	if meta.Category == "" {
		meta.Category = todo.DefaultCategory
	}
	if meta.CreatedAt.IsZero() && item.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			meta.CreatedAt = updated
		}
	}
	return todo.Task{
		ID:        item.Id,
		Title:     item.Title,
		Priority:  meta.Priority,
		Category:  meta.Category,
		Completed: item.Status == statusCompleted,
		CreatedAt: meta.CreatedAt.UTC(),
	}
}

func status(completed bool) string {
	if completed {
		return statusCompleted
	}
	return statusNeedsAction
}

// setStatus marks the patch done or open. Reopening must clear the
// completion timestamp or the API keeps the task completed.
func setStatus(patch *tasks.Task, completed bool) {
	patch.Status = status(completed)
	if !completed {
		patch.NullFields = append(patch.NullFields, "Completed")
	}
}

func send(out chan store.Snapshot, snap store.Snapshot) {
	select {
	case <-out:
	default:
	}
	out <- snap
}

func sameTasks(a, b []todo.Task) bool {
	return slices.EqualFunc(a, b, func(x, y todo.Task) bool {
		return x.ID == y.ID &&
			x.Title == y.Title &&
			x.Priority == y.Priority &&
			x.Category == y.Category &&
			x.Completed == y.Completed &&
			x.CreatedAt.Equal(y.CreatedAt)
	})
}

// wrapError maps API errors onto the store sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
		return fmt.Errorf("%w: request timed out", store.ErrUnavailable)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: token expired or revoked (run: gtodo login)", store.ErrPermissionDenied)
		case apiErr.Code == http.StatusNotFound:
			return store.ErrNotFound
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return err
	}

	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
