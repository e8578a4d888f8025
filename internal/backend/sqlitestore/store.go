// Package sqlitestore implements store.Store on a local SQLite database.
//
// Each user's tasks live in the same table, partitioned by user_id. Every
// mutation re-reads the user's collection and pushes it to that user's open
// subscriptions, so subscribers see the same live stream a hosted document
// database would give them.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"gtodo/internal/store"
	"gtodo/internal/todo"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Store implements store.Store using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex // serializes fan-out so the last snapshot sent is the latest
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan store.Snapshot
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set user_version: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
		subs:   make(map[string]map[*subscriber]struct{}),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the clock used for default createdAt values (for testing).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe implements store.Store. The channel holds at most one pending
// snapshot; a slow reader skips straight to the newest one.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan store.Snapshot, error) {
	sub := &subscriber{ch: make(chan store.Snapshot, 1)}

	s.mu.Lock()
	tasks, err := s.list(ctx, userID)
	if err != nil {
		s.mu.Unlock()
		return nil, store.Wrap("subscribe", userID, "", err)
	}
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[*subscriber]struct{})
	}
	s.subs[userID][sub] = struct{}{}
	sub.ch <- store.Snapshot{Tasks: tasks}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[userID], sub)
		if len(s.subs[userID]) == 0 {
			delete(s.subs, userID)
		}
		close(sub.ch)
	}()

	return sub.ch, nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, userID string, task store.NewTask) (string, error) {
	t := task.Materialize(uuid.NewString(), s.now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, id, title, priority, category, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, t.ID, t.Title, t.Priority, t.Category, t.Completed, t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", store.Wrap("create", userID, "", unavailable(err))
	}

	s.publish(userID)
	return t.ID, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, userID, itemID string, p store.Patch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET
		     title     = COALESCE(?, title),
		     priority  = COALESCE(?, priority),
		     category  = COALESCE(?, category),
		     completed = COALESCE(?, completed)
		 WHERE user_id = ? AND id = ?`,
		nullable(p.Title), nullable(p.Priority), nullable(p.Category), nullable(p.Completed),
		userID, itemID,
	)
	if err != nil {
		return store.Wrap("update", userID, itemID, unavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap("update", userID, itemID, unavailable(err))
	}
	if n == 0 {
		return store.Wrap("update", userID, itemID, store.ErrNotFound)
	}

	s.publish(userID)
	return nil
}

// SetCompleted implements store.Store.
func (s *Store) SetCompleted(ctx context.Context, userID, itemID string, completed bool) error {
	return s.Update(ctx, userID, itemID, store.Patch{Completed: &completed})
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, userID, itemID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, itemID)
	if err != nil {
		return store.Wrap("delete", userID, itemID, unavailable(err))
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(userID)
	}
	return nil
}

// publish sends the user's current collection to every open subscription.
func (s *Store) publish(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs[userID]) == 0 {
		return
	}

	snap := store.Snapshot{}
	tasks, err := s.list(context.Background(), userID)
	if err != nil {
		s.logger.Warn("snapshot query failed", "user", userID, "err", err)
		snap.Err = err
	} else {
		snap.Tasks = tasks
	}

	for sub := range s.subs[userID] {
		// Latest wins: drop an unread snapshot before sending the new one.
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}
}

func (s *Store) list(ctx context.Context, userID string) ([]todo.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, priority, category, completed, created_at
		 FROM tasks WHERE user_id = ?
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	tasks := []todo.Task{}
	for rows.Next() {
		var (
			t       todo.Task
			created int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Priority, &t.Category, &t.Completed, &created); err != nil {
			return nil, unavailable(err)
		}
		t.CreatedAt = time.UnixMilli(created).UTC()
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return tasks, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
