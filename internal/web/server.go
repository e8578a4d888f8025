// Package web serves the session over HTTP: a small JSON API for the
// derived list and its commands, plus a websocket that pushes the list
// every time it changes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gtodo/internal/session"
	"gtodo/internal/store"
	"gtodo/internal/todo"
)

// waitTimeout bounds how long a request waits for the first snapshot.
const waitTimeout = 10 * time.Second

// View is the derived list as sent to clients.
type View struct {
	Tasks    []todo.Task   `json:"tasks"`
	Progress todo.Progress `json:"progress"`
	Query    string        `json:"query"`
	Priority *string       `json:"priority"`
}

// Server exposes one Session. All clients share its query and filter.
type Server struct {
	// DefaultCategory is used for tasks added without one.
	DefaultCategory string

	sess     *session.Session
	logger   *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New creates a Server for sess. logger may be nil.
func New(sess *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sess:   sess,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/api/tasks").HandlerFunc(s.listTasks)
	r.Methods(http.MethodPost).Path("/api/tasks").HandlerFunc(s.addTask)
	r.Methods(http.MethodPatch).Path("/api/tasks/{id}").HandlerFunc(s.updateTask)
	r.Methods(http.MethodDelete).Path("/api/tasks/{id}").HandlerFunc(s.deleteTask)
	r.Methods(http.MethodPost).Path("/api/tasks/{id}/toggle").HandlerFunc(s.toggleTask)
	r.Methods(http.MethodPut).Path("/api/view").HandlerFunc(s.setView)
	r.Methods(http.MethodGet).Path("/api/stats").HandlerFunc(s.stats)
	r.Methods(http.MethodGet).Path("/api/live").HandlerFunc(s.live)
	s.router = r

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Debug("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.view())
}

type addRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Category string `json:"category"`
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !decode(w, r, &req) {
		return
	}
	category := req.Category
	if category == "" {
		category = s.DefaultCategory
	}
	id, err := s.sess.AddInCategory(r.Context(), s.sess.UserID(), req.Title, req.Priority, category)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type updateRequest struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.sess.Update(r.Context(), s.sess.UserID(), id, req.Title, req.Priority); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.sess.Delete(r.Context(), s.sess.UserID(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	t, ok := s.sess.Lookup(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, store.ErrNotFound)
		return
	}
	if err := s.sess.Toggle(r.Context(), s.sess.UserID(), t); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type viewRequest struct {
	Query    string `json:"query"`
	Priority string `json:"priority"` // "" clears the filter
}

func (s *Server) setView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if !decode(w, r, &req) {
		return
	}
	var filter *todo.Priority
	if req.Priority != "" {
		p, ok := todo.ParsePriority(req.Priority)
		if !ok {
			s.writeError(w, &session.ValidationError{Field: "priority", Reason: "must be High, Medium or Low"})
			return
		}
		filter = &p
	}
	s.sess.SetQuery(req.Query)
	s.sess.SetFilter(filter)
	writeJSON(w, http.StatusOK, s.view())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	p := s.sess.Progress()
	writeJSON(w, http.StatusOK, map[string]any{
		"completed": p.Completed,
		"total":     p.Total,
		"percent":   p.Percent(),
		"cleared":   p.Cleared(),
	})
}

// live upgrades to a websocket and sends a View on every change. A slow
// client only ever receives the newest list.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close messages are seen.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := make(chan []todo.Task, 1)
	stop := s.sess.Observe(func(tasks []todo.Task) {
		select {
		case <-updates:
		default:
		}
		updates <- tasks
	})
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tasks := <-updates:
			v := s.view()
			v.Tasks = tasks
			v.Progress = todo.Stats(tasks)
			if err := conn.WriteJSON(v); err != nil {
				s.logger.Debug("live client gone", "err", err)
				return
			}
		}
	}
}

// ready waits for the first snapshot and reports failures to the client.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) bool {
	ctx, cancel := context.WithTimeout(r.Context(), waitTimeout)
	defer cancel()
	if err := s.sess.Wait(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err))
		return false
	}
	return true
}

func (s *Server) view() View {
	v := View{
		Tasks:    s.sess.Tasks(),
		Progress: s.sess.Progress(),
		Query:    s.sess.Query(),
	}
	if f := s.sess.Filter(); f != nil {
		name := f.String()
		v.Priority = &name
	}
	return v
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *session.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case errors.Is(err, store.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorBody(err))
	default:
		s.logger.Warn("request failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody(err))
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
