// Package todo defines the task item and its priority levels.
package todo

import (
	"strings"
	"time"
)

// DefaultCategory is the category given to tasks created without one.
const DefaultCategory = "Kuliah"

// Priority is an ordered task priority level.
type Priority int

// Priority levels. A higher level sorts first.
const (
	Low    Priority = 1
	Medium Priority = 2
	High   Priority = 3
)

// Priorities lists all levels from highest to lowest.
var Priorities = []Priority{High, Medium, Low}

// String returns the display name of the level.
func (p Priority) String() string {
	switch p {
	case High:
		return "High"
	case Low:
		return "Low"
	default:
		return "Medium"
	}
}

// Level returns the numeric sort level.
func (p Priority) Level() int { return int(p) }

// ResolvePriority parses a stored priority string.
// Matching is case-insensitive; anything unrecognised, including "", resolves to Medium.
func ResolvePriority(s string) Priority {
	p, ok := ParsePriority(s)
	if !ok {
		return Medium
	}
	return p
}

// ParsePriority is like ResolvePriority but reports whether s named a level.
func ParsePriority(s string) (Priority, bool) {
	s = strings.TrimSpace(s)
	for _, p := range Priorities {
		if strings.EqualFold(s, p.String()) {
			return p, true
		}
	}
	return Medium, false
}

// Task represents a single to-do item.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Priority  string    `json:"priority"` // stored as written; see ResolvePriority
	Category  string    `json:"category"`
	Completed bool      `json:"isCompleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResolvedPriority returns the task's priority level.
func (t Task) ResolvedPriority() Priority {
	return ResolvePriority(t.Priority)
}

// Progress summarises completion across a list of tasks.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Stats counts completed tasks.
func Stats(tasks []Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			p.Completed++
		}
	}
	return p
}

// Percent returns completion as a whole percentage, 0 for an empty list.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// Cleared reports whether every task is done. An empty list is not cleared.
func (p Progress) Cleared() bool {
	return p.Total > 0 && p.Completed == p.Total
}
