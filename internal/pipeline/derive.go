// Package pipeline turns a raw task snapshot into the ordered list shown to the user.
package pipeline

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"gtodo/internal/todo"
)

// Derive filters raw by title query and priority filter, then orders the result
// by priority level, highest first. Tasks of equal level keep their raw order.
//
// An empty query matches every title. A nil filter keeps every priority.
// raw is never modified; the result is always a new slice.
func Derive(raw []todo.Task, query string, filter *todo.Priority) []todo.Task {
	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(norm.NFC.String(query))

	out := make([]todo.Task, 0, len(raw))
	for _, t := range raw {
		if !matchesQuery(fold, t.Title, needle) {
			continue
		}
		if filter != nil && !matchesPriority(t.Priority, *filter) {
			continue
		}
		out = append(out, t)
	}

	slices.SortStableFunc(out, func(a, b todo.Task) int {
		return b.ResolvedPriority().Level() - a.ResolvedPriority().Level()
	})
	return out
}

func matchesQuery(fold cases.Caser, title, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(fold.String(norm.NFC.String(title)), needle)
}

// matchesPriority compares by level name, so a malformed stored value
// never matches even though it sorts as Medium.
func matchesPriority(stored string, filter todo.Priority) bool {
	return strings.EqualFold(strings.TrimSpace(stored), filter.String())
}
