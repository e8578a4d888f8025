package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode"

	"gtodo/internal/pipeline"
	"gtodo/internal/session"
	"gtodo/internal/todo"
)

var (
	// ErrTaskRefRequired indicates no task reference was provided.
	ErrTaskRefRequired = errors.New("task reference required")

	// ErrInvalidTaskRef indicates a number outside the list or an unknown id.
	ErrInvalidTaskRef = errors.New("invalid task reference")
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Num int    // 1-based position in the unfiltered list, 0 if ID is set
	ID  string // task id
}

// ParseTaskRef parses a task reference from args.
//
// Parsing rules:
//  1. No args → error: task reference required
//  2. All digits → position in the list as printed by a bare `gtodo list`
//  3. Anything else → task id
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 || args[0] == "" {
		return TaskRef{}, ErrTaskRefRequired
	}

	ref := args[0]
	if isAllDigits(ref) {
		num, err := strconv.Atoi(ref)
		if err != nil || num < 1 {
			return TaskRef{}, fmt.Errorf("%w: %s", ErrInvalidTaskRef, ref)
		}
		return TaskRef{Num: num}, nil
	}
	return TaskRef{ID: ref}, nil
}

// Resolve finds the referenced task in the session's current list.
// It waits for the first snapshot if none has arrived yet.
func (r TaskRef) Resolve(ctx context.Context, sess *session.Session) (todo.Task, error) {
	if err := sess.Wait(ctx); err != nil {
		return todo.Task{}, err
	}

	if r.ID != "" {
		t, ok := sess.Lookup(r.ID)
		if !ok {
			return todo.Task{}, fmt.Errorf("%w: %s", ErrInvalidTaskRef, r.ID)
		}
		return t, nil
	}

	// Numbers index the unfiltered derived order, so they stay stable
	// regardless of any query a previous command used.
	tasks := pipeline.Derive(sess.Snapshot(), "", nil)
	if r.Num < 1 || r.Num > len(tasks) {
		return todo.Task{}, fmt.Errorf("%w: %d (out of range)", ErrInvalidTaskRef, r.Num)
	}
	return tasks[r.Num-1], nil
}

// refNumbers returns, for each task in shown, its number in all, which must
// be the unfiltered derived list. Filtered views print these so that a
// number the user sees always resolves to the same task.
func refNumbers(all, shown []todo.Task) []int {
	pos := make(map[string]int, len(all))
	for i, t := range all {
		pos[t.ID] = i + 1
	}
	nums := make([]int, len(shown))
	for i, t := range shown {
		nums[i] = pos[t.ID]
	}
	return nums
}

// resolveTaskRef parses and resolves args in one step.
func resolveTaskRef(ctx context.Context, sess *session.Session, args []string) (todo.Task, error) {
	ref, err := ParseTaskRef(args)
	if err != nil {
		return todo.Task{}, err
	}
	return ref.Resolve(ctx, sess)
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
