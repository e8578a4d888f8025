package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the backend refuses access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable is returned on connectivity loss or timeouts.
	ErrUnavailable = errors.New("backend unavailable")
)

// Error is a failed store operation.
type Error struct {
	Op     string // "create", "update", "delete", "subscribe"
	UserID string
	ItemID string
	Err    error
}

func (e *Error) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error, or returns nil when err is nil.
func Wrap(op, userID, itemID string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, UserID: userID, ItemID: itemID, Err: err}
}
