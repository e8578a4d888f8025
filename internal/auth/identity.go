// Package auth signs the user in with Google and keeps the resulting
// token and identity in the config directory.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gtodo/internal/config"
)

// ErrNotSignedIn is returned when no identity is stored.
var ErrNotSignedIn = errors.New("not logged in")

// Error is a sign-in or sign-out failure.
type Error struct {
	Op  string // "signin", "signout", "load"
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Identity is the signed-in user. UserID partitions the task store.
type Identity struct {
	UserID          string `json:"userId"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// Provider is a federated identity provider.
type Provider interface {
	// SignIn runs an interactive sign-in. Instructions go to prompt.
	SignIn(ctx context.Context, prompt io.Writer) (Identity, error)

	// SignOut clears the local session and returns once it is gone.
	SignOut(ctx context.Context) error
}

// LoadIdentity reads the stored identity.
func LoadIdentity(cfg *config.Config) (Identity, error) {
	data, err := os.ReadFile(cfg.IdentityPath())
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, &Error{Op: "load", Err: ErrNotSignedIn}
	}
	if err != nil {
		return Identity{}, &Error{Op: "load", Err: err}
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, &Error{Op: "load", Err: fmt.Errorf("invalid %s: %w", config.IdentityFile, err)}
	}
	if id.UserID == "" {
		return Identity{}, &Error{Op: "load", Err: ErrNotSignedIn}
	}
	return id, nil
}

// SaveIdentity writes the identity with mode 0600.
func SaveIdentity(cfg *config.Config, id Identity) error {
	if err := cfg.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.IdentityPath(), data, 0600)
}

// SignOut removes the stored token and identity. It reports whether
// anything was removed; signing out twice is not an error.
func SignOut(cfg *config.Config) (bool, error) {
	removed := false
	for _, remove := range []func() error{cfg.RemoveToken, cfg.RemoveIdentity} {
		err := remove()
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, &Error{Op: "signout", Err: err}
		}
	}
	return removed, nil
}
