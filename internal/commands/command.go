// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/auth"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/session"
	"gtodo/internal/store"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a signed-in user.
	// Commands like help, version, login, logout return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *pflag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings, logger).
	// sess is nil if NeedsAuth() returns false; otherwise it is already
	// observing the signed-in user.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int
}

// Fail prints err the way every command does and returns its exit code.
func Fail(errOut io.Writer, err error) int {
	var (
		verr *session.ValidationError
		aerr *auth.Error
	)
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(errOut, "error: %v\n", verr)
		return exitcode.UserError
	case errors.Is(err, ErrTaskRefRequired), errors.Is(err, ErrInvalidTaskRef), errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case errors.Is(err, auth.ErrNotSignedIn):
		fmt.Fprintln(errOut, "error: not logged in (run: gtodo login)")
		return exitcode.AuthError
	case errors.As(err, &aerr), errors.Is(err, store.ErrPermissionDenied):
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return exitcode.AuthError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}

// ok prints the acknowledgement unless --quiet is set.
func ok(cfg *config.Config, out io.Writer) int {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
