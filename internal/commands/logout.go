package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/auth"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/session"
)

func init() {
	Register(&LogoutCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct {
	provider auth.Provider
}

// SetProvider replaces the Google provider (for testing).
func (c *LogoutCmd) SetProvider(p auth.Provider) {
	c.provider = p
}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "gtodo logout" }
func (c *LogoutCmd) NeedsAuth() bool   { return false }

func (c *LogoutCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if !cfg.HasToken() && !cfg.HasIdentity() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}

	provider := c.provider
	if provider == nil {
		provider = auth.NewGoogle(cfg)
	}
	if err := provider.SignOut(ctx); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove credentials: %v\n", err)
		return exitcode.AuthError
	}
	return ok(cfg, out)
}
