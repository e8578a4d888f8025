package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/session"
	"gtodo/internal/web"
)

func init() {
	Register(&ServeCmd{})
}

// ServeCmd serves the task list over HTTP until interrupted.
type ServeCmd struct {
	addr string
}

func (c *ServeCmd) Name() string      { return "serve" }
func (c *ServeCmd) Aliases() []string { return nil }
func (c *ServeCmd) Synopsis() string  { return "Serve the task list over HTTP" }
func (c *ServeCmd) Usage() string     { return "gtodo serve [--addr <host:port>]" }
func (c *ServeCmd) NeedsAuth() bool   { return true }

// SetAddr sets the listen address (for testing).
func (c *ServeCmd) SetAddr(addr string) {
	c.addr = addr
}

func (c *ServeCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "localhost:8080", "the address to listen on")
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	srv := web.New(sess, cfg.Log())
	srv.DefaultCategory = cfg.Settings.DefaultCategory

	if !cfg.Quiet {
		fmt.Fprintf(out, "serving on http://%s\n", c.addr)
	}
	if err := srv.ListenAndServe(ctx, c.addr); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
