package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/session"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command. Running it on a completed task
// reopens it.
type DoneCmd struct{}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string  { return "Toggle a task between open and completed" }
func (c *DoneCmd) Usage() string     { return "gtodo done <ref>" }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	task, err := resolveTaskRef(ctx, sess, args)
	if err != nil {
		return Fail(errOut, err)
	}
	if err := sess.Toggle(ctx, sess.UserID(), task); err != nil {
		return Fail(errOut, err)
	}
	return ok(cfg, out)
}
