package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/session"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct{}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete a task" }
func (c *RmCmd) Usage() string     { return "gtodo rm <ref>" }
func (c *RmCmd) NeedsAuth() bool   { return true }

func (c *RmCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	task, err := resolveTaskRef(ctx, sess, args)
	if err != nil {
		return Fail(errOut, err)
	}
	if err := sess.Delete(ctx, sess.UserID(), task.ID); err != nil {
		return Fail(errOut, err)
	}
	return ok(cfg, out)
}
