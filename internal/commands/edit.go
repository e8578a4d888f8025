package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/session"
)

func init() {
	Register(&EditCmd{})
}

// EditCmd implements the edit command.
type EditCmd struct {
	title    string
	priority string
}

// SetTitle sets the new title (for testing).
func (c *EditCmd) SetTitle(title string) {
	c.title = title
}

// SetPriority sets the new priority (for testing).
func (c *EditCmd) SetPriority(p string) {
	c.priority = p
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return nil }
func (c *EditCmd) Synopsis() string  { return "Change a task's title or priority" }
func (c *EditCmd) Usage() string     { return "gtodo edit [--title <text>] [--priority <level>] <ref>" }
func (c *EditCmd) NeedsAuth() bool   { return true }

func (c *EditCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.title, "title", "t", "", "new title")
	fs.StringVarP(&c.priority, "priority", "p", "", "new priority (High, Medium, Low)")
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	task, err := resolveTaskRef(ctx, sess, args)
	if err != nil {
		return Fail(errOut, err)
	}
	if err := sess.Update(ctx, sess.UserID(), task.ID, c.title, c.priority); err != nil {
		return Fail(errOut, err)
	}
	return ok(cfg, out)
}
