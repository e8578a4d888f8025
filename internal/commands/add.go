package commands

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/session"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	priority string
	category string
}

// SetPriority sets the priority (for testing).
func (c *AddCmd) SetPriority(p string) {
	c.priority = p
}

// SetCategory sets the category (for testing).
func (c *AddCmd) SetCategory(category string) {
	c.category = category
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "gtodo add [--priority <level>] [--category <name>] <title...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.priority, "priority", "p", "", "High, Medium or Low (default Medium)")
	fs.StringVarP(&c.category, "category", "c", "", "category (default from config.yaml)")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	category := c.category
	if strings.TrimSpace(category) == "" {
		category = cfg.Settings.DefaultCategory
	}

	id, err := sess.AddInCategory(ctx, sess.UserID(), strings.Join(args, " "), c.priority, category)
	if err != nil {
		return Fail(errOut, err)
	}
	cfg.Log().Debug("task created", "id", id)
	return ok(cfg, out)
}
