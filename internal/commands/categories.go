package commands

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/output"
	"gtodo/internal/session"
	"gtodo/internal/todo"
)

func init() {
	Register(&CategoriesCmd{})
}

// CategoriesCmd implements the categories command.
type CategoriesCmd struct{}

func (c *CategoriesCmd) Name() string      { return "categories" }
func (c *CategoriesCmd) Aliases() []string { return nil }
func (c *CategoriesCmd) Synopsis() string  { return "Print categories with progress" }
func (c *CategoriesCmd) Usage() string     { return "gtodo categories" }
func (c *CategoriesCmd) NeedsAuth() bool   { return true }

func (c *CategoriesCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *CategoriesCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if err := sess.Wait(ctx); err != nil {
		return Fail(errOut, err)
	}

	byName := make(map[string][]todo.Task)
	for _, t := range sess.Snapshot() {
		name := strings.TrimSpace(t.Category)
		if name == "" {
			name = todo.DefaultCategory
		}
		byName[name] = append(byName[name], t)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		output.FormatCategory(out, name, todo.Stats(byName[name]))
	}
	return exitcode.Success
}
