package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/output"
	"gtodo/internal/pipeline"
	"gtodo/internal/session"
	"gtodo/internal/todo"
)

func init() {
	Register(&ListCmd{})
	Register(&WatchCmd{})
}

// viewFlags are the search and filter flags shared by list and watch.
type viewFlags struct {
	query    string
	priority string
}

func (v *viewFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&v.query, "query", "q", "", "only show tasks whose title contains this text")
	fs.StringVarP(&v.priority, "priority", "p", "", "only show tasks with this priority (High, Medium, Low)")
}

// parse validates the priority flag. The session itself stays unfiltered so
// rows can be numbered by their position in the full list.
func (v *viewFlags) parse(errOut io.Writer) (*todo.Priority, int) {
	if v.priority == "" {
		return nil, exitcode.Success
	}
	p, ok := todo.ParsePriority(v.priority)
	if !ok {
		fmt.Fprintf(errOut, "error: invalid priority: %s\n", v.priority)
		return nil, exitcode.UserError
	}
	return &p, exitcode.Success
}

// render prints the part of all that matches the view, numbered as refs.
func (v *viewFlags) render(out io.Writer, all []todo.Task, filter *todo.Priority) {
	shown := pipeline.Derive(all, v.query, filter)
	output.FormatView(out, todo.Stats(shown), v.query, filter, shown, refNumbers(all, shown))
}

func rejectArgs(args []string, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", strings.Join(args, " "))
		return exitcode.UserError
	}
	return exitcode.Success
}

// ListCmd implements the list command.
// Handles both `gtodo` (no args) and `gtodo list`.
type ListCmd struct {
	view viewFlags
}

// SetQuery sets the search text (for testing).
func (c *ListCmd) SetQuery(q string) {
	c.view.query = q
}

// SetPriority sets the priority filter (for testing).
func (c *ListCmd) SetPriority(p string) {
	c.view.priority = p
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "gtodo list [--query <text>] [--priority <level>]" }
func (c *ListCmd) NeedsAuth() bool   { return true }

func (c *ListCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.view.register(fs)
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if code := rejectArgs(args, errOut); code != exitcode.Success {
		return code
	}
	filter, code := c.view.parse(errOut)
	if code != exitcode.Success {
		return code
	}

	if err := sess.Wait(ctx); err != nil {
		return Fail(errOut, err)
	}

	all := sess.Tasks()
	if len(all) == 0 && c.view.query == "" && filter == nil {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
		return exitcode.Success
	}

	c.view.render(out, all, filter)
	return exitcode.Success
}

// WatchCmd re-prints the list whenever it changes, until interrupted.
type WatchCmd struct {
	view viewFlags
}

// SetQuery sets the search text (for testing).
func (c *WatchCmd) SetQuery(q string) {
	c.view.query = q
}

// SetPriority sets the priority filter (for testing).
func (c *WatchCmd) SetPriority(p string) {
	c.view.priority = p
}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return nil }
func (c *WatchCmd) Synopsis() string  { return "Follow the task list live" }
func (c *WatchCmd) Usage() string     { return "gtodo watch [--query <text>] [--priority <level>]" }
func (c *WatchCmd) NeedsAuth() bool   { return true }

func (c *WatchCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.view.register(fs)
}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if code := rejectArgs(args, errOut); code != exitcode.Success {
		return code
	}
	filter, code := c.view.parse(errOut)
	if code != exitcode.Success {
		return code
	}
	if err := sess.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return exitcode.Success
		}
		return Fail(errOut, err)
	}

	first := true
	stop := sess.Observe(func(all []todo.Task) {
		if !first {
			fmt.Fprintln(out)
		}
		first = false
		c.view.render(out, all, filter)
	})
	defer stop()

	<-ctx.Done()
	return exitcode.Success
}
