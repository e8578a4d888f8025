// Package cli parses the command line and runs the matching command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"gtodo/internal/auth"
	"gtodo/internal/backend/googletasks"
	"gtodo/internal/backend/sqlitestore"
	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/session"
	"gtodo/internal/store"
)

// StoreFactory opens the task store for a command.
// If the store implements io.Closer it is closed when the command returns.
type StoreFactory func(ctx context.Context, cfg *config.Config) (store.Store, error)

// DefaultStoreFactory opens the backend named in config.yaml.
func DefaultStoreFactory(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Settings.Backend {
	case config.BackendGoogleTasks:
		s, err := googletasks.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		if err := cfg.EnsureDir(); err != nil {
			return nil, err
		}
		s, err := sqlitestore.Open(cfg.DatabasePath(), cfg.Log())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  StoreFactory
}

// NewDispatcher creates a new dispatcher with the given registry and store
// factory. A nil factory means DefaultStoreFactory.
func NewDispatcher(registry *commands.Registry, factory StoreFactory) *Dispatcher {
	if factory == nil {
		factory = DefaultStoreFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// options are the flags every command accepts.
type options struct {
	configDir string
	quiet     bool
	debug     bool
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> list
	if len(args) == 0 {
		args = []string{"list"}
	}

	cmdName := args[0]

	// Flags require a command
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatchCommand(ctx, cmd, args[1:], out, errOut)
}

// dispatchCommand builds a fresh cobra command per run so flag values never
// leak between invocations.
func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	var opts options
	code := exitcode.Success

	root := &cobra.Command{
		Use:                   cmd.Name(),
		Short:                 cmd.Synopsis(),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(c *cobra.Command, positional []string) error {
			code = d.execute(c.Context(), cmd, opts, positional, out, errOut)
			return nil
		},
	}
	// cobra reads os.Args when given nil
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetHelpFunc(func(*cobra.Command, []string) {
		fmt.Fprintf(out, "Usage: %s\n", cmd.Usage())
	})

	fs := root.Flags()
	fs.StringVar(&opts.configDir, "config", "", "override config directory")
	fs.BoolVar(&opts.quiet, "quiet", false, "suppress informational output")
	fs.BoolVar(&opts.debug, "debug", false, "print debug logs to stderr")
	cmd.RegisterFlags(fs)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	return code
}

func (d *Dispatcher) execute(ctx context.Context, cmd commands.Command, opts options, args []string, out, errOut io.Writer) int {
	cfg, err := config.New(opts.configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = opts.quiet
	cfg.Debug = opts.debug
	cfg.Logger = newLogger(errOut, opts.debug)

	if err := cfg.LoadSettings(); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}

	if !cmd.NeedsAuth() {
		return cmd.Run(ctx, cfg, nil, args, out, errOut)
	}

	id, err := auth.LoadIdentity(cfg)
	if err != nil {
		return commands.Fail(errOut, err)
	}

	st, err := d.factory(ctx, cfg)
	if err != nil {
		return commands.Fail(errOut, err)
	}
	if c, ok := st.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				cfg.Log().Warn("failed to close store", "err", err)
			}
		}()
	}

	sess := session.New(st, cfg.Log())
	defer sess.Close()

	cfg.Log().Debug("observing", "user", id.UserID, "backend", cfg.Settings.Backend)
	if err := sess.StartObserving(ctx, id.UserID); err != nil {
		return commands.Fail(errOut, err)
	}

	return cmd.Run(ctx, cfg, sess, args, out, errOut)
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
