package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gtodo/internal/auth"
	"gtodo/internal/cli"
	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/store"
	"gtodo/internal/testutil"
	"gtodo/internal/todo"
)

const userID = "user-1"

// testFactory creates a store factory that returns the given FakeStore.
func testFactory(fs *testutil.FakeStore) cli.StoreFactory {
	return func(ctx context.Context, cfg *config.Config) (store.Store, error) {
		return fs, nil
	}
}

// signedIn returns a config dir holding a stored identity.
func signedIn(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := auth.SaveIdentity(&config.Config{Dir: dir}, auth.Identity{UserID: userID, DisplayName: "Ana"}); err != nil {
		t.Fatalf("failed to save identity: %v", err)
	}
	return dir
}

func run(d *cli.Dispatcher, args ...string) (stdout, stderr string, code int) {
	var outBuf, errBuf bytes.Buffer
	code = d.Run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	_, stderr, code := run(dispatcher, "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	_, stderr, code := run(dispatcher, "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	stdout, stderr, code := run(dispatcher, "help", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("expected help output to contain 'Usage:'")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	stdout, stderr, code := run(dispatcher, "version", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "gtodo 0.1.0\n" {
		t.Errorf("expected 'gtodo 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	_, stderr, code := run(dispatcher, "help", "--unknown")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown flag: --unknown\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagNeedsArgument(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	_, stderr, code := run(dispatcher, "add", "--config", signedIn(t), "Buy milk", "--priority")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.HasPrefix(stderr, "error: flag needs an argument") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestDispatcher_NoArgsListsTasks(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	cfg := &config.Config{Dir: filepath.Join(xdg, config.AppName)}
	if err := auth.SaveIdentity(cfg, auth.Identity{UserID: userID}); err != nil {
		t.Fatalf("failed to save identity: %v", err)
	}

	fs := testutil.NewFakeStore()
	fs.Seed(userID, todo.Task{ID: "1", Title: "Buy milk", Priority: "Low"})

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(fs))
	stdout, stderr, code := run(dispatcher)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.Contains(stdout, "   1  [ ] Buy milk  (Low, Kuliah)\n") {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestDispatcher_AddThenList(t *testing.T) {
	dir := signedIn(t)
	fs := testutil.NewFakeStore()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(fs))

	stdout, stderr, code := run(dispatcher, "add", "--config", dir, "-p", "High", "Submit", "report")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected 'ok\\n', got %q", stdout)
	}

	tasks := fs.Tasks(userID)
	if len(tasks) != 1 || tasks[0].Title != "Submit report" || tasks[0].Priority != "High" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	// Flag values from the previous run must not carry over.
	stdout, _, code = run(dispatcher, "add", "--config", dir, "--quiet", "Buy milk")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "" {
		t.Errorf("expected no stdout with --quiet, got %q", stdout)
	}
	if got := fs.Tasks(userID)[0].Priority; got != "Medium" {
		t.Errorf("expected default priority Medium, got %q", got)
	}

	stdout, _, code = run(dispatcher, "ls", "--config", dir)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.HasPrefix(stdout, "0 / 2 done, 0%\n") {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestDispatcher_NotLoggedIn(t *testing.T) {
	fs := testutil.NewFakeStore()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(fs))

	_, stderr, code := run(dispatcher, "list", "--config", t.TempDir())

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stderr != "error: not logged in (run: gtodo login)\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if len(fs.Subscriptions(userID)) != 0 {
		t.Error("store should not be used without a signed-in user")
	}
}

func TestDispatcher_FactoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		prefix string
	}{
		{"auth", &auth.Error{Op: "load", Err: errors.New("token.json not found")}, exitcode.AuthError, "error: auth error: "},
		{"backend", errors.New("disk full"), exitcode.BackendError, "error: backend error: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := func(ctx context.Context, cfg *config.Config) (store.Store, error) {
				return nil, tt.err
			}
			dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory)

			_, stderr, code := run(dispatcher, "list", "--config", signedIn(t))

			if code != tt.code {
				t.Errorf("expected exit code %d, got %d", tt.code, code)
			}
			if !strings.HasPrefix(stderr, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, stderr)
			}
		})
	}
}

func TestDispatcher_InvalidSettings(t *testing.T) {
	dir := signedIn(t)
	if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte("backend: firestore\n"), 0600); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeStore()))

	_, stderr, code := run(dispatcher, "list", "--config", dir)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.HasPrefix(stderr, "error: invalid config.yaml") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestDispatcher_SQLiteBackend(t *testing.T) {
	dir := signedIn(t)
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, nil)

	_, stderr, code := run(dispatcher, "add", "--config", dir, "Read paper")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "gtodo.db")); err != nil {
		t.Fatalf("database not created: %v", err)
	}

	stdout, stderr, code := run(dispatcher, "list", "--config", dir)
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	if !strings.Contains(stdout, "Read paper  (Medium, Kuliah)") {
		t.Errorf("unexpected stdout %q", stdout)
	}
}
