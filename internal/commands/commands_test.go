package commands_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtodo/internal/commands"
	"gtodo/internal/config"
	"gtodo/internal/exitcode"
	"gtodo/internal/session"
	"gtodo/internal/store"
	"gtodo/internal/testutil"
	"gtodo/internal/todo"
)

const userID = "user-1"

func scenario() []todo.Task {
	return []todo.Task{
		{ID: "1", Title: "Buy milk", Priority: "Low"},
		{ID: "2", Title: "Submit report", Priority: "High"},
		{ID: "3", Title: "Call mom", Priority: "Medium"},
	}
}

// newSession returns a session observing userID on fs.
func newSession(t *testing.T, fs *testutil.FakeStore) *session.Session {
	t.Helper()
	sess := session.New(fs, nil)
	t.Cleanup(sess.Close)
	_ = sess.StartObserving(context.Background(), userID)
	return sess
}

// runCommand is a helper to run a command against a session.
func runCommand(t *testing.T, cmd commands.Command, sess *session.Session, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer

	cfg := &config.Config{
		Dir:      t.TempDir(),
		Quiet:    quiet,
		Settings: config.DefaultSettings(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code = cmd.Run(ctx, cfg, sess, args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func find(tasks []todo.Task, id string) todo.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return todo.Task{}
}

func TestVersionCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.VersionCmd{}, nil, nil, false)

	assert.Equal(t, exitcode.Success, code)
	assert.Empty(t, stderr)
	assert.Equal(t, "gtodo 0.1.0\n", stdout)
}

func TestHelpCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.HelpCmd{}, nil, nil, false)

	assert.Equal(t, exitcode.Success, code)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	for _, c := range commands.DefaultRegistry.All() {
		assert.Contains(t, stdout, "gtodo "+c.Name(), "help should mention %s", c.Name())
	}
}

func TestListCommand_PriorityOrder(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, newSession(t, fs), nil, false)

	require.Equal(t, exitcode.Success, code, stderr)
	assert.Equal(t, "0 / 3 done, 0%\n"+
		"------------\n"+
		"   1  [ ] Submit report  (High, Kuliah)\n"+
		"   2  [ ] Call mom  (Medium, Kuliah)\n"+
		"   3  [ ] Buy milk  (Low, Kuliah)\n", stdout)
}

func TestListCommand_Empty(t *testing.T) {
	fs := testutil.NewFakeStore()

	stdout, _, code := runCommand(t, &commands.ListCmd{}, newSession(t, fs), nil, false)
	assert.Equal(t, exitcode.Success, code)
	assert.Equal(t, "no tasks found\n", stdout)

	stdout, _, code = runCommand(t, &commands.ListCmd{}, newSession(t, fs), nil, true)
	assert.Equal(t, exitcode.Success, code)
	assert.Empty(t, stdout)
}

func TestListCommand_Query(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	cmd := &commands.ListCmd{}
	cmd.SetQuery("ca")
	stdout, _, code := runCommand(t, cmd, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.Success, code)
	assert.Contains(t, stdout, `showing query "ca"`)
	assert.Contains(t, stdout, "Call mom")
	assert.NotContains(t, stdout, "Buy milk")
	assert.NotContains(t, stdout, "Submit report")
}

func TestListCommand_PriorityFilter(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	cmd := &commands.ListCmd{}
	cmd.SetPriority("low")
	stdout, _, code := runCommand(t, cmd, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.Success, code)
	assert.Contains(t, stdout, "showing priority Low")
	assert.Contains(t, stdout, "   3  [ ] Buy milk  (Low, Kuliah)\n")
	assert.NotContains(t, stdout, "Call mom")
}

func TestListCommand_FilteredNumbersResolveToShownTask(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	list := &commands.ListCmd{}
	list.SetQuery("milk")
	stdout, _, code := runCommand(t, list, newSession(t, fs), nil, false)
	require.Equal(t, exitcode.Success, code)
	require.Contains(t, stdout, "   3  [ ] Buy milk  (Low, Kuliah)\n")

	_, stderr, code := runCommand(t, &commands.RmCmd{}, newSession(t, fs), []string{"3"}, false)
	require.Equal(t, exitcode.Success, code, stderr)

	var titles []string
	for _, task := range fs.Tasks(userID) {
		titles = append(titles, task.Title)
	}
	assert.ElementsMatch(t, []string{"Submit report", "Call mom"}, titles)
}

func TestListCommand_InvalidPriority(t *testing.T) {
	cmd := &commands.ListCmd{}
	cmd.SetPriority("urgent")
	_, stderr, code := runCommand(t, cmd, newSession(t, testutil.NewFakeStore()), nil, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: invalid priority: urgent\n", stderr)
}

func TestListCommand_UnexpectedArg(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.ListCmd{}, newSession(t, testutil.NewFakeStore()), []string{"Shopping"}, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: unexpected argument: Shopping\n", stderr)
}

func TestListCommand_SubscribeFails(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.SubscribeErr = errors.New("connection refused")

	_, stderr, code := runCommand(t, &commands.ListCmd{}, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.BackendError, code)
	assert.True(t, strings.HasPrefix(stderr, "error: backend error: "), stderr)
	assert.Contains(t, stderr, "connection refused")
}

func TestListCommand_PermissionDenied(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.SubscribeErr = store.ErrPermissionDenied

	_, stderr, code := runCommand(t, &commands.ListCmd{}, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.AuthError, code)
	assert.True(t, strings.HasPrefix(stderr, "error: auth error: "), stderr)
}

func TestAddCommand_Success(t *testing.T) {
	fs := testutil.NewFakeStore()
	cmd := &commands.AddCmd{}
	cmd.SetPriority("high")

	stdout, stderr, code := runCommand(t, cmd, newSession(t, fs), []string{"Buy", "eggs"}, false)

	require.Equal(t, exitcode.Success, code, stderr)
	assert.Equal(t, "ok\n", stdout)

	tasks := fs.Tasks(userID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy eggs", tasks[0].Title)
	assert.Equal(t, "High", tasks[0].Priority)
	assert.Equal(t, todo.DefaultCategory, tasks[0].Category)
	assert.False(t, tasks[0].Completed)
}

func TestAddCommand_CategoryAndDefaultPriority(t *testing.T) {
	fs := testutil.NewFakeStore()
	cmd := &commands.AddCmd{}
	cmd.SetCategory("Rumah")

	_, _, code := runCommand(t, cmd, newSession(t, fs), []string{"Sweep"}, false)

	require.Equal(t, exitcode.Success, code)
	tasks := fs.Tasks(userID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Medium", tasks[0].Priority)
	assert.Equal(t, "Rumah", tasks[0].Category)
}

func TestAddCommand_Quiet(t *testing.T) {
	fs := testutil.NewFakeStore()

	stdout, _, code := runCommand(t, &commands.AddCmd{}, newSession(t, fs), []string{"Test"}, true)

	assert.Equal(t, exitcode.Success, code)
	assert.Empty(t, stdout)
	assert.Len(t, fs.Tasks(userID), 1)
}

func TestAddCommand_NoTitle(t *testing.T) {
	for _, args := range [][]string{nil, {"   "}} {
		fs := testutil.NewFakeStore()

		_, stderr, code := runCommand(t, &commands.AddCmd{}, newSession(t, fs), args, false)

		assert.Equal(t, exitcode.UserError, code)
		assert.Equal(t, "error: title required\n", stderr)
		assert.Zero(t, fs.CreateCalls)
	}
}

func TestAddCommand_BackendError(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.CreateErr = store.ErrUnavailable

	_, stderr, code := runCommand(t, &commands.AddCmd{}, newSession(t, fs), []string{"Test"}, false)

	assert.Equal(t, exitcode.BackendError, code)
	assert.Equal(t, "error: backend error: create: backend unavailable\n", stderr)
}

func TestDoneCommand_ByNumber(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	stdout, stderr, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), []string{"1"}, false)

	require.Equal(t, exitcode.Success, code, stderr)
	assert.Equal(t, "ok\n", stdout)
	assert.True(t, find(fs.Tasks(userID), "2").Completed, "number 1 is the High task")
	assert.False(t, find(fs.Tasks(userID), "1").Completed)
}

func TestDoneCommand_TogglesBack(t *testing.T) {
	fs := testutil.NewFakeStore()
	tasks := scenario()
	tasks[2].Completed = true
	fs.Seed(userID, tasks...)

	_, _, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), []string{"2"}, false)

	require.Equal(t, exitcode.Success, code)
	assert.False(t, find(fs.Tasks(userID), "3").Completed, "number 2 is the Medium task")
}

func TestDoneCommand_NoRef(t *testing.T) {
	fs := testutil.NewFakeStore()

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: task reference required\n", stderr)
}

func TestDoneCommand_OutOfRange(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), []string{"4"}, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: invalid task reference: 4 (out of range)\n", stderr)
	assert.Zero(t, fs.SetCompletedCalls)
}

func TestDoneCommand_UnknownID(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), []string{"nope"}, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: invalid task reference: nope\n", stderr)
}

func TestDoneCommand_PermissionDenied(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)
	fs.SetCompletedErr = store.ErrPermissionDenied

	_, stderr, code := runCommand(t, &commands.DoneCmd{}, newSession(t, fs), []string{"1"}, false)

	assert.Equal(t, exitcode.AuthError, code)
	assert.True(t, strings.HasPrefix(stderr, "error: auth error: "), stderr)
}

func TestEditCommand(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	cmd := &commands.EditCmd{}
	cmd.SetTitle("Call dad")
	cmd.SetPriority("High")
	_, stderr, code := runCommand(t, cmd, newSession(t, fs), []string{"2"}, false)

	require.Equal(t, exitcode.Success, code, stderr)
	got := find(fs.Tasks(userID), "3")
	assert.Equal(t, "Call dad", got.Title)
	assert.Equal(t, "High", got.Priority)
}

func TestEditCommand_NothingToChange(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	_, stderr, code := runCommand(t, &commands.EditCmd{}, newSession(t, fs), []string{"1"}, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: update has nothing to change\n", stderr)
	assert.Zero(t, fs.UpdateCalls)
}

func TestRmCommand(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)

	stdout, stderr, code := runCommand(t, &commands.RmCmd{}, newSession(t, fs), []string{"3"}, false)

	require.Equal(t, exitcode.Success, code, stderr)
	assert.Equal(t, "ok\n", stdout)
	remaining := fs.Tasks(userID)
	require.Len(t, remaining, 2)
	assert.Empty(t, find(remaining, "1").ID, "number 3 is the Low task")
}

func TestRmCommand_NoRef(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.RmCmd{}, newSession(t, testutil.NewFakeStore()), nil, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: task reference required\n", stderr)
}

func TestCategoriesCommand(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID,
		todo.Task{ID: "1", Title: "a", Category: "Rumah", Completed: true},
		todo.Task{ID: "2", Title: "b", Category: "Kuliah"},
		todo.Task{ID: "3", Title: "c", Category: ""},
		todo.Task{ID: "4", Title: "d", Category: "Rumah"},
	)

	stdout, _, code := runCommand(t, &commands.CategoriesCmd{}, newSession(t, fs), nil, false)

	assert.Equal(t, exitcode.Success, code)
	assert.Equal(t, "Kuliah  0 / 2 done\nRumah  1 / 2 done\n", stdout)
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCommand(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)
	sess := newSession(t, fs)

	var out, errOut syncBuffer
	cfg := &config.Config{Dir: t.TempDir(), Settings: config.DefaultSettings()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- (&commands.WatchCmd{}).Run(ctx, cfg, sess, nil, &out, &errOut)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Submit report")
	}, 2*time.Second, 10*time.Millisecond)

	fs.Seed(userID, append(scenario(), todo.Task{ID: "4", Title: "Pay rent", Priority: "High"})...)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Pay rent")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitcode.Success, code)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.Empty(t, errOut.String())
}

func TestWatchCommand_UnexpectedArg(t *testing.T) {
	_, stderr, code := runCommand(t, &commands.WatchCmd{}, newSession(t, testutil.NewFakeStore()), []string{"Shopping"}, false)

	assert.Equal(t, exitcode.UserError, code)
	assert.Equal(t, "error: unexpected argument: Shopping\n", stderr)
}

func TestWatchCommand_FilteredNumbers(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)
	sess := newSession(t, fs)

	cmd := &commands.WatchCmd{}
	cmd.SetPriority("medium")

	var out, errOut syncBuffer
	cfg := &config.Config{Dir: t.TempDir(), Settings: config.DefaultSettings()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- cmd.Run(ctx, cfg, sess, nil, &out, &errOut)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "   2  [ ] Call mom  (Medium, Kuliah)\n")
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "Submit report")

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitcode.Success, code)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestServeCommand(t *testing.T) {
	fs := testutil.NewFakeStore()
	fs.Seed(userID, scenario()...)
	sess := newSession(t, fs)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cmd := &commands.ServeCmd{}
	cmd.SetAddr(addr)

	var out, errOut syncBuffer
	cfg := &config.Config{Dir: t.TempDir(), Settings: config.DefaultSettings()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- cmd.Run(ctx, cfg, sess, nil, &out, &errOut)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "serving on http://"+addr+"\n", out.String())

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitcode.Success, code)
	case <-time.After(7 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeCommand_BadAddr(t *testing.T) {
	cmd := &commands.ServeCmd{}
	cmd.SetAddr("localhost:-1")

	_, stderr, code := runCommand(t, cmd, newSession(t, testutil.NewFakeStore()), nil, true)

	assert.Equal(t, exitcode.BackendError, code)
	assert.True(t, strings.HasPrefix(stderr, "error: "), stderr)
}
