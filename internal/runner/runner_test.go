package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conmux/pkg/console"
)

// syncBuffer lets the stats watcher goroutine and the test touch the
// same buffer.
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

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestRun_CapturesStdoutAndStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "out\n", stdout.String())
	require.Equal(t, "err\n", stderr.String())
}

func TestRun_ReportsExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "exit 3"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Empty(t, res.Signal)
}

func TestRun_CommandNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "definitely-not-a-command-12345", nil, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.Error(t, err)
	require.Equal(t, 1, res.ExitCode)
}

func TestRun_FeedsStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "cat", nil, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Stdin:  strings.NewReader("from stdin\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "from stdin\n", stdout.String())
}

func TestRun_PreservesPartialLines(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "printf", []string{"no newline"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "no newline", stdout.String())
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))

	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "ls", nil, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Dir:    dir,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, stdout.String(), "marker.txt")
}

func TestRun_ExtraEnvironment(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "echo $RUNNER_TEST_VAR"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Env:    []string{"RUNNER_TEST_VAR=hello"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello\n", stdout.String())
}

func TestRun_OnStartReportsPID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	var pid int
	res, err := Run(context.Background(), "sh", []string{"-c", "exit 0"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		OnStart: func(p int) { pid = p },
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Positive(t, pid)
}

func TestRun_SignalledChild(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "kill -TERM $$"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	require.Equal(t, "terminated", res.Signal)
	require.Equal(t, 128+15, res.ExitCode)
}

func TestRun_ContextCancelTerminatesChild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	var stdout, stderr bytes.Buffer
	start := time.Now()
	res, err := Run(ctx, "sleep", []string{"30"}, Options{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	require.Equal(t, "terminated", res.Signal)
	require.Less(t, time.Since(start), 5*time.Second)
}

// Commands that check isatty must see a terminal when PTY is on. The
// pseudo-terminal rewrites "\n" to "\r\n", so assertions use Contains.
func TestRun_PTYMakesChildSeeTerminal(t *testing.T) {
	var stdout bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "test -t 0 && echo is-a-tty || echo not-a-tty"}, Options{
		PTY:    true,
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, stdout.String(), "is-a-tty")
}

func TestRun_PTYMergesStderrIntoStdout(t *testing.T) {
	var stdout bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "echo to-stdout; echo to-stderr 1>&2"}, Options{
		PTY:    true,
		Stdout: &stdout,
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, stdout.String(), "to-stdout")
	require.Contains(t, stdout.String(), "to-stderr")
}

func TestWatch_EmitsStatusLines(t *testing.T) {
	screen := &syncBuffer{}
	con, err := console.New(console.Config{Screen: screen, ErrScreen: screen})
	require.NoError(t, err)
	t.Cleanup(func() { _ = con.Close() })

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	stop := Watch(con, cmd.Process.Pid, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	stop()

	out := screen.String()
	require.Contains(t, out, console.StatusStat)
	require.Contains(t, out, "pid")
	require.Contains(t, out, "finished after")
}

func TestWatch_UnknownPIDIsNoop(t *testing.T) {
	screen := &syncBuffer{}
	con, err := console.New(console.Config{Screen: screen, ErrScreen: screen})
	require.NoError(t, err)
	t.Cleanup(func() { _ = con.Close() })

	// PIDs beyond the default kernel limit never exist.
	stop := Watch(con, 1<<30, 20*time.Millisecond)
	stop()
	require.NotContains(t, screen.String(), console.StatusStat)
}

func TestWatch_StopsWhenChildExits(t *testing.T) {
	screen := &syncBuffer{}
	con, err := console.New(console.Config{Screen: screen, ErrScreen: screen})
	require.NoError(t, err)
	t.Cleanup(func() { _ = con.Close() })

	cmd := exec.Command("sleep", "0.05")
	require.NoError(t, cmd.Start())
	stop := Watch(con, cmd.Process.Pid, 20*time.Millisecond)
	defer stop()
	require.NoError(t, cmd.Wait())

	// Once the child is gone the watcher must go quiet.
	time.Sleep(100 * time.Millisecond)
	before := screen.Len()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, before, screen.Len())
}
