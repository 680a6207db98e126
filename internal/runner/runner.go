// Package runner executes a child command with its output fanned into
// the console sinks, on plain pipes or on a pseudo-terminal.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Options configure a run.
type Options struct {
	// PTY runs the child on a pseudo-terminal, which keeps programs
	// that check for a terminal in their interactive output mode. The
	// terminal merges the child's stdout and stderr into one stream.
	PTY bool

	// Stdout and Stderr receive the child's output, typically the two
	// console sinks. They default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
	// Stdin, when set, is fed to the child.
	Stdin io.Reader

	// Dir is the child's working directory; empty inherits ours.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string

	// OnStart, when set, is called with the child's PID right after the
	// child starts, before any output is consumed.
	OnStart func(pid int)
}

// Result is what a finished child left behind. Exit codes for signalled
// children follow the shell convention of 128 plus the signal number.
type Result struct {
	ExitCode int
	Signal   string
}

// Run starts the command and blocks until it finishes. SIGINT and
// SIGTERM arriving at this process are forwarded to the child, as is
// context cancellation (as SIGTERM), so interactive interrupts reach the
// right process. A non-zero child exit is reported in Result, not as an
// error; the error return covers failures to run at all.
func Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	if opts.PTY {
		return exitResult(runPTY(ctx, cmd, opts))
	}
	return exitResult(runPipes(ctx, cmd, opts))
}

func runPipes(ctx context.Context, cmd *exec.Cmd, opts Options) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	// Readers are up before the child starts so no early output is
	// missed.
	readersDone := make(chan struct{}, 2)
	go copyStream(stdout, opts.Stdout, readersDone)
	go copyStream(stderr, opts.Stderr, readersDone)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	if opts.OnStart != nil {
		opts.OnStart(cmd.Process.Pid)
	}
	stop := forwardSignals(ctx, cmd)
	defer stop()

	// Drain both pipes before reaping the child.
	<-readersDone
	<-readersDone
	return cmd.Wait()
}

func runPTY(ctx context.Context, cmd *exec.Cmd, opts Options) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start command with pty: %w", err)
	}
	defer func() { _ = ptmx.Close() }()
	if opts.OnStart != nil {
		opts.OnStart(cmd.Process.Pid)
	}

	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 80})
	if f, ok := opts.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		// Raw mode so keystrokes reach the child unmodified; the
		// child's pty side does the echoing.
		if prev, rawErr := term.MakeRaw(int(f.Fd())); rawErr == nil {
			defer func() { _ = term.Restore(int(f.Fd()), prev) }()
		}
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		go func() {
			for range winch {
				_ = pty.InheritSize(f, ptmx)
			}
		}()
		winch <- syscall.SIGWINCH
		defer func() {
			signal.Stop(winch)
			close(winch)
		}()
	}
	if opts.Stdin != nil {
		go func() { _, _ = io.Copy(ptmx, opts.Stdin) }()
	}

	stop := forwardSignals(ctx, cmd)
	defer stop()

	done := make(chan struct{}, 1)
	go copyStream(ptmx, opts.Stdout, done)
	<-done
	return cmd.Wait()
}

// copyStream moves child output to the sink in raw chunks rather than
// lines, so partial lines (prompts, progress bars) arrive as the child
// writes them.
func copyStream(r io.Reader, w io.Writer, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	buf := make([]byte, 8192)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
		}
		if err != nil {
			// A pty read fails with EIO instead of EOF when the
			// child exits, and a failed start closes the pipes
			// under us.
			if err != io.EOF && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				slog.Error("error reading child stream", "error", err)
			}
			return
		}
	}
}

// forwardSignals relays interrupt and terminate to the child and turns
// context cancellation into a SIGTERM. The returned func stops the
// relay.
func forwardSignals(ctx context.Context, cmd *exec.Cmd) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		ctxDone := ctx.Done()
		for {
			select {
			case sig := <-sigs:
				if cmd.Process != nil {
					_ = cmd.Process.Signal(sig)
				}
			case <-ctxDone:
				if cmd.Process != nil {
					_ = cmd.Process.Signal(syscall.SIGTERM)
				}
				ctxDone = nil
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// exitResult folds cmd.Wait's error into an exit code and signal name,
// mirroring what a shell would report.
func exitResult(err error) (Result, error) {
	if err == nil {
		return Result{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res := Result{ExitCode: exitErr.ExitCode()}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			res.Signal = status.Signal().String()
			res.ExitCode = 128 + int(status.Signal())
		}
		return res, nil
	}
	return Result{ExitCode: 1}, err
}
