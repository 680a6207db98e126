package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"conmux/pkg/ansi"
)

// Separator divides fields on timestamped lines. It is rare in normal
// program output, which keeps log files easy to split and import.
const Separator = "|"

// DefaultPrompt is used by ReadLine and ReadSecret when no prompt text is
// given.
const DefaultPrompt = "Command> "

// Status keywords recognised by Statf and recoloured by the highlighter
// wherever they appear.
const (
	StatusStat = "STAT"
	StatusWarn = "WARN"
	StatusErro = "ERRO"
)

// DefaultBatchInterval is how long the error sink waits for the stream to
// go quiet before flushing a block.
const DefaultBatchInterval = 20 * time.Millisecond

// timeLayout renders timestamps with millisecond precision.
const timeLayout = "06-01-02 15:04:05.000"

// blockDelimiter opens an error block in the log. The '+' matches the
// per-line error prefix so whole blocks are easy to grep.
const blockDelimiter = "++++++++"

// Formatter colourizes a fragment of output. text is the raw fragment,
// roleColour the already-resolved colour for the sink's current role
// flags, and high/low the sink's scoped keyword maps. Implementations
// must be deterministic and must not retain the maps.
type Formatter interface {
	Format(text, roleColour string, high, low map[string]string) string
}

// Config parameterises New. The zero value gives a colourless console on
// os.Stdout/os.Stderr with no log file.
type Config struct {
	// Colour enables escape-sequence output on both sinks.
	Colour bool
	// LogPath, when set, is opened in append mode and receives the raw
	// bytes of every write.
	LogPath string
	// Prefix heads timestamped lines and error-block headers. Defaults
	// to "conmux".
	Prefix string
	// LogStderr mirrors error-sink writes to the log as well. Without a
	// LogPath it has no effect.
	LogStderr bool
	// PrintStderrHeader opens each error block with a delimiter and
	// timestamp header.
	PrintStderrHeader bool
	// BatchInterval overrides DefaultBatchInterval when positive.
	BatchInterval time.Duration
	// AnnounceLog writes one visible line naming the log destination
	// right after the log file opens.
	AnnounceLog bool

	// Screen and ErrScreen are the real output devices. They default to
	// os.Stdout and os.Stderr.
	Screen    io.Writer
	ErrScreen io.Writer
	// Input is the device ReadLine and ReadSecret read from. Defaults
	// to os.Stdin.
	Input io.Reader

	// Highlights maps words to escape sequences highlighted in every
	// message; an empty sequence picks the default highlight colour.
	Highlights map[string]string

	// Formatter overrides the built-in keyword highlighter.
	Formatter Formatter
}

// Console multiplexes program output onto one screen and one log file.
// All state is guarded by a single mutex shared with both sinks; methods
// named with a Locked suffix require it to be held.
type Console struct {
	mu sync.Mutex

	palette *ansi.Palette
	form    Formatter

	prefix   string
	userMode bool
	interval time.Duration

	logPath string
	logFile *os.File
	logBuf  *bufio.Writer

	out *OutSink
	err *ErrSink

	input  io.Reader
	inBuf  *bufio.Reader
	closed bool

	// writeFailed latches after the first sink write error so a broken
	// log file reports once instead of flooding the screen.
	writeFailed bool
}

// New builds a Console from cfg and opens the log file if one is
// configured.
func New(cfg Config) (*Console, error) {
	if cfg.Screen == nil {
		cfg.Screen = os.Stdout
	}
	if cfg.ErrScreen == nil {
		cfg.ErrScreen = os.Stderr
	}
	if cfg.Input == nil {
		cfg.Input = os.Stdin
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "conmux"
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}

	pal := ansi.NewPalette(cfg.Colour)
	form := cfg.Formatter
	if form == nil {
		status := map[string]string{
			StatusStat: pal.Stat,
			StatusWarn: pal.Warn,
			StatusErro: pal.Error,
		}
		form = ansi.NewHighlighter(pal, Separator, cfg.Highlights, status)
	}

	c := &Console{
		palette:  pal,
		form:     form,
		prefix:   cfg.Prefix,
		interval: cfg.BatchInterval,
		logPath:  cfg.LogPath,
		input:    cfg.Input,
		inBuf:    bufio.NewReader(cfg.Input),
	}

	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		c.logFile = f
		c.logBuf = bufio.NewWriter(f)
	}

	c.out = &OutSink{
		con:     c,
		screen:  cfg.Screen,
		log:     c.logBuf,
		allowed: true,
	}
	var errLog *bufio.Writer
	if cfg.LogStderr {
		errLog = c.logBuf
	}
	c.err = &ErrSink{
		con:         c,
		screen:      cfg.ErrScreen,
		log:         errLog,
		errored:     true,
		printHeader: cfg.PrintStderrHeader,
		queue:       make(chan errItem, errQueueSize),
	}

	if c.logBuf != nil && cfg.AnnounceLog {
		restoreUser := c.User()
		restoreHigh := c.Highlight([]string{cfg.LogPath, c.prefix}, nil)
		fmt.Fprintf(c.out, "%s: begin logging to %s\n", c.prefix, cfg.LogPath)
		restoreHigh()
		restoreUser()
	}
	return c, nil
}

// Out returns the output sink as a writer suitable for fmt.Fprint and for
// wiring as a command's stdout.
func (c *Console) Out() io.Writer { return c.out }

// Err returns the error sink. Writes to it batch into delimited blocks.
func (c *Console) Err() io.Writer { return c.err }

// LogPath reports the configured log destination, empty when logging is
// disabled.
func (c *Console) LogPath() string { return c.logPath }

// SetUserMode switches the screen-visibility gate. While enabled, only
// writes made under a User scope are shown; everything is still logged.
func (c *Console) SetUserMode(on bool) {
	c.mu.Lock()
	c.userMode = on
	c.mu.Unlock()
}

// Batch runs fn while holding the serialization lock so that everything
// fn writes stays contiguous on screen. fn receives writers bound to the
// two sinks that assume the lock is held; it must not call methods on the
// Console itself.
func (c *Console) Batch(fn func(out, err io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(lockedWriter{c.out}, lockedWriter{c.err})
}

type lockedSink interface {
	writeLocked(text string)
}

// lockedWriter funnels Batch writes into a sink without re-acquiring the
// console lock.
type lockedWriter struct {
	sink lockedSink
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.sink.writeLocked(string(p))
	return len(p), nil
}

// Logf writes a timestamped line through the output sink:
//
//	prefix|26-08-25 11:40:13.042|message
func (c *Console) Logf(format string, args ...any) {
	c.writeStamped("", format, args...)
}

// Statf is Logf with a status keyword between prefix and timestamp. Use
// the Status constants so the highlighter picks the line out.
func (c *Console) Statf(status, format string, args ...any) {
	c.writeStamped(status, format, args...)
}

func (c *Console) writeStamped(status, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.writeLocked(c.stampLocked(status) + msg)
}

// stampLocked renders the line prefix, with the status field omitted when
// empty.
func (c *Console) stampLocked(status string) string {
	ts := time.Now().Format(timeLayout)
	if status == "" {
		return c.prefix + Separator + ts + Separator
	}
	return c.prefix + Separator + status + Separator + ts + Separator
}

// Flush drains any queued output and forces buffered log bytes to disk.
func (c *Console) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out.allowed {
		c.out.drainLocked()
	}
	if c.logBuf != nil {
		c.logBuf.Flush()
	}
}

// Close flushes both sinks, closes any open error block, and closes the
// log file. The console must not be used afterwards. Closing an installed
// console uninstalls it first.
func (c *Console) Close() error {
	if Default() == c {
		Uninstall()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.err.closeLocked()
	c.out.closeLocked()

	if c.logFile == nil {
		return nil
	}
	var ferr error
	if err := c.logBuf.Flush(); err != nil {
		ferr = fmt.Errorf("flush log file: %w", err)
	}
	if err := c.logFile.Close(); err != nil && ferr == nil {
		ferr = fmt.Errorf("close log file: %w", err)
	}
	c.logFile = nil
	c.logBuf = nil
	return ferr
}

// reportWriteErrorLocked surfaces a sink write failure once, directly on
// the real error device, so a broken log file cannot crash or silently
// gag the instrumented program.
func (c *Console) reportWriteErrorLocked(err error) {
	if c.writeFailed {
		return
	}
	c.writeFailed = true
	fmt.Fprintf(c.err.screen, "\nconsole: write failed: %v\n%s\n", err, debug.Stack())
}

// recoverDump keeps a panic inside a write path from taking down the
// instrumented program. The trace goes straight to the given device,
// bypassing the sink machinery that just failed.
func (c *Console) recoverDump(w io.Writer) {
	if r := recover(); r != nil {
		fmt.Fprintf(w, "\nconsole: internal failure: %v\n%s\n", r, debug.Stack())
	}
}
