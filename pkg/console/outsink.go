package console

import (
	"bufio"
	"io"
	"strings"
)

// record is one write captured with the state that was current at
// submission time, so a write queued during an error flush still prints
// with the right colour and visibility later.
type record struct {
	fileOnly  bool
	raw       string
	formatted string
	print     bool
}

// OutSink is the normal-output half of a Console. It satisfies io.Writer
// and is safe for concurrent use; ordering follows lock acquisition.
type OutSink struct {
	con    *Console
	screen io.Writer
	log    *bufio.Writer

	// role flags, toggled by the console's scoped switches
	user     bool
	errored  bool
	warn     bool
	fileOnly bool

	high map[string]string
	low  map[string]string

	// last is the final byte of the most recent write, 0 before any
	// write. The error sink only flushes between whole lines.
	last byte

	// allowed gates screen access. The error sink clears it while a
	// block is on screen; writes queue until it is restored.
	allowed bool
	queue   []record
}

// Write captures p with the current role flags, prints it unless an error
// block holds the screen, and mirrors it to the log. It never returns an
// error; write failures are reported out of band so instrumented code
// cannot crash on a broken log file.
func (s *OutSink) Write(p []byte) (int, error) {
	s.con.mu.Lock()
	defer s.con.mu.Unlock()
	s.writeLocked(string(p))
	return len(p), nil
}

func (s *OutSink) writeLocked(text string) {
	defer s.con.recoverDump(s.screen)

	rec := record{
		fileOnly:  s.fileOnly,
		raw:       text,
		formatted: s.formatLocked(text),
		print:     (s.user && s.con.userMode) || !s.con.userMode,
	}
	s.queue = append(s.queue, rec)
	if !s.allowed {
		return
	}
	s.drainLocked()
	if s.last == '\n' {
		// A finished line is the error sink's chance to flush early.
		s.con.err.flushLocked(false)
	}
}

// formatLocked resolves the role flags to a colour and hands off to the
// formatter. Priority: error over warn over user over the dull default.
func (s *OutSink) formatLocked(text string) string {
	pal := s.con.palette
	col := pal.Dull
	if s.user {
		col = pal.User
	}
	if s.warn {
		col = pal.Warn
	}
	if s.errored {
		col = pal.Error
	}
	return s.con.form.Format(text, col, s.high, s.low)
}

// drainLocked writes queued records in order: raw bytes to the log, the
// formatted form to the screen when visible. The log is flushed on line
// boundaries so tails of the file stay current.
func (s *OutSink) drainLocked() {
	for len(s.queue) > 0 {
		rec := s.queue[0]
		s.queue = s.queue[1:]

		if s.log != nil {
			if _, err := s.log.WriteString(rec.raw); err != nil {
				s.con.reportWriteErrorLocked(err)
			}
		}
		if rec.print && !rec.fileOnly {
			if _, err := io.WriteString(s.screen, rec.formatted); err != nil {
				s.con.reportWriteErrorLocked(err)
			}
		}
		if s.log != nil && strings.ContainsRune(rec.raw, '\n') {
			if err := s.log.Flush(); err != nil {
				s.con.reportWriteErrorLocked(err)
			}
		}
		if len(rec.raw) > 0 {
			s.last = rec.raw[len(rec.raw)-1]
		}
	}
}

// Flush forces buffered log bytes to disk.
func (s *OutSink) Flush() {
	s.con.mu.Lock()
	defer s.con.mu.Unlock()
	s.flushLocked()
}

func (s *OutSink) flushLocked() {
	if s.log == nil {
		return
	}
	if err := s.log.Flush(); err != nil {
		s.con.reportWriteErrorLocked(err)
	}
}

// closeLocked drains whatever is still queued, flushes the log, and puts
// the terminal back to its default colours.
func (s *OutSink) closeLocked() {
	s.drainLocked()
	s.flushLocked()
	if s.con.palette.Enabled {
		io.WriteString(s.screen, s.con.palette.Reset)
	}
}
