package console

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// errQueueSize bounds the pending-item channel. Writers never block on a
// full queue; they force a flush instead, so the bound only caps how much
// one block can hold before it is split.
const errQueueSize = 1024

// errItem is one queued piece of an error block. Header items carry the
// synthesized delimiter and timestamp lines and are styled differently on
// screen.
type errItem struct {
	text   string
	header bool
}

// ErrSink is the error half of a Console. Writes are queued and flushed
// as one delimited block once the stream has been quiet for the batching
// interval, so a stack trace arriving in many small writes comes out in
// one piece.
type ErrSink struct {
	con    *Console
	screen io.Writer
	log    *bufio.Writer

	user     bool
	errored  bool
	warn     bool
	fileOnly bool

	printHeader bool
	headerMsg   string

	queue chan errItem

	// timer counts down the quiet period. At most one is outstanding;
	// flushLocked is the only place it is cleared.
	timer *time.Timer
}

// Write queues p for the current block and arms the batching timer. Like
// the output sink it never returns an error.
func (s *ErrSink) Write(p []byte) (int, error) {
	s.con.mu.Lock()
	defer s.con.mu.Unlock()
	s.writeLocked(string(p))
	return len(p), nil
}

func (s *ErrSink) writeLocked(text string) {
	defer s.con.recoverDump(s.screen)

	if len(s.queue) == 0 && s.printHeader {
		s.enqueueLocked(errItem{text: s.headerLocked(), header: true})
	}
	s.enqueueLocked(errItem{text: text})
	if s.timer == nil {
		s.timer = time.AfterFunc(s.con.interval, func() { s.flushIfReady(false) })
	}
}

// enqueueLocked never drops an item: if the queue is full it forces the
// block out first, which empties the queue while the lock is held. The
// continuation then opens with its own header, so the split reads as two
// complete blocks.
func (s *ErrSink) enqueueLocked(item errItem) {
	select {
	case s.queue <- item:
		return
	default:
	}
	s.flushLocked(true)
	if s.printHeader && !item.header {
		s.queue <- errItem{text: s.headerLocked(), header: true}
	}
	s.queue <- item
}

// headerLocked synthesizes the block header exactly as it is logged: a
// leading break, the delimiter line, and a timestamped message line.
func (s *ErrSink) headerLocked() string {
	return "\n" + blockDelimiter + "\n" + s.con.stampLocked("") + s.headerMsg + "\n"
}

// flushIfReady is the timer entry point; it takes the lock and defers the
// flush decision to flushLocked.
func (s *ErrSink) flushIfReady(force bool) {
	s.con.mu.Lock()
	defer s.con.mu.Unlock()
	s.flushLocked(force)
}

// flushLocked is the single scheduler for error blocks. Every trigger
// funnels through here: the batching timer, the output sink's completed
// lines, queue overflow, and close. It alone starts, stops, and clears
// the timer, which keeps at most one outstanding.
//
// A non-forced flush defers while the output sink sits mid-line, so the
// block never tears a line in half; the retry one interval later forces
// the issue.
func (s *ErrSink) flushLocked(force bool) {
	defer s.con.recoverDump(s.screen)

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.queue) == 0 {
		return
	}
	if !force && s.con.out.last != '\n' {
		s.timer = time.AfterFunc(s.con.interval, func() { s.flushIfReady(true) })
		return
	}

	s.con.out.allowed = false
	defer func() { s.con.out.allowed = true }()
	s.drainLocked()
}

// drainLocked pops queued items until the queue stays empty for one whole
// interval, then closes the block with a trailing line terminator. The
// lock is held throughout, so concurrent writers block for the duration;
// short blocks over short lock holds is the intended trade.
func (s *ErrSink) drainLocked() {
	visible := !s.fileOnly && ((s.user && s.con.userMode) || !s.con.userMode)
	for {
		select {
		case item := <-s.queue:
			if s.log != nil {
				if _, err := s.log.WriteString(item.text); err != nil {
					s.con.reportWriteErrorLocked(err)
				}
				if strings.ContainsRune(item.text, '\n') {
					if err := s.log.Flush(); err != nil {
						s.con.reportWriteErrorLocked(err)
					}
				}
			}
			if visible {
				if _, err := io.WriteString(s.screen, s.styleLocked(item)); err != nil {
					s.con.reportWriteErrorLocked(err)
				}
			}
		case <-time.After(s.con.interval):
			// Quiet for a whole interval: the block is over.
			if s.log != nil {
				s.log.WriteString("\n")
				if err := s.log.Flush(); err != nil {
					s.con.reportWriteErrorLocked(err)
				}
			}
			if visible {
				io.WriteString(s.screen, "\n")
			}
			return
		}
	}
}

// styleLocked renders one item for the screen. Body text gets the error
// prefix injected after every line break and the role colour around the
// whole fragment; priority is user over error over warn. Header items get
// the block-header style instead.
func (s *ErrSink) styleLocked(item errItem) string {
	pal := s.con.palette
	if item.header {
		if !pal.Enabled {
			return item.text
		}
		body := strings.TrimPrefix(item.text, "\n")
		body = strings.TrimSuffix(body, "\n")
		return "\n" + pal.ErrHeader + body + pal.Reset + "\n"
	}

	text := strings.ReplaceAll(item.text, "\n", "\n"+pal.ErrPrefix)
	if !pal.Enabled {
		return text
	}
	col := pal.Warn
	if s.errored {
		col = pal.Error
	}
	if s.user {
		col = pal.User
	}
	return pal.Reset + col + text + pal.Reset
}

// Flush forces buffered log bytes to disk. It does not force the pending
// block out; that stays with the batching scheduler.
func (s *ErrSink) Flush() {
	s.con.mu.Lock()
	defer s.con.mu.Unlock()
	if s.log == nil {
		return
	}
	if err := s.log.Flush(); err != nil {
		s.con.reportWriteErrorLocked(err)
	}
}

// closeLocked forces the pending block out and resets the terminal
// colours.
func (s *ErrSink) closeLocked() {
	s.flushLocked(true)
	if s.log != nil {
		s.log.Flush()
	}
	if s.con.palette.Enabled {
		io.WriteString(s.screen, s.con.palette.Reset)
	}
}
