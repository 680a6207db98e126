package console

import (
	"fmt"
	"runtime/debug"
)

// DumpStack routes the calling goroutine's stack through the error sink
// under msg, so the trace arrives as one delimited block instead of
// shredding whatever else is printing. An empty msg falls back to the
// Exception Details header.
func (c *Console) DumpStack(msg string) {
	defer c.restoreHeader(msg)()
	c.err.Write(debug.Stack())
}

// ReportError writes err through the error sink under msg. A nil err is
// ignored.
func (c *Console) ReportError(msg string, err error) {
	if err == nil {
		return
	}
	defer c.restoreHeader(msg)()
	fmt.Fprintf(c.err, "%v\n", err)
}

func (c *Console) restoreHeader(msg string) func() {
	if msg == "" {
		msg = "Exception Details"
	}
	return c.ErrHeader(msg)
}
