package console

import (
	"io"
	"os"
	"sync"
)

var (
	installMu sync.RWMutex
	installed *Console
)

// Install makes c the process-wide default console. The package-level
// Stdout and Stderr writers route to its sinks until Uninstall, so code
// that prints through them picks up multiplexing without holding a
// Console reference.
func Install(c *Console) {
	installMu.Lock()
	installed = c
	installMu.Unlock()
}

// Uninstall detaches the default console; the routed writers fall back to
// the real process streams.
func Uninstall() {
	Install(nil)
}

// Default returns the installed console, or nil when none is installed.
func Default() *Console {
	installMu.RLock()
	defer installMu.RUnlock()
	return installed
}

// Stdout returns a writer that routes to the installed console's output
// sink, falling back to os.Stdout when none is installed. The writer is
// valid across Install and Uninstall calls; routing is resolved per
// write.
func Stdout() io.Writer { return routedWriter{} }

// Stderr is Stdout for the error stream: the installed console's error
// sink, or os.Stderr.
func Stderr() io.Writer { return routedWriter{errStream: true} }

type routedWriter struct {
	errStream bool
}

func (w routedWriter) Write(p []byte) (int, error) {
	if c := Default(); c != nil {
		if w.errStream {
			return c.err.Write(p)
		}
		return c.out.Write(p)
	}
	if w.errStream {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}
