package follow

import (
	"io"
	"time"
)

// Tap copies writes to the hub on their way to the next writer, so
// followers see output without touching the console path. Write errors
// come only from the next writer; broadcasting never fails.
type Tap struct {
	next   io.Writer
	hub    *Hub
	stream string
}

// NewTap wraps next so every write is also broadcast on hub under the
// given stream name.
func NewTap(next io.Writer, hub *Hub, stream string) *Tap {
	return &Tap{next: next, hub: hub, stream: stream}
}

func (t *Tap) Write(p []byte) (int, error) {
	t.hub.Broadcast(Event{Stream: t.stream, Text: string(p), Time: time.Now()})
	return t.next.Write(p)
}
