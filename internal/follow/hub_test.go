package follow

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	a := hub.Register()
	b := hub.Register()
	defer close(a.Done)
	defer close(b.Done)

	hub.Broadcast(Event{Stream: StreamOut, Text: "hello\n", Time: time.Now()})

	require.Equal(t, "hello\n", (<-a.Events).Text)
	require.Equal(t, "hello\n", (<-b.Events).Text)
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	a := hub.Register()
	b := hub.Register()
	defer close(a.Done)
	defer close(b.Done)

	hub.Unregister(a.ID)
	require.Equal(t, 1, hub.ClientCount())

	hub.Broadcast(Event{Stream: StreamOut, Text: "after\n"})

	require.Len(t, a.Events, 0)
	require.Equal(t, "after\n", (<-b.Events).Text)
}

func TestHub_SlowClientDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()
	c := hub.Register()
	defer close(c.Done)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(c.Events)+50; i++ {
			hub.Broadcast(Event{Stream: StreamOut, Text: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	// The channel holds only what fit; the rest were dropped.
	require.Equal(t, cap(c.Events), len(c.Events))
}

func TestFormatSSE(t *testing.T) {
	ev := Event{Stream: StreamErr, Text: "boom\n", Time: time.Unix(0, 0).UTC()}

	data, err := FormatSSE(ev)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("event: err\ndata: ")))
	require.Contains(t, string(data), `"text":"boom\n"`)
	require.True(t, bytes.HasSuffix(data, []byte("\n\n")))
}

func TestTap_MirrorsWrites(t *testing.T) {
	hub := NewHub()
	c := hub.Register()
	defer close(c.Done)

	var next bytes.Buffer
	tap := NewTap(&next, hub, StreamOut)

	n, err := tap.Write([]byte("through\n"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	require.Equal(t, "through\n", next.String())
	ev := <-c.Events
	require.Equal(t, StreamOut, ev.Stream)
	require.Equal(t, "through\n", ev.Text)
}
