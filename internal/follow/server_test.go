package follow

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	srv, err := NewServer(hub, Options{Prefix: "testprog", LogPath: "/tmp/test.log"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func waitForFollower(t *testing.T, hub *Hub) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if hub.ClientCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no follower connected")
}

func TestServer_IndexPage(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	page := string(body)
	require.Contains(t, page, "testprog")
	require.Contains(t, page, "/tmp/test.log")
	// The help markdown came through rendered, not raw.
	require.Contains(t, page, "<h2")
	require.Contains(t, page, "Endpoints")
	require.NotContains(t, page, "## Endpoints")
}

func TestServer_UnknownPathIs404(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		Status    string `json:"status"`
		Followers int    `json:"followers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, 0, payload.Followers)
}

func TestServer_EventsStream(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	waitForFollower(t, srv.hub)

	srv.hub.Broadcast(Event{Stream: StreamOut, Text: "streamed line\n", Time: time.Now()})

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(5 * time.Second)
	var sawHello, sawEvent bool
	for time.Now().Before(deadline) && !(sawHello && sawEvent) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, "following testprog") {
			sawHello = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "streamed line") {
			sawEvent = true
		}
	}
	require.True(t, sawHello)
	require.True(t, sawEvent)
}

func TestServer_WebSocketFeed(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	waitForFollower(t, srv.hub)
	srv.hub.Broadcast(Event{Stream: StreamErr, Text: "over the wire\n", Time: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, StreamErr, ev.Stream)
	require.Equal(t, "over the wire\n", ev.Text)
}

func TestServer_WebSocketDisconnectUnregisters(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}

	waitForFollower(t, srv.hub)
	require.NoError(t, conn.Close())

	for i := 0; i < 100; i++ {
		if srv.hub.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("follower still registered after disconnect")
}
