package follow

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed help.md
var helpMarkdown string

// Options configure the follow server.
type Options struct {
	// Addr is the host:port to listen on.
	Addr string
	// Prefix names the followed program on the status page.
	Prefix string
	// LogPath is shown on the status page; empty means logging is off.
	LogPath string
}

// Server exposes a hub's event stream over HTTP.
type Server struct {
	hub     *Hub
	tmpl    *template.Template
	opts    Options
	started time.Time
	httpSrv *http.Server
}

// NewServer builds the follow server around hub. Start must be called to
// begin serving.
func NewServer(hub *Hub, opts Options) (*Server, error) {
	tmpl, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		hub:     hub,
		tmpl:    tmpl,
		opts:    opts,
		started: time.Now(),
	}
	s.httpSrv = &http.Server{Addr: opts.Addr, Handler: s.Routes()}
	return s, nil
}

// Routes wires up the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.loggingMiddleware(mux)
}

// Start serves until Shutdown. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	slog.Info("follow server listening", "addr", s.opts.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("follow server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := s.tmpl.ExecuteTemplate(&buf, "index.html", map[string]any{
		"Prefix":    s.opts.Prefix,
		"LogPath":   s.opts.LogPath,
		"Followers": s.hub.ClientCount(),
		"Started":   s.started,
		"Help":      helpHTML(),
	})
	if err != nil {
		slog.Error("failed to render index", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := s.hub.Register()
	defer s.hub.Unregister(client.ID)
	defer close(client.Done)

	hello, err := FormatSSE(Event{
		Stream: StreamStatus,
		Text:   "following " + s.opts.Prefix + "\n",
		Time:   time.Now(),
	})
	if err == nil {
		_, _ = w.Write(hello)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-client.Events:
			data, err := FormatSSE(ev)
			if err != nil {
				slog.Error("failed to format event", "error", err)
				continue
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Error("failed to close WebSocket connection", "error", err)
		}
	}()

	client := s.hub.Register()
	defer s.hub.Unregister(client.ID)
	defer close(client.Done)

	// The reader's only job is noticing the peer hanging up.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-peerGone:
			return
		case ev := <-client.Events:
			if err := conn.WriteJSON(ev); err != nil {
				slog.Error("failed to write WebSocket message", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"followers": s.hub.ClientCount(),
	})
}

// WebSocket upgrader. The origin check pins connections to the serving
// host, which stops cross-site WebSocket hijacking.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		slog.Warn("rejected WebSocket connection from unauthorized origin", "origin", origin, "host", r.Host)
		return false
	},
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack supports the WebSocket upgrade through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

// Flush supports SSE streaming through the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
