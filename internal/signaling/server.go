package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/util"
)

// DefaultPath is the HTTP path of the WebSocket endpoint.
const DefaultPath = "/ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// server is the host-side WebSocket endpoint. It hands out the first
// client that upgrades and turns every later one away.
type server struct {
	path     string
	listener net.Listener
	http     *http.Server
	connCh   chan *websocket.Conn

	mu    sync.Mutex
	taken bool // a client has been accepted; every later one is rejected
}

func newServer(path string) *server {
	if path == "" {
		path = DefaultPath
	}
	return &server{
		path:   path,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// start binds address and serves in the background. Bind failures wrap
// link.ErrBind.
func (s *server) start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %w", link.ErrBind, err)
	}
	s.listener = listener

	r := chi.NewRouter()
	r.Get(s.path, s.handleWS)

	s.http = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogDebug("signaling server stopped: %v", err)
		}
	}()

	util.LogDebug("WebSocket endpoint ws://%s%s", listener.Addr(), s.path)
	return nil
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	s.mu.Lock()
	if s.taken {
		s.mu.Unlock()
		reject(conn)
		return
	}
	s.taken = true
	s.connCh <- conn
	s.mu.Unlock()
}

func reject(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
	conn.Close()
}

// waitForClient blocks until a client connects or ctx is cancelled.
func (s *server) waitForClient(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, link.ErrInterrupted
	}
}

func (s *server) addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// close stops accepting clients. A client that was accepted but never
// collected by waitForClient is turned away; one already handed out stays
// open, since upgraded connections are hijacked from the HTTP server.
func (s *server) close() {
	if s.http != nil {
		s.http.Close()
	}

	s.mu.Lock()
	s.taken = true
	var stale *websocket.Conn
	select {
	case stale = <-s.connCh:
	default:
	}
	s.mu.Unlock()

	if stale != nil {
		reject(stale)
	}
}
