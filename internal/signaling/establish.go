// Package signaling establishes game streams over WebSocket, either carrying
// the stream itself or only the SDP/ICE exchange that sets up a WebRTC
// DataChannel. Every establisher yields a net.Conn for link.Connection.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/transport"
	"github.com/1ureka/salvo/internal/util"
)

// DefaultHandshakeTimeout bounds the WebRTC offer/answer exchange.
const DefaultHandshakeTimeout = 30 * time.Second

// Options configures both the listening and the dialing establishers.
type Options struct {
	Path string // WebSocket path, DefaultPath when empty

	// Dialing side, same semantics as link.Dialer.
	Timeout       time.Duration
	RetryRefused  bool
	RetryInterval time.Duration

	// WebRTC only.
	WebRTC           transport.Options
	HandshakeTimeout time.Duration // DefaultHandshakeTimeout when zero
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return link.DefaultConnectTimeout
	}
	return o.Timeout
}

func (o Options) retryInterval() time.Duration {
	if o.RetryInterval <= 0 {
		return link.DefaultRetryInterval
	}
	return o.RetryInterval
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return o.HandshakeTimeout
}

// ---------------------------------------------------------------------------
// Host side
// ---------------------------------------------------------------------------

// endpoint binds the WebSocket server once and hands out its single client.
type endpoint struct {
	opts Options

	mu  sync.Mutex
	srv *server
}

// Bind claims address. Failures wrap link.ErrBind.
func (e *endpoint) Bind(address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.srv != nil {
		return nil
	}
	srv := newServer(e.opts.Path)
	if err := srv.start(address); err != nil {
		return err
	}
	e.srv = srv
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (e *endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.srv == nil {
		return nil
	}
	return e.srv.addr()
}

// accept waits for the client and stops the server afterwards.
func (e *endpoint) accept(ctx context.Context, address string) (*websocket.Conn, error) {
	if err := e.Bind(address); err != nil {
		return nil, err
	}
	e.mu.Lock()
	srv := e.srv
	e.mu.Unlock()
	defer srv.close()

	ws, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, err
	}
	util.LogDebug("signaling client connected from %s", ws.RemoteAddr())
	return ws, nil
}

// WebSocketListener accepts one WebSocket client and uses the connection
// itself as the game stream.
type WebSocketListener struct {
	endpoint
}

func NewWebSocketListener(opts Options) *WebSocketListener {
	return &WebSocketListener{endpoint{opts: opts}}
}

func (l *WebSocketListener) Establish(ctx context.Context, address string) (net.Conn, error) {
	ws, err := l.accept(ctx, address)
	if err != nil {
		return nil, err
	}
	return transport.NewWebSocketConn(ws), nil
}

// WebRTCListener accepts one WebSocket client, offers a WebRTC session over
// it and uses the resulting DataChannel as the game stream.
type WebRTCListener struct {
	endpoint
}

func NewWebRTCListener(opts Options) *WebRTCListener {
	return &WebRTCListener{endpoint{opts: opts}}
}

func (l *WebRTCListener) Establish(ctx context.Context, address string) (net.Conn, error) {
	ws, err := l.accept(ctx, address)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	return negotiate(ctx, ws, l.opts, true)
}

// ---------------------------------------------------------------------------
// Client side
// ---------------------------------------------------------------------------

// WebSocketDialer connects to a WebSocketListener with the retry rules of
// link.Dialer.
type WebSocketDialer struct {
	opts Options
}

func NewWebSocketDialer(opts Options) *WebSocketDialer {
	return &WebSocketDialer{opts: opts}
}

func (d *WebSocketDialer) Establish(ctx context.Context, address string) (net.Conn, error) {
	ws, err := dialClient(ctx, address, d.opts)
	if err != nil {
		return nil, err
	}
	return transport.NewWebSocketConn(ws), nil
}

// WebRTCDialer connects to a WebRTCListener, answers its offer and uses the
// DataChannel as the game stream.
type WebRTCDialer struct {
	opts Options
}

func NewWebRTCDialer(opts Options) *WebRTCDialer {
	return &WebRTCDialer{opts: opts}
}

func (d *WebRTCDialer) Establish(ctx context.Context, address string) (net.Conn, error) {
	ws, err := dialClient(ctx, address, d.opts)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	return negotiate(ctx, ws, d.opts, false)
}

// ---------------------------------------------------------------------------
// Shared
// ---------------------------------------------------------------------------

// dialClient connects the signaling WebSocket, retrying like link.Dialer.
func dialClient(ctx context.Context, address string, opts Options) (*websocket.Conn, error) {
	url := wsURL(address, opts.Path)

	return link.Redial(ctx, func(ctx context.Context) (*websocket.Conn, error) {
		return connect(ctx, url, opts.timeout())
	}, opts.RetryRefused, opts.retryInterval())
}

// negotiate creates a Transport and runs the exchange over ws within the
// handshake timeout.
func negotiate(ctx context.Context, ws *websocket.Conn, opts Options, offerer bool) (net.Conn, error) {
	hctx, cancel := context.WithTimeout(ctx, opts.handshakeTimeout())
	defer cancel()

	tr, err := transport.NewTransport(context.Background(), opts.WebRTC)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	if err := exchange(hctx, ws, tr, offerer); err != nil {
		tr.Close()
		if ctx.Err() != nil {
			return nil, link.ErrInterrupted
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("WebRTC handshake timed out after %v", opts.handshakeTimeout())
		}
		return nil, err
	}
	return tr.Conn(), nil
}
