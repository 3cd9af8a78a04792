package signaling

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsURL builds the endpoint URL for a host:port address.
func wsURL(address, path string) string {
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + address + path
}

// connect dials the given WebSocket URL. timeout bounds the TCP connect and
// the HTTP upgrade of this single attempt.
func connect(ctx context.Context, url string, timeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext:   (&net.Dialer{Timeout: timeout}).DialContext,
		HandshakeTimeout: timeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return conn, nil
}
