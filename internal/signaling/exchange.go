package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/salvo/internal/transport"
	"github.com/1ureka/salvo/internal/util"
)

// readyGrace is how long a side whose WebSocket was closed by the peer
// still waits for its own DataChannel to open.
const readyGrace = 5 * time.Second

// exchange runs the SDP/ICE exchange over wsConn until the DataChannel of
// tr is open. The offerer sends the offer; the other side answers it.
func exchange(ctx context.Context, wsConn *websocket.Conn, tr *transport.Transport, offerer bool) error {
	p := newPeer(tr, wsConn, offerer)
	p.trickle()

	// Exits when wsConn is closed by the caller.
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.watch()
	}()

	if offerer {
		if err := p.describe(); err != nil {
			return err
		}
	}

	select {
	case <-tr.Ready():
		util.LogDebug("WebRTC DataChannel established")
		return nil

	case err := <-p.failed:
		return fmt.Errorf("signaling failed: %w", err)

	case err := <-errCh:
		// The peer closes its WebSocket as soon as its own channel opens.
		select {
		case <-tr.Ready():
			return nil
		case <-time.After(readyGrace):
			return fmt.Errorf("signaling failed: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}

	case <-tr.Done():
		return fmt.Errorf("signaling failed: peer connection %s", tr.ConnectionState())

	case <-ctx.Done():
		return ctx.Err()
	}
}
