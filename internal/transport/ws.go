package transport

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeFrameTimeout = time.Second

// NewWebSocketConn turns ws into a byte stream. Every Write is sent as one
// binary message; incoming binary messages are concatenated. A normal close
// frame from the peer reads as io.EOF.
func NewWebSocketConn(ws *websocket.Conn) *Stream {
	var writeMu sync.Mutex

	send := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.BinaryMessage, data)
	}

	closeFn := func() error {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
		return ws.Close()
	}

	s := NewStream(ws.LocalAddr(), ws.RemoteAddr(), send, closeFn)

	go func() {
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = io.EOF
				}
				s.Fail(err)
				return
			}
			if typ == websocket.BinaryMessage {
				s.Deliver(data)
			}
		}
	}()

	return s
}
