// Package transport adapts message-oriented channels (WebSocket, WebRTC
// DataChannel) to the byte-stream net.Conn a link.Connection runs on.
package transport

import (
	"bytes"
	"net"
	"os"
	"sync"
	"time"
)

// Stream is a net.Conn over a message transport. Incoming messages are
// handed over with Deliver and read back as one continuous byte stream;
// every Write becomes one outgoing message.
type Stream struct {
	send    func([]byte) error
	closeFn func() error

	local  net.Addr
	remote net.Addr

	mu           sync.Mutex
	buf          bytes.Buffer
	err          error // reported by Read once buf is drained
	closed       bool
	readDeadline time.Time

	wake      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStream creates a Stream. send writes one message to the peer; closeFn
// releases the underlying transport and is called once by Close.
func NewStream(local, remote net.Addr, send func([]byte) error, closeFn func() error) *Stream {
	return &Stream{
		send:    send,
		closeFn: closeFn,
		local:   local,
		remote:  remote,
		wake:    make(chan struct{}, 1),
	}
}

// Deliver appends an incoming message to the read buffer.
func (s *Stream) Deliver(data []byte) {
	s.mu.Lock()
	if s.err == nil {
		s.buf.Write(data)
	}
	s.mu.Unlock()
	s.signal()
}

// Fail ends the stream: Read returns err once the buffered data is
// consumed. Only the first error is kept.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream) Read(b []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, net.ErrClosed
		}
		if s.buf.Len() > 0 {
			n, _ := s.buf.Read(b)
			s.mu.Unlock()
			return n, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		deadline := s.readDeadline
		s.mu.Unlock()

		if deadline.IsZero() {
			<-s.wake
			continue
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			// loop once more: the deadline may have been moved
		}
	}
}

func (s *Stream) Write(b []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}

	if err := s.send(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close releases the transport. Pending and future Reads return
// net.ErrClosed.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.signal()
		s.closeErr = s.closeFn()
	})
	return s.closeErr
}

func (s *Stream) LocalAddr() net.Addr  { return s.local }
func (s *Stream) RemoteAddr() net.Addr { return s.remote }

func (s *Stream) SetDeadline(t time.Time) error {
	return s.SetReadDeadline(t)
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDeadline = t
	s.mu.Unlock()
	s.signal()
	return nil
}

// SetWriteDeadline is a no-op: writes are bounded by the transport itself.
func (s *Stream) SetWriteDeadline(time.Time) error { return nil }

// Addr is a net.Addr for transports without a socket address of their own.
type Addr struct {
	Net  string
	Name string
}

func (a Addr) Network() string { return a.Net }
func (a Addr) String() string  { return a.Name }
