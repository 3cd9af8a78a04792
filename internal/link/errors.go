package link

import (
	"context"
	"errors"
	"net"
	"syscall"
)

var (
	// ErrConnectRefused reports that the remote peer actively rejected a
	// connection attempt. It is final; there is no listener to wait for.
	ErrConnectRefused = errors.New("link: connection refused")

	// ErrBind reports that the listening address could not be bound.
	ErrBind = errors.New("link: bind failed")

	// ErrInterrupted reports that establishment was cancelled before a
	// peer was reached.
	ErrInterrupted = errors.New("link: establishment interrupted")

	// ErrClosed is returned when a packet is sent after closure was
	// requested or reached.
	ErrClosed = errors.New("link: connection closed")

	// ErrStarted is returned when Start is called more than once.
	ErrStarted = errors.New("link: connection already started")
)

// IsTimeout reports whether err is a network or context timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRefused reports whether err stems from an actively refused connection.
func IsRefused(err error) bool {
	return errors.Is(err, ErrConnectRefused) || errors.Is(err, syscall.ECONNREFUSED)
}
