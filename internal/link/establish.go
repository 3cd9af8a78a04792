package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/1ureka/salvo/internal/util"
)

// Tuning constants.
const (
	DefaultConnectTimeout = time.Second     // per-attempt dial timeout
	DefaultRetryInterval  = 1 * time.Second // pause between refused attempts with RetryRefused
)

// Establisher obtains the byte stream a Connection runs on. Establish blocks
// until a peer is reached, ctx is cancelled (ErrInterrupted) or a terminal
// error occurs.
type Establisher interface {
	Establish(ctx context.Context, address string) (net.Conn, error)
}

// Binder is implemented by establishers that claim a local address before
// waiting for a peer. Connection.Start calls Bind synchronously so that a
// bind failure reaches the caller instead of the closure result only.
type Binder interface {
	Bind(address string) error
}

// EstablishFunc adapts a plain function to the Establisher interface.
type EstablishFunc func(ctx context.Context, address string) (net.Conn, error)

func (f EstablishFunc) Establish(ctx context.Context, address string) (net.Conn, error) {
	return f(ctx, address)
}

// ---------------------------------------------------------------------------
// Dialer
// ---------------------------------------------------------------------------

// Dialer is the client-role establisher. It dials TCP until the peer
// accepts, retrying after every timeout. A refused attempt is final unless
// RetryRefused is set.
type Dialer struct {
	Timeout       time.Duration // per attempt; DefaultConnectTimeout when zero
	RetryRefused  bool
	RetryInterval time.Duration // DefaultRetryInterval when zero
}

func (d *Dialer) Establish(ctx context.Context, address string) (net.Conn, error) {
	nd := net.Dialer{Timeout: orDefault(d.Timeout, DefaultConnectTimeout)}
	return Redial(ctx, func(ctx context.Context) (net.Conn, error) {
		return nd.DialContext(ctx, "tcp", address)
	}, d.RetryRefused, orDefault(d.RetryInterval, DefaultRetryInterval))
}

// Redial runs attempt until it yields a result. Timeouts are retried at
// once; refusals end with ErrConnectRefused, or are retried every interval
// when retryRefused is set. Cancelling ctx ends with ErrInterrupted. Any
// other error is returned as is.
func Redial[T any](ctx context.Context, attempt func(context.Context) (T, error), retryRefused bool, interval time.Duration) (T, error) {
	var zero T
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return zero, ErrInterrupted
		}

		conn, err := attempt(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return zero, ErrInterrupted
		}

		switch {
		case IsTimeout(err):
			util.LogDebug("connect attempt %d timed out, retrying", n)

		case IsRefused(err):
			if !retryRefused {
				if errors.Is(err, ErrConnectRefused) {
					return zero, err
				}
				return zero, fmt.Errorf("%w: %w", ErrConnectRefused, err)
			}
			util.LogDebug("connect attempt %d refused, retrying in %v", n, interval)
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return zero, ErrInterrupted
			}

		default:
			return zero, err
		}
	}
}

// ---------------------------------------------------------------------------
// Listener
// ---------------------------------------------------------------------------

// Listener is the server-role establisher. It binds a TCP address and
// accepts exactly one peer; the listening socket is released afterwards.
type Listener struct {
	mu sync.Mutex
	ln net.Listener
}

// Bind claims address. Failures wrap ErrBind and are never retried.
func (l *Listener) Bind(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	l.ln = ln
	util.LogDebug("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) Establish(ctx context.Context, address string) (net.Conn, error) {
	if err := l.Bind(address); err != nil {
		return nil, err
	}

	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	defer ln.Close()

	// Accept has no context; closing the listener is what interrupts it.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrInterrupted
		}
		return nil, fmt.Errorf("accept on %s: %w", ln.Addr(), err)
	}
	return conn, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
