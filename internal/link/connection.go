// Package link runs one peer-to-peer game session over a byte stream.
//
// A Connection obtains its stream from an Establisher (Dialer, Listener or
// any net.Conn source), then runs a send loop and a receive loop until the
// closure handshake completes or the stream fails. Collaborators never touch
// the stream: they push packets with Send, pull them with Receive and poll
// Closure.
//
// Closure handshake: the side that closes first writes CLOSE(CloseRequest)
// after flushing its outbound queue. The other side answers with exactly one
// CLOSE(CloseAck) and both settle ClosureControlled. When both sides request
// at the same time, each receives the other's request after having sent its
// own, so neither answers and both settle ClosureControlled. A CLOSE packet
// is always the last packet a side writes.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/1ureka/salvo/internal/protocol"
	"github.com/1ureka/salvo/internal/util"
)

// readBufferSize is the chunk size of a single socket read.
const readBufferSize = 2048

// Closure is the outcome of a session.
type Closure int32

const (
	ClosurePending    Closure = iota // session not finished
	ClosureControlled                // both sides exchanged CLOSE
	ClosureAbrupt                    // stream failed or could not be established
)

func (c Closure) String() string {
	switch c {
	case ClosurePending:
		return "pending"
	case ClosureControlled:
		return "controlled"
	case ClosureAbrupt:
		return "abrupt"
	}
	return fmt.Sprintf("Closure(%d)", int32(c))
}

// State is the lifecycle position of a Connection.
type State int32

const (
	StateIdle State = iota
	StateEstablishing
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEstablishing:
		return "establishing"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Connection is a single game session with one peer. It is not reusable:
// after Done is closed a new Connection is needed.
type Connection struct {
	est Establisher
	log util.Logger

	inbound  *Queue
	outbound *Queue

	// interrupt signal: cancelled by Close, by a received CLOSE and on failure
	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	state   atomic.Int32

	mu          sync.Mutex
	closure     Closure
	err         error
	closeSent   bool // our CLOSE is (being) written
	peerClosing bool // a CLOSE from the peer was received
	peerFirst   bool // the peer's CLOSE arrived before we sent ours

	stopParent func() bool
	ready      chan struct{}
	done       chan struct{}
}

// New creates an idle Connection that will obtain its stream from est.
func New(est Establisher) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		est:        est,
		inbound:    NewQueue(),
		outbound:   NewQueue(),
		ctx:        ctx,
		cancel:     cancel,
		stopParent: func() bool { return false },
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches establishment towards address and returns immediately.
// If the establisher is a Binder, the bind happens before Start returns and
// its error is returned (and recorded as ClosureAbrupt). Cancelling ctx has
// the same effect as Close.
func (c *Connection) Start(ctx context.Context, address string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	c.state.Store(int32(StateEstablishing))

	if b, ok := c.est.(Binder); ok {
		if err := b.Bind(address); err != nil {
			c.settle(ClosureAbrupt, err)
			c.finish(nil)
			return err
		}
	}

	c.stopParent = context.AfterFunc(ctx, func() { c.Close() })
	go c.run(address)
	return nil
}

// Send queues pkt for transmission. It never blocks. After Close, or once
// the peer started closing, it returns ErrClosed. Packets the peer could not
// decode are refused with protocol.ErrTooLarge or protocol.ErrUnknownType.
func (c *Connection) Send(pkt *protocol.Packet) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if pkt.Type() == protocol.TypeClose {
		return errors.New("link: CLOSE is reserved for the closure handshake")
	}
	if err := pkt.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	c.outbound.Push(pkt)
	return nil
}

// Receive pops the oldest received packet whose type is one of types, or
// the oldest packet at all when no type is given. It returns nil when
// nothing matches and never blocks. Non-matching packets keep their order.
func (c *Connection) Receive(types ...protocol.Type) *protocol.Packet {
	var (
		pkt *protocol.Packet
		ok  bool
	)
	if len(types) == 0 {
		pkt, ok = c.inbound.Pop()
	} else {
		pkt, ok = c.inbound.PopMatch(types...)
	}
	if !ok {
		return nil
	}
	return pkt
}

// Next blocks until a packet of one of types is received, the session ends
// (ErrClosed) or ctx is done. Packets received before closure are still
// returned after it.
func (c *Connection) Next(ctx context.Context, types ...protocol.Type) (*protocol.Packet, error) {
	for {
		if pkt := c.Receive(types...); pkt != nil {
			return pkt, nil
		}
		select {
		case <-c.inbound.Notify():
		case <-c.done:
			if pkt := c.Receive(types...); pkt != nil {
				return pkt, nil
			}
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Arrived signals after new packets were received. Notifications collapse,
// so a receiver should drain with Receive until it returns nil.
func (c *Connection) Arrived() <-chan struct{} {
	return c.inbound.Notify()
}

// Close requests a controlled closure. It is idempotent and does not wait;
// watch Closure, Done or Wait for the outcome. Closing before a peer was
// reached abandons establishment.
func (c *Connection) Close() error {
	c.cancel()
	return nil
}

// Closure returns the session outcome without blocking.
func (c *Connection) Closure() Closure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closure
}

// Err returns the error behind an abrupt closure, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// PeerInitiated reports whether the peer's CLOSE arrived before ours was
// sent, i.e. the opponent left.
func (c *Connection) PeerInitiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerFirst
}

// Connected reports whether both loops are running and no closure started.
func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Ready is closed once the stream is established.
func (c *Connection) Ready() <-chan struct{} { return c.ready }

// Done is closed once the session is over and the stream released.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Wait blocks until the session is over or ctx is done.
func (c *Connection) Wait(ctx context.Context) (Closure, error) {
	select {
	case <-c.done:
		return c.Closure(), nil
	case <-ctx.Done():
		return c.Closure(), ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Session goroutines
// ---------------------------------------------------------------------------

// run establishes the stream, then supervises the two loops.
func (c *Connection) run(address string) {
	conn, err := c.est.Establish(c.ctx, address)
	if err != nil {
		if c.ctx.Err() != nil || errors.Is(err, ErrInterrupted) {
			util.LogDebug("establishment towards %s cancelled", address)
			c.settle(ClosureControlled, nil)
		} else {
			util.LogWarning("establishment towards %s failed: %v", address, err)
			c.settle(ClosureAbrupt, err)
		}
		c.finish(nil)
		return
	}

	c.log = util.Tagged(util.ConnTag(conn))
	c.log.Info("connected %s <-> %s", conn.LocalAddr(), conn.RemoteAddr())
	util.Stats.AddConn()

	c.state.CompareAndSwap(int32(StateEstablishing), int32(StateConnected))
	close(c.ready)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.sendLoop(conn)
	}()
	go func() {
		defer wg.Done()
		c.recvLoop(conn)
	}()
	wg.Wait()

	c.finish(conn)
}

// sendLoop writes outbound packets until the interrupt signal fires, then
// runs the local half of the closure handshake.
func (c *Connection) sendLoop(conn net.Conn) {
	for {
		select {
		case <-c.outbound.Notify():
			if err := c.flush(conn); err != nil {
				c.fail(conn, err)
				return
			}
		case <-c.ctx.Done():
			c.shutdown(conn)
			return
		}
	}
}

// shutdown flushes the outbound queue and writes our single CLOSE packet:
// an ack when the peer's request was already seen, a request otherwise.
func (c *Connection) shutdown(conn net.Conn) {
	if c.Closure() != ClosurePending {
		return
	}
	c.state.Store(int32(StateClosing))

	if err := c.flush(conn); err != nil {
		c.fail(conn, err)
		return
	}

	c.mu.Lock()
	flag := protocol.CloseRequest
	if c.peerClosing {
		flag = protocol.CloseAck
	}
	c.closeSent = true
	c.mu.Unlock()

	if err := c.write(conn, protocol.NewClose(flag)); err != nil {
		c.fail(conn, err)
		return
	}

	if flag == protocol.CloseAck {
		c.log.Info("answered the peer's close request")
		c.settle(ClosureControlled, nil)
	} else {
		c.log.Info("close requested, waiting for the peer")
	}
}

// recvLoop decodes the stream into inbound until a CLOSE packet arrives or
// the stream fails. A blocked Read returns once the socket is closed.
func (c *Connection) recvLoop(conn net.Conn) {
	dec := protocol.NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			util.Stats.AddRecvBytes(n)

			packets, derr := dec.Feed(buf[:n])
			if derr != nil {
				c.log.Warn("discarding malformed data: %v", derr)
				util.Stats.AddDecodeError()
			}
			for _, pkt := range packets {
				if pkt.Type() == protocol.TypeClose {
					c.peerClose(pkt)
					return
				}
				util.Stats.AddRecv(pkt.Type().String())
				c.log.Debug("received %v", pkt)
				c.inbound.Push(pkt)
			}
		}
		if err != nil {
			c.fail(conn, fmt.Errorf("read: %w", err))
			return
		}
	}
}

// peerClose handles a received CLOSE packet.
func (c *Connection) peerClose(pkt *protocol.Packet) {
	c.mu.Lock()
	c.peerClosing = true
	sent := c.closeSent
	if !sent {
		c.peerFirst = true
	}
	c.mu.Unlock()

	c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing))
	c.cancel()

	switch {
	case pkt.CloseFlag() == protocol.CloseAck:
		c.log.Info("peer acknowledged the close")
		c.settle(ClosureControlled, nil)
	case sent:
		c.log.Info("close requests crossed")
		c.settle(ClosureControlled, nil)
	default:
		c.log.Info("peer requested close")
		// sendLoop observes the interrupt and answers with CloseAck.
	}
}

// flush writes every queued outbound packet.
func (c *Connection) flush(conn net.Conn) error {
	for {
		pkt, ok := c.outbound.Pop()
		if !ok {
			return nil
		}
		if err := c.write(conn, pkt); err != nil {
			return err
		}
	}
}

func (c *Connection) write(conn net.Conn, pkt *protocol.Packet) error {
	data := protocol.Encode(pkt)
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write %v: %w", pkt.Type(), err)
	}
	util.Stats.AddSent(pkt.Type().String(), len(data))
	c.log.Debug("sent %v", pkt)
	return nil
}

// fail runs the uncontrolled closure: settle abrupt, stop the other loop
// and release the stream so a blocked Read returns.
func (c *Connection) fail(conn net.Conn, err error) {
	if c.settle(ClosureAbrupt, err) {
		c.log.Error("connection lost: %v", err)
	}
	c.cancel()
	conn.Close()
}

// settle records the first closure result. It reports whether this call
// decided the outcome.
func (c *Connection) settle(kind Closure, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closure != ClosurePending {
		return false
	}
	c.closure = kind
	c.err = err
	c.state.Store(int32(StateClosing))
	util.Stats.AddClosure(kind.String())
	return true
}

// finish releases the stream and marks the session over.
func (c *Connection) finish(conn net.Conn) {
	if conn != nil {
		conn.Close()
	}
	c.settle(ClosureAbrupt, errors.New("link: session ended without closure"))
	c.cancel()
	c.stopParent()
	c.state.Store(int32(StateClosed))
	c.log.Debug("session closed: %v", c.Closure())
	close(c.done)
}
