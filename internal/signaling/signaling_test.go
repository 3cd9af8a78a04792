package signaling

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/protocol"
	"github.com/1ureka/salvo/internal/transport"
)

const testTimeout = 15 * time.Second

// Compile-time interface checks.
var (
	_ link.Establisher = (*WebSocketListener)(nil)
	_ link.Binder      = (*WebSocketListener)(nil)
	_ link.Establisher = (*WebSocketDialer)(nil)
	_ link.Establisher = (*WebRTCListener)(nil)
	_ link.Binder      = (*WebRTCListener)(nil)
	_ link.Establisher = (*WebRTCDialer)(nil)
)

type boundEstablisher interface {
	link.Establisher
	Addr() net.Addr
}

// playSession runs a short exchange and a controlled close between a host
// and a client Connection built from the given establishers.
func playSession(t *testing.T, hostEst boundEstablisher, clientEst link.Establisher) {
	t.Helper()

	host := link.New(hostEst)
	if err := host.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("host Start: %v", err)
	}
	defer host.Close()

	client := link.New(clientEst)
	if err := client.Start(context.Background(), hostEst.Addr().String()); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client.Send(protocol.NewReady(1))
	client.Send(protocol.NewStrike(protocol.Point{X: 3, Y: 7}))

	pkt, err := host.Next(ctx, protocol.TypeStrike)
	if err != nil {
		t.Fatalf("host Next(STRIKE): %v", err)
	}
	if pts := pkt.Points(); len(pts) != 1 || pts[0] != (protocol.Point{X: 3, Y: 7}) {
		t.Fatalf("strike = %v", pkt)
	}
	if pkt := host.Receive(protocol.TypeReady); pkt == nil || pkt.Field(0) != 1 {
		t.Fatalf("READY = %v", pkt)
	}

	host.Send(protocol.NewStrikeResult(true, protocol.Point{X: 3, Y: 7}))
	pkt, err = client.Next(ctx, protocol.TypeStrikeResult)
	if err != nil {
		t.Fatalf("client Next(STRIKE_RESULT): %v", err)
	}
	if !pkt.Hit() {
		t.Fatalf("result = %v, want a hit", pkt)
	}

	host.Close()
	for name, c := range map[string]*link.Connection{"host": host, "client": client} {
		closure, err := c.Wait(ctx)
		if err != nil {
			t.Fatalf("%s Wait: %v", name, err)
		}
		if closure != link.ClosureControlled {
			t.Fatalf("%s closure = %v (%v), want controlled", name, closure, c.Err())
		}
	}
	if !client.PeerInitiated() {
		t.Error("client should see the host as initiator")
	}
}

func TestWebSocketSession(t *testing.T) {
	opts := Options{Timeout: time.Second}
	playSession(t, NewWebSocketListener(opts), NewWebSocketDialer(opts))
}

func TestWebRTCSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC handshake in short mode")
	}
	opts := Options{
		Timeout:          time.Second,
		WebRTC:           transport.Options{IncludeLoopback: true},
		HandshakeTimeout: testTimeout,
	}
	playSession(t, NewWebRTCListener(opts), NewWebRTCDialer(opts))
}

func TestWebSocketBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	c := link.New(NewWebSocketListener(Options{}))
	if err := c.Start(context.Background(), busy.Addr().String()); !errors.Is(err, link.ErrBind) {
		t.Fatalf("Start = %v, want ErrBind", err)
	}
}

func TestWebSocketDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewWebSocketDialer(Options{}).Establish(context.Background(), addr)
	if !errors.Is(err, link.ErrConnectRefused) {
		t.Fatalf("Establish = %v, want ErrConnectRefused", err)
	}
}

func TestListenerInterrupted(t *testing.T) {
	l := NewWebSocketListener(Options{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Establish(ctx, "127.0.0.1:0")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, link.ErrInterrupted) {
			t.Fatalf("Establish = %v, want ErrInterrupted", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Establish ignored cancellation")
	}
}

func TestSecondClientRejected(t *testing.T) {
	l := NewWebSocketListener(Options{})
	if err := l.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer l.srv.close()

	url := wsURL(l.Addr().String(), "")
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	first, err := connect(ctx, url, time.Second)
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	defer first.Close()

	second, err := connect(ctx, url, time.Second)
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(testTimeout))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("second client was not turned away")
	}
}

func TestWSURL(t *testing.T) {
	if got := wsURL("10.0.0.1:7777", ""); got != "ws://10.0.0.1:7777/ws" {
		t.Errorf("wsURL = %q", got)
	}
	if got := wsURL("host:1", "/game"); got != "ws://host:1/game" {
		t.Errorf("wsURL = %q", got)
	}
}

func TestUncollectedClientClosed(t *testing.T) {
	l := NewWebSocketListener(Options{})
	if err := l.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client, err := connect(ctx, wsURL(l.Addr().String(), ""), time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// Wait until the endpoint holds the client, then shut it down without
	// collecting it.
	deadline := time.Now().Add(testTimeout)
	for len(l.srv.connCh) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was never accepted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	l.srv.close()

	if len(l.srv.connCh) != 0 {
		t.Fatal("accepted client left behind after close")
	}
	client.SetReadDeadline(time.Now().Add(testTimeout))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("uncollected client was left open")
	}
}
