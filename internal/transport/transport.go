package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/1ureka/salvo/internal/util"
	"github.com/pion/webrtc/v4"
)

// closeGrace bounds how long Close waits for the DataChannel to finish its
// closing handshake before the PeerConnection is torn down.
const closeGrace = 2 * time.Second

// Transport wraps a single PeerConnection + DataChannel pair, providing the
// signaling hooks and a byte stream (Conn) over the DataChannel.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. A failed or closed PeerConnection ends the stream.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	stream     *Stream
	openSignal chan struct{}
	dcClosed   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. The caller performs signaling through the
// exposed methods (CreateOffer / CreateAnswer / …) and then uses Conn.
func NewTransport(ctx context.Context, opts Options) (*Transport, error) {
	pc, err := newPeerConnection(opts)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		dcClosed:   make(chan struct{}),
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}
	t.sender = newSender(tCtx, dc, t.openSignal)
	t.stream = NewStream(
		Addr{Net: "webrtc", Name: "local"},
		Addr{Net: "webrtc", Name: "remote"},
		t.sender.send,
		t.Close,
	)

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.stream.Deliver(msg.Data)
	})

	// DC close → end of stream.
	var closedOnce sync.Once
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		closedOnce.Do(func() { close(t.dcClosed) })
		t.stream.Fail(io.EOF)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()

		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			t.stream.Fail(errors.New("transport: peer connection " + state.String()))
			tCancel()
		}
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (PeerConnection failed, Close called or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Conn returns the byte stream carried by the DataChannel. Closing it
// closes the Transport.
func (t *Transport) Conn() *Stream {
	return t.stream
}

// Close shuts down the DataChannel and PeerConnection. An open DataChannel
// is given closeGrace to deliver what it has buffered.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		dcErr := t.dc.Close()

		select {
		case <-t.openSignal:
			select {
			case <-t.dcClosed:
			case <-time.After(closeGrace):
			}
		default:
		}

		t.cancel()
		t.closeErr = errors.Join(dcErr, t.pc.Close())
	})
	return t.closeErr
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}
