package signaling

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/salvo/internal/transport"
)

// signal is one JSON message on the signaling WebSocket. A description is
// an offer or an answer; its SDP type tells which.
type signal struct {
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// peer drives one side of the offer/answer exchange for a Transport. The
// offerer describes first; the answerer describes in reply to the offer.
type peer struct {
	tr      *transport.Transport
	ws      *websocket.Conn
	offerer bool

	writeMu sync.Mutex

	// read loop only
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	failed chan error // first candidate send failure before the channel opened
}

func newPeer(tr *transport.Transport, ws *websocket.Conn, offerer bool) *peer {
	return &peer{
		tr:      tr,
		ws:      ws,
		offerer: offerer,
		failed:  make(chan error, 1),
	}
}

func (p *peer) write(sig signal) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ws.WriteJSON(sig)
}

func (p *peer) fail(err error) {
	select {
	case p.failed <- err:
	default:
	}
}

// describe creates the local offer or answer, applies it and sends it.
func (p *peer) describe() error {
	create, kind := p.tr.CreateAnswer, webrtc.SDPTypeAnswer
	if p.offerer {
		create, kind = p.tr.CreateOffer, webrtc.SDPTypeOffer
	}

	desc, err := create()
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", kind, err)
	}
	if err := p.tr.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to apply local %s: %w", kind, err)
	}
	if err := p.write(signal{Description: &desc}); err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	return nil
}

// trickle forwards local ICE candidates as they are gathered.
func (p *peer) trickle() {
	p.tr.OnICECandidate(p.sendCandidate)
}

// sendCandidate sends one local candidate. Once the DataChannel is open the
// WebSocket is expected to go away, so later failures are ignored.
func (p *peer) sendCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	if err := p.write(signal{Candidate: &init}); err != nil {
		select {
		case <-p.tr.Ready():
		default:
			p.fail(fmt.Errorf("failed to send ICE candidate %s: %w", c.Address, err))
		}
	}
}

// watch reads and applies signals until the WebSocket fails or is closed.
func (p *peer) watch() error {
	for {
		var sig signal
		if err := p.ws.ReadJSON(&sig); err != nil {
			return fmt.Errorf("failed to read signaling message: %w", err)
		}

		var err error
		switch {
		case sig.Description != nil:
			err = p.applyDescription(*sig.Description)
		case sig.Candidate != nil:
			err = p.applyCandidate(*sig.Candidate)
		}
		if err != nil {
			return err
		}
	}
}

// applyDescription sets the remote offer or answer, releases the candidates
// held back until now and, on the answering side, replies.
func (p *peer) applyDescription(desc webrtc.SessionDescription) error {
	want := webrtc.SDPTypeOffer
	if p.offerer {
		want = webrtc.SDPTypeAnswer
	}
	if desc.Type != want || p.remoteSet {
		return fmt.Errorf("unexpected %s from peer", desc.Type)
	}

	if err := p.tr.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to apply remote %s: %w", desc.Type, err)
	}
	p.remoteSet = true

	for _, c := range p.pending {
		if err := p.tr.AddICECandidate(c); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
	}
	p.pending = nil

	if !p.offerer {
		return p.describe()
	}
	return nil
}

func (p *peer) applyCandidate(c webrtc.ICECandidateInit) error {
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return nil
	}
	if err := p.tr.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}
