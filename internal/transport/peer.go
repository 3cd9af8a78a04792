package transport

import (
	"github.com/pion/webrtc/v4"
)

// Options configures the WebRTC peer.
type Options struct {
	// ICEServers lists STUN/TURN URLs. Empty means host candidates only,
	// which is enough on a LAN or loopback.
	ICEServers []string

	// IncludeLoopback gathers 127.0.0.1 candidates, so two peers on one
	// machine can connect without a network interface.
	IncludeLoopback bool
}

// newPeerConnection creates a PeerConnection configured from opts.
func newPeerConnection(opts Options) (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(opts.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on the given
// PeerConnection. Negotiated mode (ID 0) lets both sides create the channel
// independently without relying on OnDataChannel. The game stream needs
// in-order delivery, so the channel is ordered and reliable.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("salvo", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
