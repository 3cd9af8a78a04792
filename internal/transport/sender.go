package transport

import (
	"context"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// sender serializes all writes to a single DataChannel, adding open-gate
// and backpressure control.
type sender struct {
	ctx         context.Context
	dc          *webrtc.DataChannel
	openSignal  <-chan struct{}
	drainSignal chan struct{}

	mu sync.Mutex
}

// newSender creates a sender and wires the backpressure callbacks on dc.
// Writes fail with net.ErrClosed once ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		ctx:         ctx,
		dc:          dc,
		openSignal:  openSignal,
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	return s
}

// send waits for the DataChannel to open, then for the buffer to drain
// below the high-water mark, and sends data as one message.
func (s *sender) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.openSignal:
	case <-s.ctx.Done():
		return net.ErrClosed
	}

	for s.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-s.drainSignal:
		case <-s.ctx.Done():
			return net.ErrClosed
		}
	}

	return s.dc.Send(data)
}
