package link

import (
	"slices"
	"sync"

	"github.com/1ureka/salvo/internal/protocol"
)

// Queue is an unbounded, mutex-protected FIFO of packets. One side pushes,
// the other pops; Notify wakes the popping side without polling.
type Queue struct {
	mu     sync.Mutex
	items  []*protocol.Packet
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends pkt and signals Notify. It never blocks.
func (q *Queue) Push(pkt *protocol.Packet) {
	q.mu.Lock()
	q.items = append(q.items, pkt)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest packet.
func (q *Queue) Pop() (*protocol.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	pkt := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return pkt, true
}

// PopMatch removes and returns the oldest packet whose type is one of types.
// Packets of other types keep their position. The scan and the removal
// happen under one lock, so concurrent consumers cannot reorder the queue.
func (q *Queue) PopMatch(types ...protocol.Type) (*protocol.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, pkt := range q.items {
		if slices.Contains(types, pkt.Type()) {
			q.items = slices.Delete(q.items, i, i+1)
			return pkt, true
		}
	}
	return nil, false
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify returns a channel that receives a value after Push. Several pushes
// may collapse into one notification, so the receiver must drain the queue.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
