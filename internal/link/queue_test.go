package link

import (
	"sync"
	"testing"

	"github.com/1ureka/salvo/internal/protocol"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for i := int32(0); i < 5; i++ {
		q.Push(protocol.New(protocol.TypeReady, i))
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
	for i := int32(0); i < 5; i++ {
		pkt, ok := q.Pop()
		if !ok || pkt.Field(0) != i {
			t.Fatalf("Pop #%d = %v, %v", i, pkt, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue succeeded")
	}
}

func TestQueuePopMatchKeepsOrder(t *testing.T) {
	q := NewQueue()
	q.Push(protocol.NewStrike(protocol.Point{X: 1, Y: 1}))
	q.Push(protocol.NewReady(7))
	q.Push(protocol.NewStrike(protocol.Point{X: 2, Y: 2}))
	q.Push(protocol.NewYourTurn())

	pkt, ok := q.PopMatch(protocol.TypeReady, protocol.TypeYourTurn)
	if !ok || pkt.Type() != protocol.TypeReady {
		t.Fatalf("PopMatch = %v, %v; want READY", pkt, ok)
	}
	if _, ok := q.PopMatch(protocol.TypeGameOver); ok {
		t.Fatal("PopMatch(GAME_OVER) matched")
	}

	want := []protocol.Type{protocol.TypeStrike, protocol.TypeStrike, protocol.TypeYourTurn}
	for i, typ := range want {
		pkt, ok := q.Pop()
		if !ok || pkt.Type() != typ {
			t.Fatalf("Pop #%d = %v, want %v", i, pkt, typ)
		}
	}
}

func TestQueueNotifyCollapses(t *testing.T) {
	q := NewQueue()
	q.Push(protocol.NewYourTurn())
	q.Push(protocol.NewYourTurn())

	select {
	case <-q.Notify():
	default:
		t.Fatal("no notification after Push")
	}
	select {
	case <-q.Notify():
		t.Fatal("second notification pending")
	default:
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
}

func TestQueueConcurrent(t *testing.T) {
	const n = 1000
	q := NewQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(0); i < n; i++ {
			q.Push(protocol.New(protocol.TypeStrike, i, i))
		}
	}()

	next := int32(0)
	for next < n {
		pkt, ok := q.Pop()
		if !ok {
			<-q.Notify()
			continue
		}
		if pkt.Field(0) != next {
			t.Fatalf("got field %d, want %d", pkt.Field(0), next)
		}
		next++
	}
	wg.Wait()
}
