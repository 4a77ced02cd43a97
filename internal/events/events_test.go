package events

import "testing"

func TestBusDropsOldest(t *testing.T) {
	b := NewBus(2)
	b.Publish(Event{Kind: KindStreamError, Payload: 1})
	b.Publish(Event{Kind: KindStreamError, Payload: 2})
	b.Publish(Event{Kind: KindStreamError, Payload: 3})

	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
	first := <-b.Events()
	second := <-b.Events()
	if first.Payload != 2 || second.Payload != 3 {
		t.Fatalf("got %v, %v; want 2, 3", first.Payload, second.Payload)
	}
}

func TestBusClose(t *testing.T) {
	b := NewBus(0)
	b.Publish(Event{Kind: KindFrame})
	b.Close()
	b.Close()
	b.Publish(Event{Kind: KindFrame})

	var n int
	for range b.Events() {
		n++
	}
	if n != 1 {
		t.Fatalf("received %d events after close, want 1", n)
	}
}
