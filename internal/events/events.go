// Package events carries asynchronous notifications from the streaming and
// transfer loops to whatever presents them. Publishing never blocks: when the
// buffer is full the oldest pending event is discarded.
package events

import (
	"sync"
	"sync/atomic"
)

// Kind identifies a notification.
type Kind string

const (
	KindFrame            Kind = "frame"
	KindStreamError      Kind = "stream-error"
	KindStreamStopped    Kind = "stream-stopped"
	KindTransferProgress Kind = "transfer-progress"
	KindTransferComplete Kind = "transfer-complete"
	KindTransferFailed   Kind = "transfer-failed"
)

// Event is a single notification. Payload is kind-specific.
type Event struct {
	Kind    Kind
	Payload any
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// DefaultCapacity is the buffer size used when NewBus is given zero.
const DefaultCapacity = 64

// Bus is a bounded, drop-oldest event queue with a single consumer channel.
type Bus struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewBus creates a Bus holding up to capacity undelivered events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Publish enqueues e, evicting the oldest queued event if the buffer is full.
// Publishing to a closed bus is a no-op.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- e:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped.Add(1)
		default:
		}
	}
}

// Events returns the consumer channel. It is closed by Close.
func (b *Bus) Events() <-chan Event { return b.ch }

// Dropped returns how many events were evicted unread.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close stops accepting events and closes the consumer channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
