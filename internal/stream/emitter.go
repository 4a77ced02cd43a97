package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/airdesk/internal/clock"
)

// emitter hands complete frames to the sink no more often than once per
// interval. It holds a single pending frame: a newer frame replaces one that
// has not been emitted yet.
type emitter struct {
	interval time.Duration
	clock    clock.Clock
	sink     FrameSink

	mu      sync.Mutex
	cond    *sync.Cond
	pending *Frame
	closed  bool

	emitted    atomic.Uint64
	superseded atomic.Uint64
}

func newEmitter(interval time.Duration, c clock.Clock, sink FrameSink) *emitter {
	e := &emitter{interval: interval, clock: c, sink: sink}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// offer never blocks.
func (e *emitter) offer(f Frame) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.pending != nil {
		e.superseded.Add(1)
	}
	e.pending = &f
	e.cond.Signal()
	e.mu.Unlock()
}

func (e *emitter) run() {
	var last time.Time
	for {
		e.mu.Lock()
		for e.pending == nil && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		if !last.IsZero() {
			if wait := e.interval - e.clock.Now().Sub(last); wait > 0 {
				e.clock.Sleep(wait)
			}
		}

		e.mu.Lock()
		f := e.pending
		e.pending = nil
		closed := e.closed
		e.mu.Unlock()
		if closed || f == nil {
			continue
		}

		last = e.clock.Now()
		e.sink(*f)
		e.emitted.Add(1)
	}
}

func (e *emitter) close() {
	e.mu.Lock()
	e.closed = true
	e.pending = nil
	e.cond.Broadcast()
	e.mu.Unlock()
}
