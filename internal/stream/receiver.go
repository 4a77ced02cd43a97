package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/clock"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/fragment"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/transport"
	"github.com/junsooki/airdesk/internal/wire"
)

// ReceiverConfig tunes the receive loop.
type ReceiverConfig struct {
	// PollTimeout bounds each blocking read so Stop is noticed promptly.
	PollTimeout time.Duration
	// MinEmitInterval is the minimum spacing between frames handed to the sink.
	MinEmitInterval time.Duration
	// AcceptLegacy enables the bare 8-byte header without magic.
	AcceptLegacy bool
	LogEvery     uint64
}

// DefaultReceiverConfig returns the settings used when none are configured.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		PollTimeout:     100 * time.Millisecond,
		MinEmitInterval: 30 * time.Millisecond,
		LogEvery:        30,
	}
}

// ReceiverStats is a point-in-time view of a Receiver.
type ReceiverStats struct {
	Receiving        bool
	Datagrams        uint64
	Dropped          uint64
	FramesCompleted  uint64
	FramesEmitted    uint64
	FramesSuperseded uint64
}

// Receiver reassembles datagrams into frames and forwards them, throttled,
// to a FrameSink. Datagrams arrive either from its own UDP loop (Start) or
// from an external transport calling HandleDatagram after Attach.
type Receiver struct {
	cfg    ReceiverConfig
	parser wire.Parser
	sink   FrameSink
	clock  clock.Clock
	log    *zap.Logger
	events events.Publisher

	mu           sync.Mutex
	reassemblers map[wire.Variant]*fragment.Reassembler
	emitter      *emitter
	reader       transport.DatagramReader
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      atomic.Bool

	datagrams atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
}

// NewReceiver creates an idle Receiver delivering frames to sink.
func NewReceiver(cfg ReceiverConfig, sink FrameSink, opts ...Option) *Receiver {
	def := DefaultReceiverConfig()
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.MinEmitInterval < 0 {
		cfg.MinEmitInterval = 0
	}
	o := buildOptions(opts)
	return &Receiver{
		cfg:          cfg,
		parser:       wire.Parser{AcceptLegacy: cfg.AcceptLegacy},
		sink:         sink,
		clock:        o.clock,
		log:          o.log.Named("stream.receiver"),
		events:       o.events,
		reassemblers: make(map[wire.Variant]*fragment.Reassembler),
	}
}

// Start binds a UDP listener on port and runs the receive loop.
func (r *Receiver) Start(ctx context.Context, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return ErrAlreadyReceiving
	}

	l, err := transport.ListenUDP(fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	r.reader = l
	loopCtx := r.startLocked(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(loopCtx, l)
	}()
	r.log.Info("receiving", zap.Stringer("addr", l.LocalAddr()))
	return nil
}

// Attach starts the emitter only, for datagrams delivered through
// HandleDatagram by another transport.
func (r *Receiver) Attach(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return ErrAlreadyReceiving
	}
	r.startLocked(ctx)
	return nil
}

func (r *Receiver) startLocked(ctx context.Context) context.Context {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.emitter = newEmitter(r.cfg.MinEmitInterval, r.clock, r.sink)
	for _, ra := range r.reassemblers {
		ra.Reset()
	}
	r.running.Store(true)

	em := r.emitter
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		em.run()
	}()
	go func() {
		defer r.wg.Done()
		<-loopCtx.Done()
		em.close()
		r.mu.Lock()
		if r.emitter == em {
			r.reader = nil
			r.running.Store(false)
		}
		r.mu.Unlock()
	}()
	return loopCtx
}

// Stop ends the loops and waits for them. The read loop notices within one
// poll timeout. Cancelling the context passed to Start or Attach ends them
// too, and the Receiver can then be started again.
func (r *Receiver) Stop() {
	r.mu.Lock()
	cancel, em := r.cancel, r.emitter
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	em.close()
	r.wg.Wait()

	r.mu.Lock()
	r.reader = nil
	r.mu.Unlock()
	r.running.Store(false)
	r.events.Publish(events.Event{Kind: events.KindStreamStopped, Payload: r.Stats()})
}

// Addr returns the bound UDP address, or nil when not listening.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	return r.reader.LocalAddr()
}

// Stats returns the current counters.
func (r *Receiver) Stats() ReceiverStats {
	st := ReceiverStats{
		Receiving:       r.running.Load(),
		Datagrams:       r.datagrams.Load(),
		Dropped:         r.dropped.Load(),
		FramesCompleted: r.completed.Load(),
	}
	r.mu.Lock()
	em := r.emitter
	r.mu.Unlock()
	if em != nil {
		st.FramesEmitted = em.emitted.Load()
		st.FramesSuperseded = em.superseded.Load()
	}
	return st
}

// HandleDatagram feeds one datagram into reassembly. Malformed datagrams are
// counted and dropped. Safe for concurrent use.
func (r *Receiver) HandleDatagram(b []byte) {
	r.datagrams.Add(1)
	d, err := r.parser.Parse(b)
	if err != nil {
		r.dropped.Add(1)
		return
	}

	r.mu.Lock()
	ra, ok := r.reassemblers[d.Variant]
	if !ok {
		ra = fragment.NewReassembler()
		r.reassemblers[d.Variant] = ra
	}
	em := r.emitter
	r.mu.Unlock()

	frame, done := ra.Add(d.Sequence, d.Index, d.Total, d.Payload)
	if !done {
		return
	}
	r.completed.Add(1)
	if em != nil {
		em.offer(Frame{Variant: d.Variant, Sequence: d.Sequence, Data: frame})
	}
}

func (r *Receiver) readLoop(ctx context.Context, reader transport.DatagramReader) {
	defer reader.Close()

	var readLog = logging.Decimator{Every: r.cfg.LogEvery}
	buf := make([]byte, 64*1024)
	for ctx.Err() == nil {
		_ = reader.SetReadDeadline(time.Now().Add(r.cfg.PollTimeout))
		n, err := reader.ReadDatagram(buf)
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if ok, count := readLog.Tick(); ok {
				r.log.Warn("receive failed", zap.Error(err), zap.Uint64("count", count))
				r.events.Publish(events.Event{
					Kind:    events.KindStreamError,
					Payload: ErrorEvent{Stage: "receive", Count: count, Err: err},
				})
			}
			continue
		}
		r.HandleDatagram(buf[:n])
	}
}
