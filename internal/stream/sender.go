package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/capture"
	"github.com/junsooki/airdesk/internal/clock"
	"github.com/junsooki/airdesk/internal/encoder"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/fragment"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/transport"
	"github.com/junsooki/airdesk/internal/wire"
)

// MaxFPS bounds the requested frame rate.
const MaxFPS = 120

// SenderConfig tunes the capture loop.
type SenderConfig struct {
	Variant wire.Variant
	// MaxWidth downscales wider captures before encoding. Zero keeps the
	// native resolution.
	MaxWidth int
	// RecoveryThreshold is the number of consecutive failed captures after
	// which the source is reinitialized.
	RecoveryThreshold int
	// LogEvery decimates repeated error logs.
	LogEvery uint64
}

// DefaultSenderConfig returns the settings used when none are configured.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Variant:           wire.VariantFrame,
		MaxWidth:          1280,
		RecoveryThreshold: 30,
		LogEvery:          30,
	}
}

// SenderStats is a point-in-time view of a Sender.
type SenderStats struct {
	Streaming         bool
	Sequence          uint32
	FramesSent        uint64
	EncodeErrors      uint64
	SendErrors        uint64
	CaptureMisses     uint64
	Reinitializations uint64
}

// Sender captures, encodes and transmits frames at a fixed rate.
type Sender struct {
	cfg        SenderConfig
	source     capture.Source
	enc        encoder.Encoder
	dialer     transport.Dialer
	packetizer *fragment.Packetizer
	clock      clock.Clock
	log        *zap.Logger
	events     events.Publisher

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	sequence          atomic.Uint32
	framesSent        atomic.Uint64
	encodeErrors      atomic.Uint64
	sendErrors        atomic.Uint64
	captureMisses     atomic.Uint64
	reinitializations atomic.Uint64

	// Loop-goroutine state.
	consecutiveMisses int
	captureLog        logging.Decimator
	encodeLog         logging.Decimator
	sendLog           logging.Decimator
}

// Option configures a Sender or Receiver.
type Option func(*options)

type options struct {
	clock  clock.Clock
	log    *zap.Logger
	events events.Publisher
}

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithEvents sets where error and lifecycle notifications go.
func WithEvents(p events.Publisher) Option { return func(o *options) { o.events = p } }

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real(), events: events.Discard}
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logging.OrNop(o.log)
	return o
}

// NewSender wires a capture source, an encoder and a datagram dialer.
func NewSender(cfg SenderConfig, source capture.Source, enc encoder.Encoder, dialer transport.Dialer, opts ...Option) (*Sender, error) {
	p, err := fragment.NewPacketizer(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = DefaultSenderConfig().RecoveryThreshold
	}
	o := buildOptions(opts)
	return &Sender{
		cfg:        cfg,
		source:     source,
		enc:        enc,
		dialer:     dialer,
		packetizer: p,
		clock:      o.clock,
		log:        o.log.Named("stream.sender"),
		events:     o.events,
		captureLog: logging.Decimator{Every: cfg.LogEvery},
		encodeLog:  logging.Decimator{Every: cfg.LogEvery},
		sendLog:    logging.Decimator{Every: cfg.LogEvery},
	}, nil
}

// Start dials target and begins streaming at fps frames per second.
func (s *Sender) Start(ctx context.Context, target string, fps int) error {
	if fps <= 0 || fps > MaxFPS {
		return fmt.Errorf("stream: fps must be 1-%d, got %d", MaxFPS, fps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrAlreadyStreaming
	}

	conn, err := s.dialer.Dial(ctx, target)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", target, err)
	}

	if s.cancel != nil {
		// Previous loop ended on its own; release its context.
		s.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	s.log.Info("streaming started",
		zap.String("target", target),
		zap.Int("fps", fps),
		zap.Stringer("variant", s.cfg.Variant))
	go s.loop(loopCtx, conn, time.Second/time.Duration(fps), s.done)
	return nil
}

// Stop ends the loop and waits for it to exit. It is a no-op when idle.
func (s *Sender) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Streaming reports whether the loop is running.
func (s *Sender) Streaming() bool { return s.running.Load() }

// Stats returns the current counters.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Streaming:         s.running.Load(),
		Sequence:          s.sequence.Load(),
		FramesSent:        s.framesSent.Load(),
		EncodeErrors:      s.encodeErrors.Load(),
		SendErrors:        s.sendErrors.Load(),
		CaptureMisses:     s.captureMisses.Load(),
		Reinitializations: s.reinitializations.Load(),
	}
}

func (s *Sender) loop(ctx context.Context, conn transport.DatagramConn, budget time.Duration, done chan struct{}) {
	defer close(done)
	defer func() {
		s.running.Store(false)
		s.events.Publish(events.Event{Kind: events.KindStreamStopped, Payload: s.Stats()})
	}()
	defer conn.Close()

	for ctx.Err() == nil {
		s.runOnce(ctx, conn, budget)
	}
	s.log.Info("streaming stopped", zap.Uint64("frames_sent", s.framesSent.Load()))
}

// runOnce does one tick of work and then sleeps off whatever is left of the
// budget. An overrunning tick is not made up for; the next one starts at once.
func (s *Sender) runOnce(ctx context.Context, conn transport.DatagramSender, budget time.Duration) {
	start := s.clock.Now()
	s.tick(conn)
	remaining := budget - s.clock.Now().Sub(start)
	if remaining <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-s.clock.After(remaining):
	}
}

func (s *Sender) tick(conn transport.DatagramSender) {
	frame, err := s.source.Capture()
	if err != nil {
		s.captureMisses.Add(1)
		s.consecutiveMisses++
		if !errors.Is(err, capture.ErrNotReady) {
			s.report("capture", &s.captureLog, err)
		}
		if s.consecutiveMisses >= s.cfg.RecoveryThreshold {
			s.reinitialize()
		}
		return
	}
	s.consecutiveMisses = 0

	data, err := EncodeFrame(s.enc, frame, s.cfg.MaxWidth)
	if err != nil {
		s.encodeErrors.Add(1)
		s.report("encode", &s.encodeLog, err)
		return
	}

	seq := s.sequence.Load()
	err = s.send(conn, seq, data)
	s.sequence.Add(1)
	if err != nil {
		s.sendErrors.Add(1)
		s.report("send", &s.sendLog, err)
		return
	}
	s.framesSent.Add(1)
}

func (s *Sender) send(conn transport.DatagramSender, seq uint32, frame []byte) error {
	dgrams, err := s.packetizer.Packetize(seq, frame)
	if err != nil {
		return err
	}
	for i, d := range dgrams {
		if err := conn.Send(d); err != nil {
			return fmt.Errorf("chunk %d/%d of frame %d: %w", i, len(dgrams), seq, err)
		}
	}
	return nil
}

func (s *Sender) reinitialize() {
	s.consecutiveMisses = 0
	r, ok := s.source.(capture.Reinitializer)
	if !ok {
		return
	}
	s.reinitializations.Add(1)
	if err := r.Reinitialize(); err != nil {
		s.log.Warn("capture reinitialize failed", zap.Error(err))
		return
	}
	s.log.Info("capture source reinitialized", zap.Int("after_misses", s.cfg.RecoveryThreshold))
}

func (s *Sender) report(stage string, d *logging.Decimator, err error) {
	ok, n := d.Tick()
	if !ok {
		return
	}
	s.log.Warn(stage+" failed", zap.Error(err), zap.Uint64("count", n))
	s.events.Publish(events.Event{
		Kind:    events.KindStreamError,
		Payload: ErrorEvent{Stage: stage, Count: n, Err: err},
	})
}

// EncodeFrame converts a captured frame to RGBA, downscales it to maxWidth
// and encodes it.
func EncodeFrame(enc encoder.Encoder, frame *capture.Frame, maxWidth int) ([]byte, error) {
	img, err := frame.RGBA()
	if err != nil {
		return nil, err
	}
	return enc.Encode(capture.Downscale(img, maxWidth))
}

// CaptureOnce grabs and encodes a single frame.
func CaptureOnce(source capture.Source, enc encoder.Encoder, maxWidth int) ([]byte, error) {
	frame, err := source.Capture()
	if err != nil {
		return nil, err
	}
	return EncodeFrame(enc, frame, maxWidth)
}
