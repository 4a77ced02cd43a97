package input

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/clock"
	"github.com/junsooki/airdesk/internal/logging"
)

// DefaultDelay is the pause after every injected primitive.
const DefaultDelay = 10 * time.Millisecond

// Option configures a Translator.
type Option func(*Translator)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option { return func(t *Translator) { t.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(t *Translator) { t.log = l } }

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option { return func(t *Translator) { t.delay = d } }

// Translator turns Events into Sink primitives. Calls to Apply are
// serialized so a key press and its modifiers are never interleaved with
// another event.
type Translator struct {
	sink  Sink
	clock clock.Clock
	log   *zap.Logger
	delay time.Duration

	mu       sync.Mutex
	x, y     float64
	unmapped logging.Decimator
}

// NewTranslator plays events through sink.
func NewTranslator(sink Sink, opts ...Option) *Translator {
	t := &Translator{
		sink:     sink,
		clock:    clock.Real(),
		delay:    DefaultDelay,
		unmapped: logging.Decimator{Every: 30},
	}
	for _, fn := range opts {
		fn(t)
	}
	t.log = logging.OrNop(t.log).Named("input")
	return t
}

// Apply plays one event. Keys that resolve to nothing are skipped without
// error. A click happens at the last position seen in a move, down or up.
func (t *Translator) Apply(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case EventMouseMove:
		t.x, t.y = e.X, e.Y
		return t.step(t.sink.MoveMouse(e.X, e.Y))
	case EventMouseDown, EventMouseUp:
		t.x, t.y = e.X, e.Y
		return t.step(t.sink.MouseButton(e.Button, e.Type == EventMouseDown, e.X, e.Y))
	case EventMouseClick:
		if err := t.step(t.sink.MouseButton(e.Button, true, t.x, t.y)); err != nil {
			return err
		}
		return t.step(t.sink.MouseButton(e.Button, false, t.x, t.y))
	case EventMouseScroll:
		return t.step(t.sink.Scroll(e.ScrollDX, e.ScrollDY))
	case EventKeyDown, EventKeyUp:
		k, ok := t.resolve(e)
		if !ok {
			return nil
		}
		return t.step(t.sink.Key(k, e.Type == EventKeyDown))
	case EventKeyPress:
		k, ok := t.resolve(e)
		if !ok {
			return nil
		}
		return t.press(k, e.Modifiers)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
}

// press holds mods, clicks k and releases mods in reverse. Modifiers that
// went down are released even if a later step fails.
func (t *Translator) press(k Key, mods Modifiers) (err error) {
	held := mods.Keys()
	down := 0
	defer func() {
		for i := down - 1; i >= 0; i-- {
			if rerr := t.step(t.sink.Key(held[i], false)); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()
	for _, m := range held {
		if err := t.step(t.sink.Key(m, true)); err != nil {
			return err
		}
		down++
	}
	if err := t.step(t.sink.Key(k, true)); err != nil {
		return err
	}
	return t.step(t.sink.Key(k, false))
}

func (t *Translator) resolve(e Event) (Key, bool) {
	k, ok := Resolve(e.Code, e.Key)
	if !ok {
		if log, n := t.unmapped.Tick(); log {
			t.log.Debug("unmapped key", zap.String("code", e.Code), zap.String("key", e.Key), zap.Uint64("count", n))
		}
	}
	return k, ok
}

// step pauses after a primitive whether or not it succeeded.
func (t *Translator) step(err error) error {
	t.clock.Sleep(t.delay)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	return nil
}
