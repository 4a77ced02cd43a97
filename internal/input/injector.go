package input

import (
	"errors"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/logging"
)

// ErrUnsupported is returned by NewPlatformSink where no injector exists.
var ErrUnsupported = errors.New("input: injection not supported on this platform")

// Sink performs input primitives on the local machine. Coordinates are
// absolute screen points.
type Sink interface {
	MoveMouse(x, y float64) error
	MouseButton(b MouseButton, down bool, x, y float64) error
	Scroll(dx, dy float64) error
	Key(k Key, down bool) error
}

// LogSink logs primitives instead of performing them.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink returns a Sink that only logs at debug level.
func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{log: logging.OrNop(l).Named("input.log")}
}

func (s *LogSink) MoveMouse(x, y float64) error {
	s.log.Debug("move", zap.Float64("x", x), zap.Float64("y", y))
	return nil
}

func (s *LogSink) MouseButton(b MouseButton, down bool, x, y float64) error {
	s.log.Debug("button", zap.Int("button", int(b)), zap.Bool("down", down), zap.Float64("x", x), zap.Float64("y", y))
	return nil
}

func (s *LogSink) Scroll(dx, dy float64) error {
	s.log.Debug("scroll", zap.Float64("dx", dx), zap.Float64("dy", dy))
	return nil
}

func (s *LogSink) Key(k Key, down bool) error {
	s.log.Debug("key", zap.String("key", string(k)), zap.Bool("down", down))
	return nil
}
