//go:build !darwin

package input

import "go.uber.org/zap"

// NewPlatformSink returns ErrUnsupported off macOS.
func NewPlatformSink(*zap.Logger) (Sink, error) {
	return nil, ErrUnsupported
}
