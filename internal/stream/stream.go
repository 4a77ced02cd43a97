// Package stream drives the frame pipeline: a paced capture, encode and
// packetize loop on the host, and a receive, reassemble and emit loop on the
// viewer. Each driver owns its goroutines; Start and Stop bracket their
// lifetime and a second Start while running is refused.
package stream

import (
	"errors"

	"github.com/junsooki/airdesk/internal/wire"
)

var (
	ErrAlreadyStreaming = errors.New("stream: already streaming")
	ErrAlreadyReceiving = errors.New("stream: already receiving")
)

// Frame is a reassembled, still-encoded frame handed to a FrameSink.
type Frame struct {
	Variant  wire.Variant
	Sequence uint32
	Data     []byte
}

// FrameSink consumes complete frames. It is called from a single goroutine.
type FrameSink func(Frame)

// ErrorEvent is the payload of events.KindStreamError.
type ErrorEvent struct {
	Stage string // capture, encode, send or receive
	Count uint64
	Err   error
}
