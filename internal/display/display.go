// Package display shows the remote screen in an Ebitengine window and turns
// local mouse and keyboard activity into input events.
package display

import (
	"image"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/decoder"
	"github.com/junsooki/airdesk/internal/input"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/stream"
	"github.com/junsooki/airdesk/internal/wire"
)

// Display renders frames and captures user input.
type Display interface {
	FrameSetter
	Run() error
	Close()
}

// InputCallback is called when the user generates an input event.
type InputCallback func(e input.Event)

// FrameSetter accepts decoded frames.
type FrameSetter interface {
	SetFrame(img *image.RGBA)
}

// DecodingSink returns a FrameSink that decodes each frame with the decoder
// for its variant and hands the image to dst. Undecodable frames are
// dropped with a decimated log line.
func DecodingSink(dst FrameSetter, log *zap.Logger) stream.FrameSink {
	log = logging.OrNop(log).Named("display")
	failures := logging.Decimator{Every: 30}
	decoders := make(map[wire.Variant]decoder.Decoder)
	return func(f stream.Frame) {
		dec, ok := decoders[f.Variant]
		if !ok {
			var err error
			if dec, err = decoder.ForVariant(f.Variant); err != nil {
				if emit, n := failures.Tick(); emit {
					log.Warn("no decoder", zap.Stringer("variant", f.Variant), zap.Uint64("count", n))
				}
				return
			}
			decoders[f.Variant] = dec
		}
		img, err := dec.Decode(f.Data)
		if err != nil {
			if emit, n := failures.Tick(); emit {
				log.Warn("frame decode failed", zap.Uint32("sequence", f.Sequence), zap.Uint64("count", n), zap.Error(err))
			}
			return
		}
		dst.SetFrame(img)
	}
}
