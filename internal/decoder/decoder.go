// Package decoder turns received frame payloads back into images.
package decoder

import (
	"errors"
	"fmt"
	"image"

	"github.com/junsooki/airdesk/internal/wire"
)

// ErrUnsupported is returned for a payload variant with no decoder here.
var ErrUnsupported = errors.New("decoder: unsupported frame variant")

// Decoder decodes bytes into an image.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}

// ForVariant returns the decoder for frames of variant v. H.264 frames are
// handed to an external decoder and are not supported here.
func ForVariant(v wire.Variant) (Decoder, error) {
	switch v {
	case wire.VariantFrame, wire.VariantChunk, wire.VariantLegacy:
		return NewJPEGDecoder(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, v)
}
