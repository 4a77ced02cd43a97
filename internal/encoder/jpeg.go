package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

const initialBufferSize = 256 << 10

var _ Encoder = (*JPEGEncoder)(nil)

// JPEGEncoder encodes frames as baseline JPEG, reusing one output buffer.
type JPEGEncoder struct {
	opts jpeg.Options
	buf  bytes.Buffer
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	e.buf.Grow(initialBufferSize)
	return e
}

// SetQuality sets the quality, clamped to 1..100.
func (e *JPEGEncoder) SetQuality(quality int) { e.opts.Quality = min(max(quality, 1), 100) }

// Quality returns the current JPEG quality.
func (e *JPEGEncoder) Quality() int { return e.opts.Quality }

// Encode returns a copy of the encoded bytes.
func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &e.opts); err != nil {
		return nil, fmt.Errorf("encoder: jpeg: %w", err)
	}
	return bytes.Clone(e.buf.Bytes()), nil
}
