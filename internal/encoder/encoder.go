// Package encoder compresses captured frames for transmission.
package encoder

import "image"

// Encoder encodes an image into bytes. Implementations may keep internal
// state across calls but are used from a single goroutine.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
	SetQuality(quality int)
}
