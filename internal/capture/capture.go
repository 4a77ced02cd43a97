package capture

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNotReady is returned by a Source that has no frame available yet.
// Callers should retry on a later tick.
var ErrNotReady = errors.New("capture: frame not ready")

// Layout is the byte order of a pixel buffer.
type Layout uint8

const (
	LayoutRGBA Layout = iota
	LayoutBGRA
)

func (l Layout) String() string {
	if l == LayoutBGRA {
		return "BGRA"
	}
	return "RGBA"
}

// Frame represents a captured screen frame.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Layout    Layout
	Timestamp time.Time
}

// Source yields frames on demand.
type Source interface {
	Capture() (*Frame, error)
}

// Reinitializer is implemented by sources that can rebuild their native
// capture session after repeated failures.
type Reinitializer interface {
	Reinitialize() error
}

// RGBA returns the frame as an *image.RGBA, converting from BGRA when needed.
// The returned image shares Pix with f for RGBA frames.
func (f *Frame) RGBA() (*image.RGBA, error) {
	if len(f.Pix) < f.Width*f.Height*4 {
		return nil, fmt.Errorf("capture: %dx%d frame has %d bytes", f.Width, f.Height, len(f.Pix))
	}
	pix := f.Pix
	if f.Layout == LayoutBGRA {
		pix = make([]byte, len(f.Pix))
		for i := 0; i+3 < len(f.Pix); i += 4 {
			pix[i] = f.Pix[i+2]
			pix[i+1] = f.Pix[i+1]
			pix[i+2] = f.Pix[i]
			pix[i+3] = f.Pix[i+3]
		}
	}
	return &image.RGBA{
		Pix:    pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

// Downscale returns img resized with nearest-neighbour sampling so that it is
// at most maxWidth wide, keeping the aspect ratio and an even height. Images
// already narrow enough are returned unchanged.
func Downscale(img *image.RGBA, maxWidth int) *image.RGBA {
	sw, sh := img.Rect.Dx(), img.Rect.Dy()
	if maxWidth <= 0 || sw <= maxWidth {
		return img
	}
	dw := maxWidth
	dh := sh * dw / sw
	dh -= dh % 2
	if dh < 2 {
		dh = 2
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		srcRow := img.Pix[sy*img.Stride:]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			copy(dstRow[x*4:x*4+4], srcRow[sx*4:sx*4+4])
		}
	}
	return dst
}
