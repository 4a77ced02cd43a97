package capture

import (
	"sync"
	"time"
)

// Synthetic produces a moving test pattern. It stands in for a native
// capturer on platforms without one and in tests.
type Synthetic struct {
	width  int
	height int
	layout Layout

	mu    sync.Mutex
	frame int
}

// NewSynthetic creates a test-pattern source of the given size.
func NewSynthetic(width, height int, layout Layout) *Synthetic {
	return &Synthetic{width: width, height: height, layout: layout}
}

func (s *Synthetic) Capture() (*Frame, error) {
	s.mu.Lock()
	n := s.frame
	s.frame++
	s.mu.Unlock()

	pix := make([]byte, s.width*s.height*4)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			i := (y*s.width + x) * 4
			r, g, b := byte(x+n), byte(y+n), byte(n*3)
			if s.layout == LayoutBGRA {
				r, b = b, r
			}
			pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 0xFF
		}
	}
	return &Frame{
		Pix:       pix,
		Width:     s.width,
		Height:    s.height,
		Layout:    s.layout,
		Timestamp: time.Now(),
	}, nil
}

// Reinitialize restarts the pattern.
func (s *Synthetic) Reinitialize() error {
	s.mu.Lock()
	s.frame = 0
	s.mu.Unlock()
	return nil
}
