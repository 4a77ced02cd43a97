package encoder

import (
	"bytes"
	"image"
	"testing"
)

func TestJPEGEncoderQualityClamp(t *testing.T) {
	e := NewJPEGEncoder(500)
	if e.Quality() != 100 {
		t.Fatalf("quality = %d, want 100", e.Quality())
	}
	e.SetQuality(-3)
	if e.Quality() != 1 {
		t.Fatalf("quality = %d, want 1", e.Quality())
	}
}

func TestJPEGEncoderOutputsIndependentBuffers(t *testing.T) {
	e := NewJPEGEncoder(70)
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))

	first, err := e.Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	snapshot := append([]byte(nil), first...)
	img.Pix[0] = 0xFF
	if _, err := e.Encode(img); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(first, snapshot) {
		t.Fatal("second Encode overwrote the first result")
	}
	if !bytes.HasPrefix(first, []byte{0xFF, 0xD8}) {
		t.Fatal("missing JPEG SOI marker")
	}
}
