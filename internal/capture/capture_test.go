package capture

import (
	"bytes"
	"testing"
)

func TestRGBAConvertsBGRA(t *testing.T) {
	f := &Frame{Pix: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Width: 2, Height: 1, Layout: LayoutBGRA}
	img, err := f.RGBA()
	if err != nil {
		t.Fatalf("RGBA: %v", err)
	}
	if want := []byte{3, 2, 1, 4, 7, 6, 5, 8}; !bytes.Equal(img.Pix, want) {
		t.Fatalf("pix = %v, want %v", img.Pix, want)
	}
	if f.Pix[0] != 1 {
		t.Fatal("conversion modified the source frame")
	}
}

func TestRGBARejectsShortBuffer(t *testing.T) {
	f := &Frame{Pix: make([]byte, 7), Width: 2, Height: 1}
	if _, err := f.RGBA(); err == nil {
		t.Fatal("expected error")
	}
}

func TestDownscale(t *testing.T) {
	src, err := NewSynthetic(1920, 1081, LayoutRGBA).Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	img, _ := src.RGBA()

	out := Downscale(img, 640)
	if out.Rect.Dx() != 640 || out.Rect.Dy() != 360 {
		t.Fatalf("size = %v", out.Rect)
	}
	if out.Rect.Dy()%2 != 0 {
		t.Fatal("height is odd")
	}
	// Top-left pixel is sampled, not blended.
	if !bytes.Equal(out.Pix[:4], img.Pix[:4]) {
		t.Fatalf("pixel 0 = %v, want %v", out.Pix[:4], img.Pix[:4])
	}
	if Downscale(img, 4000) != img {
		t.Fatal("narrow image should be returned unchanged")
	}
}

func TestSyntheticLayoutAndReset(t *testing.T) {
	s := NewSynthetic(4, 4, LayoutBGRA)
	first, _ := s.Capture()
	second, _ := s.Capture()
	if bytes.Equal(first.Pix, second.Pix) {
		t.Fatal("pattern did not move")
	}
	if err := s.Reinitialize(); err != nil {
		t.Fatal(err)
	}
	again, _ := s.Capture()
	if !bytes.Equal(first.Pix, again.Pix) || again.Layout != LayoutBGRA {
		t.Fatal("Reinitialize did not restart the pattern")
	}
}
