package decoder

import (
	"errors"
	"image"
	"testing"

	"github.com/junsooki/airdesk/internal/encoder"
	"github.com/junsooki/airdesk/internal/wire"
)

func TestJPEGRoundTripDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	data, err := encoder.NewJPEGEncoder(80).Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := NewJPEGDecoder().Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
		t.Fatalf("bounds = %v", out.Bounds())
	}
}

func TestJPEGDecodeGarbage(t *testing.T) {
	if _, err := NewJPEGDecoder().Decode([]byte("not a jpeg")); err == nil {
		t.Fatal("expected error")
	}
}

func TestForVariant(t *testing.T) {
	for _, v := range []wire.Variant{wire.VariantFrame, wire.VariantChunk, wire.VariantLegacy} {
		if _, err := ForVariant(v); err != nil {
			t.Errorf("ForVariant(%s) = %v", v, err)
		}
	}
	if _, err := ForVariant(wire.VariantH264); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ForVariant(h264) = %v, want ErrUnsupported", err)
	}
}
