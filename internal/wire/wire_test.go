package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendH264Layout(t *testing.T) {
	h := Header{Variant: VariantH264, FrameType: FrameTypeStart, Sequence: 0x01020304, Index: 2, Total: 5}
	b, err := Append(nil, h, []byte("xy"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	want := []byte{'H', '4', 1, 0, 0x04, 0x03, 0x02, 0x01, 2, 0, 5, 0, 'x', 'y'}
	if !bytes.Equal(b, want) {
		t.Fatalf("encoded = % x, want % x", b, want)
	}
}

func TestAppendLegacyIsBigEndian(t *testing.T) {
	h := Header{Variant: VariantLegacy, Sequence: 7, Index: 1, Total: 3}
	b, err := Append(nil, h, []byte{0xAA})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	want := []byte{0, 0, 0, 7, 0, 1, 0, 3, 0xAA}
	if !bytes.Equal(b, want) {
		t.Fatalf("encoded = % x, want % x", b, want)
	}
}

func TestRoundTripEveryVariant(t *testing.T) {
	p := Parser{AcceptLegacy: true}
	for _, v := range []Variant{VariantH264, VariantFrame, VariantChunk, VariantLegacy} {
		t.Run(v.String(), func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x5A}, v.ChunkCapacity())
			h := Header{Variant: v, Sequence: 99, Index: 3, Total: 4}
			b, err := Append(nil, h, payload)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if len(b) != MaxDatagramSize {
				t.Fatalf("datagram size = %d, want %d", len(b), MaxDatagramSize)
			}
			d, err := p.Parse(b)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if d.Variant != v || d.Sequence != 99 || d.Index != 3 || d.Total != 4 {
				t.Fatalf("header = %+v", d.Header)
			}
			if !bytes.Equal(d.Payload, payload) {
				t.Fatal("payload mismatch")
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	valid, _ := Append(nil, Header{Variant: VariantH264, Sequence: 1, Index: 0, Total: 1}, []byte("p"))
	zeroTotal, _ := Append(nil, Header{Variant: VariantFrame, Sequence: 1, Index: 0, Total: 0}, nil)
	indexPastTotal, _ := Append(nil, Header{Variant: VariantFrame, Sequence: 1, Index: 2, Total: 2}, nil)
	badLength, _ := Append(nil, Header{Variant: VariantChunk, Sequence: 1, Index: 0, Total: 1}, []byte("abc"))
	badLength = badLength[:len(badLength)-1]

	tests := []struct {
		name   string
		parser Parser
		in     []byte
		want   error
	}{
		{"empty", Parser{}, nil, ErrShort},
		{"truncated h264", Parser{}, valid[:11], ErrShort},
		{"unknown magic", Parser{}, []byte("XX0123456789"), ErrUnknownMagic},
		{"short legacy", Parser{AcceptLegacy: true}, []byte{0, 0, 0, 1, 0}, ErrShort},
		{"zero total", Parser{}, zeroTotal, ErrBadChunk},
		{"index past total", Parser{}, indexPastTotal, ErrBadChunk},
		{"length past payload", Parser{}, badLength, ErrBadLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parser.Parse(tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAppendRejectsOversizedPayload(t *testing.T) {
	_, err := Append(nil, Header{Variant: VariantH264, Total: 1}, make([]byte, VariantH264.ChunkCapacity()+1))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("jpeg-chunk")
	if err != nil || v != VariantChunk {
		t.Fatalf("ParseVariant = %v, %v", v, err)
	}
	if _, err := ParseVariant("vp9"); err == nil {
		t.Fatal("expected error")
	}
}
