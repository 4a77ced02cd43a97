// Package wire implements the datagram headers used to carry frame chunks.
//
// Four header layouts coexist on the wire so one receiver can accept both
// the current video framing and the older preview framing:
//
//	H4     "H4" type(1) flags(1) seq(4 LE) index(2 LE) total(2 LE)   12 bytes
//	SF     "SF" seq(4 LE) index(2 LE) total(2 LE)                     10 bytes
//	SC     "SC" seq(4 LE) index(2 LE) total(2 LE) length(2 LE)        12 bytes
//	legacy seq(4 BE) index(2 BE) total(2 BE)                          8 bytes
//
// The legacy layout has no magic, so a Parser only falls back to it when
// AcceptLegacy is set.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxDatagramSize is the largest datagram sent, header included.
const MaxDatagramSize = 1400

// Variant identifies a header layout.
type Variant uint8

const (
	VariantUnknown Variant = iota
	VariantH264
	VariantFrame
	VariantChunk
	VariantLegacy
)

// FrameTypeStart marks the first chunk of a frame in H4 headers.
const FrameTypeStart = 1

const (
	sizeH264   = 12
	sizeFrame  = 10
	sizeChunk  = 12
	sizeLegacy = 8
)

var (
	magicH264  = [2]byte{'H', '4'}
	magicFrame = [2]byte{'S', 'F'}
	magicChunk = [2]byte{'S', 'C'}
)

var (
	ErrShort        = errors.New("wire: datagram shorter than header")
	ErrUnknownMagic = errors.New("wire: unknown magic")
	ErrBadChunk     = errors.New("wire: chunk index out of range")
	ErrBadLength    = errors.New("wire: declared length exceeds payload")
	ErrTooLarge     = errors.New("wire: payload exceeds chunk capacity")
)

func (v Variant) String() string {
	switch v {
	case VariantH264:
		return "h264"
	case VariantFrame:
		return "jpeg"
	case VariantChunk:
		return "jpeg-chunk"
	case VariantLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseVariant maps a configuration name back to a Variant.
func ParseVariant(name string) (Variant, error) {
	for _, v := range []Variant{VariantH264, VariantFrame, VariantChunk, VariantLegacy} {
		if v.String() == name {
			return v, nil
		}
	}
	return VariantUnknown, fmt.Errorf("unknown datagram variant %q", name)
}

// HeaderSize returns the header length of v, or 0 for an unknown variant.
func (v Variant) HeaderSize() int {
	switch v {
	case VariantH264:
		return sizeH264
	case VariantFrame:
		return sizeFrame
	case VariantChunk:
		return sizeChunk
	case VariantLegacy:
		return sizeLegacy
	default:
		return 0
	}
}

// ChunkCapacity is the payload room left in a MaxDatagramSize datagram.
func (v Variant) ChunkCapacity() int {
	if v.HeaderSize() == 0 {
		return 0
	}
	return MaxDatagramSize - v.HeaderSize()
}

// Header is the decoded, variant-independent view of a datagram header.
type Header struct {
	Variant   Variant
	FrameType uint8
	Flags     uint8
	Sequence  uint32
	Index     uint16
	Total     uint16
}

// Datagram is a parsed datagram. Payload aliases the buffer given to Parse.
type Datagram struct {
	Header
	Payload []byte
}

// Append encodes h followed by payload onto dst.
func Append(dst []byte, h Header, payload []byte) ([]byte, error) {
	if len(payload) > h.Variant.ChunkCapacity() {
		return dst, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(payload), h.Variant.ChunkCapacity())
	}
	switch h.Variant {
	case VariantH264:
		dst = append(dst, magicH264[0], magicH264[1], h.FrameType, h.Flags)
		dst = binary.LittleEndian.AppendUint32(dst, h.Sequence)
		dst = binary.LittleEndian.AppendUint16(dst, h.Index)
		dst = binary.LittleEndian.AppendUint16(dst, h.Total)
	case VariantFrame, VariantChunk:
		magic := magicFrame
		if h.Variant == VariantChunk {
			magic = magicChunk
		}
		dst = append(dst, magic[0], magic[1])
		dst = binary.LittleEndian.AppendUint32(dst, h.Sequence)
		dst = binary.LittleEndian.AppendUint16(dst, h.Index)
		dst = binary.LittleEndian.AppendUint16(dst, h.Total)
		if h.Variant == VariantChunk {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
		}
	case VariantLegacy:
		dst = binary.BigEndian.AppendUint32(dst, h.Sequence)
		dst = binary.BigEndian.AppendUint16(dst, h.Index)
		dst = binary.BigEndian.AppendUint16(dst, h.Total)
	default:
		return dst, fmt.Errorf("wire: cannot encode variant %d", h.Variant)
	}
	return append(dst, payload...), nil
}

// Parser decodes datagrams of every supported variant.
type Parser struct {
	// AcceptLegacy treats datagrams without a known magic as the bare
	// big-endian legacy layout instead of dropping them.
	AcceptLegacy bool
}

// Parse decodes b. Any error means the datagram should be dropped.
func (p Parser) Parse(b []byte) (Datagram, error) {
	var d Datagram
	if len(b) < 2 {
		return d, ErrShort
	}

	magic := [2]byte{b[0], b[1]}
	switch magic {
	case magicH264:
		if len(b) < sizeH264 {
			return d, ErrShort
		}
		d.Variant = VariantH264
		d.FrameType = b[2]
		d.Flags = b[3]
		d.Sequence = binary.LittleEndian.Uint32(b[4:8])
		d.Index = binary.LittleEndian.Uint16(b[8:10])
		d.Total = binary.LittleEndian.Uint16(b[10:12])
		d.Payload = b[sizeH264:]
	case magicFrame:
		if len(b) < sizeFrame {
			return d, ErrShort
		}
		d.Variant = VariantFrame
		d.Sequence = binary.LittleEndian.Uint32(b[2:6])
		d.Index = binary.LittleEndian.Uint16(b[6:8])
		d.Total = binary.LittleEndian.Uint16(b[8:10])
		d.Payload = b[sizeFrame:]
	case magicChunk:
		if len(b) < sizeChunk {
			return d, ErrShort
		}
		d.Variant = VariantChunk
		d.Sequence = binary.LittleEndian.Uint32(b[2:6])
		d.Index = binary.LittleEndian.Uint16(b[6:8])
		d.Total = binary.LittleEndian.Uint16(b[8:10])
		n := int(binary.LittleEndian.Uint16(b[10:12]))
		if n > len(b)-sizeChunk {
			return d, ErrBadLength
		}
		d.Payload = b[sizeChunk : sizeChunk+n]
	default:
		if !p.AcceptLegacy {
			return d, ErrUnknownMagic
		}
		if len(b) < sizeLegacy {
			return d, ErrShort
		}
		d.Variant = VariantLegacy
		d.Sequence = binary.BigEndian.Uint32(b[0:4])
		d.Index = binary.BigEndian.Uint16(b[4:6])
		d.Total = binary.BigEndian.Uint16(b[6:8])
		d.Payload = b[sizeLegacy:]
	}

	if d.Total == 0 || d.Index >= d.Total {
		return Datagram{}, ErrBadChunk
	}
	return d, nil
}
