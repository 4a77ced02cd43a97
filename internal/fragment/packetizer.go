// Package fragment splits encoded frames into MTU-sized datagrams and puts
// them back together on the receiving side.
package fragment

import (
	"errors"
	"fmt"
	"math"

	"github.com/junsooki/airdesk/internal/wire"
)

var (
	ErrEmptyFrame    = errors.New("fragment: empty frame")
	ErrFrameTooLarge = errors.New("fragment: frame needs more than 65535 chunks")
)

// Packetizer turns one encoded frame into an ordered list of datagrams.
type Packetizer struct {
	variant  wire.Variant
	capacity int
}

// NewPacketizer returns a Packetizer emitting headers of the given variant.
func NewPacketizer(v wire.Variant) (*Packetizer, error) {
	if v.ChunkCapacity() <= 0 {
		return nil, fmt.Errorf("fragment: unsupported variant %v", v)
	}
	return &Packetizer{variant: v, capacity: v.ChunkCapacity()}, nil
}

// Variant returns the header variant in use.
func (p *Packetizer) Variant() wire.Variant { return p.variant }

// ChunkTotal returns how many datagrams a payload of n bytes needs.
func (p *Packetizer) ChunkTotal(n int) int {
	return (n + p.capacity - 1) / p.capacity
}

// Packetize splits frame into datagrams. Every datagram repeats the chunk
// total so a receiver can size its buffer from whichever chunk lands first.
func (p *Packetizer) Packetize(seq uint32, frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	total := p.ChunkTotal(len(frame))
	if total > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	out := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * p.capacity
		end := min(start+p.capacity, len(frame))
		h := wire.Header{
			Variant:  p.variant,
			Sequence: seq,
			Index:    uint16(i),
			Total:    uint16(total),
		}
		if i == 0 {
			h.FrameType = wire.FrameTypeStart
		}
		buf := make([]byte, 0, p.variant.HeaderSize()+end-start)
		buf, err := wire.Append(buf, h, frame[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}
