package fragment

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/junsooki/airdesk/internal/wire"
)

func payload(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func feed(t *testing.T, r *Reassembler, dgrams [][]byte) ([]byte, int) {
	t.Helper()
	var (
		frame     []byte
		completes int
	)
	for _, raw := range dgrams {
		d, err := wire.Parser{AcceptLegacy: true}.Parse(raw)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if f, ok := r.Add(d.Sequence, d.Index, d.Total, d.Payload); ok {
			frame = f
			completes++
		}
	}
	return frame, completes
}

func TestRoundTripAnyOrder(t *testing.T) {
	sizes := []int{1, 1387, 1388, 1389, 10_000, 500_000, 3 << 20}
	variants := []wire.Variant{wire.VariantH264, wire.VariantFrame, wire.VariantChunk, wire.VariantLegacy}

	for _, v := range variants {
		p, err := NewPacketizer(v)
		if err != nil {
			t.Fatalf("NewPacketizer(%v): %v", v, err)
		}
		for i, n := range sizes {
			in := payload(n, int64(i))
			dgrams, err := p.Packetize(uint32(i), in)
			if err != nil {
				t.Fatalf("%v/%d: Packetize: %v", v, n, err)
			}
			if want := (n + v.ChunkCapacity() - 1) / v.ChunkCapacity(); len(dgrams) != want {
				t.Fatalf("%v/%d: %d datagrams, want %d", v, n, len(dgrams), want)
			}
			rng := rand.New(rand.NewSource(int64(n)))
			rng.Shuffle(len(dgrams), func(a, b int) { dgrams[a], dgrams[b] = dgrams[b], dgrams[a] })

			out, completes := feed(t, NewReassembler(), dgrams)
			if completes != 1 {
				t.Fatalf("%v/%d: completed %d times", v, n, completes)
			}
			if !bytes.Equal(out, in) {
				t.Fatalf("%v/%d: reassembled bytes differ", v, n)
			}
		}
	}
}

func TestEveryDatagramFitsMTU(t *testing.T) {
	p, _ := NewPacketizer(wire.VariantH264)
	dgrams, err := p.Packetize(1, payload(100_000, 1))
	if err != nil {
		t.Fatalf("Packetize: %v", err)
	}
	for i, d := range dgrams {
		if len(d) > wire.MaxDatagramSize {
			t.Fatalf("datagram %d is %d bytes", i, len(d))
		}
		parsed, _ := wire.Parser{}.Parse(d)
		if int(parsed.Total) != len(dgrams) {
			t.Fatalf("datagram %d total = %d", i, parsed.Total)
		}
		if (i == 0) != (parsed.FrameType == wire.FrameTypeStart) {
			t.Fatalf("datagram %d frame type = %d", i, parsed.FrameType)
		}
	}
}

func TestPacketizeRejectsEmptyAndHuge(t *testing.T) {
	p, _ := NewPacketizer(wire.VariantFrame)
	if _, err := p.Packetize(0, nil); err != ErrEmptyFrame {
		t.Fatalf("err = %v, want ErrEmptyFrame", err)
	}
	huge := make([]byte, 65536*wire.VariantFrame.ChunkCapacity())
	if _, err := p.Packetize(0, huge); err == nil {
		t.Fatal("expected ErrFrameTooLarge")
	}
	if _, err := NewPacketizer(wire.VariantUnknown); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestStaleSequenceDiscarded(t *testing.T) {
	p, _ := NewPacketizer(wire.VariantH264)
	five := payload(5000, 5)
	six := payload(4000, 6)
	d5, _ := p.Packetize(5, five)
	d6, _ := p.Packetize(6, six)

	r := NewReassembler()
	if _, n := feed(t, r, d5[:2]); n != 0 {
		t.Fatal("sequence 5 completed early")
	}
	// One chunk of 6 evicts the partial 5.
	if _, n := feed(t, r, d6[:1]); n != 0 {
		t.Fatal("sequence 6 completed early")
	}
	if seq, received, total, ok := r.Pending(); !ok || seq != 6 || received != 1 || total != len(d6) {
		t.Fatalf("pending = %d %d/%d %v", seq, received, total, ok)
	}
	out, n := feed(t, r, d6[1:])
	if n != 1 || !bytes.Equal(out, six) {
		t.Fatal("sequence 6 not reassembled cleanly")
	}
}

func TestDuplicateChunkCountedOnce(t *testing.T) {
	p, _ := NewPacketizer(wire.VariantH264)
	in := payload(6*1388, 3)
	dgrams, _ := p.Packetize(9, in)

	r := NewReassembler()
	feed(t, r, [][]byte{dgrams[3], dgrams[3]})
	if _, received, _, _ := r.Pending(); received != 1 {
		t.Fatalf("received = %d after duplicate, want 1", received)
	}

	rest := append([][]byte{}, dgrams[:3]...)
	rest = append(rest, dgrams[4:]...)
	out, n := feed(t, r, rest)
	if n != 1 || !bytes.Equal(out, in) {
		t.Fatal("duplicate chunk changed the reassembled frame")
	}
	// A straggling duplicate after completion must not emit again.
	if _, n := feed(t, r, dgrams[:1]); n != 0 {
		t.Fatal("straggler re-emitted a completed frame")
	}
}

func TestInvalidChunksLeaveStateAlone(t *testing.T) {
	r := NewReassembler()
	r.Add(1, 0, 3, []byte("a"))

	if _, ok := r.Add(1, 0, 0, []byte("x")); ok {
		t.Fatal("total 0 accepted")
	}
	if _, ok := r.Add(2, 5, 3, []byte("x")); ok {
		t.Fatal("index past total accepted")
	}
	if _, ok := r.Add(1, 1, 4, []byte("x")); ok {
		t.Fatal("conflicting total accepted")
	}
	if seq, received, total, ok := r.Pending(); !ok || seq != 1 || received != 1 || total != 3 {
		t.Fatalf("pending = %d %d/%d %v", seq, received, total, ok)
	}

	r.Add(1, 2, 3, []byte("c"))
	out, ok := r.Add(1, 1, 3, []byte("b"))
	if !ok || string(out) != "abc" {
		t.Fatalf("out = %q, %v", out, ok)
	}

	r.Reset()
	if _, _, _, ok := r.Pending(); ok {
		t.Fatal("Reset left a pending frame")
	}
}
