package fragment

import "sync"

// Reassembler rebuilds frames from chunks. Only the most recently seen
// sequence is tracked: a chunk for any other sequence discards whatever
// partial frame was held. Late chunks of an older frame therefore restart
// assembly for that older sequence and are eventually superseded too.
type Reassembler struct {
	mu       sync.Mutex
	active   bool
	done     bool // sequence was emitted; its stragglers are ignored
	sequence uint32
	slots    [][]byte
	received int
	size     int
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Add stores one chunk and returns the assembled frame once every chunk of
// the sequence has arrived. Invalid chunks (total of zero, index past total,
// or a total disagreeing with the tracked frame) are ignored and leave the
// state untouched. Duplicate chunks are ignored, including stragglers of the
// frame that was just returned.
func (r *Reassembler) Add(seq uint32, index, total uint16, payload []byte) ([]byte, bool) {
	if total == 0 || index >= total {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done && seq == r.sequence {
		return nil, false
	}
	if !r.active || seq != r.sequence {
		r.reset(seq, int(total))
	} else if int(total) != len(r.slots) {
		return nil, false
	}

	if r.slots[index] != nil {
		return nil, false
	}
	chunk := make([]byte, len(payload))
	copy(chunk, payload)
	r.slots[index] = chunk
	r.received++
	r.size += len(chunk)

	if r.received < len(r.slots) {
		return nil, false
	}

	frame := make([]byte, 0, r.size)
	for _, s := range r.slots {
		frame = append(frame, s...)
	}
	r.clear()
	r.done = true
	return frame, true
}

// Pending reports the tracked sequence and how many of its chunks are held.
func (r *Reassembler) Pending() (seq uint32, received, total int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence, r.received, len(r.slots), r.active
}

// Reset drops any partial frame and forgets the last sequence.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	r.clear()
	r.done = false
	r.mu.Unlock()
}

func (r *Reassembler) reset(seq uint32, total int) {
	r.active = true
	r.done = false
	r.sequence = seq
	r.slots = make([][]byte, total)
	r.received = 0
	r.size = 0
}

func (r *Reassembler) clear() {
	r.active = false
	r.slots = nil
	r.received = 0
	r.size = 0
}
