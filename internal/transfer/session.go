// Package transfer moves files between the two ends with resumable,
// SHA-256 verified transfers. A receiver keeps each in-progress file as a
// "<transfer id>.tmp" sibling of its destination; the temp file's length is
// the resume point for the next attempt.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// DefaultChunkSize is the chunk size of the chunked protocol.
const DefaultChunkSize = 64 * 1024

// MaxChunkSize bounds a single chunk, compressed or not.
const MaxChunkSize = 8 << 20

// State is the lifecycle position of a Session.
type State int

const (
	StateInitialized State = iota
	StateReceiving
	StateSending
	StateVerifying
	StateCompleted
	StateFailed
	StateResumable
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateReceiving:
		return "receiving"
	case StateSending:
		return "sending"
	case StateVerifying:
		return "verifying"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateResumable:
		return "resumable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects how the receiver computes the resume point.
type Mode int

const (
	// ModeChunked receives indexed chunks; resume is rounded down to whole chunks.
	ModeChunked Mode = iota
	// ModeStream receives a sequential byte stream; resume is the byte length.
	ModeStream
)

// Offer describes a file before any bytes move. Both protocols start with it.
type Offer struct {
	TransferID string `json:"transferId" msgpack:"transfer_id"`
	FileName   string `json:"fileName" msgpack:"file_name"`
	FileSize   int64  `json:"fileSize" msgpack:"file_size"`
	ChunkSize  int    `json:"chunkSize,omitempty" msgpack:"chunk_size,omitempty"`
	SHA256     string `json:"sha256" msgpack:"sha256"`
}

// TotalChunks returns the number of chunks at the offer's chunk size.
func (o Offer) TotalChunks() int {
	if o.ChunkSize <= 0 {
		return 0
	}
	return int((o.FileSize + int64(o.ChunkSize) - 1) / int64(o.ChunkSize))
}

func (o Offer) validate(mode Mode) error {
	switch {
	case o.TransferID == "" || strings.ContainsAny(o.TransferID, `/\`) || o.TransferID == "." || o.TransferID == "..":
		return fmt.Errorf("%w: transfer id %q", ErrInvalidOffer, o.TransferID)
	case safeName(o.FileName) == "":
		return fmt.Errorf("%w: file name %q", ErrInvalidOffer, o.FileName)
	case o.FileSize < 0:
		return fmt.Errorf("%w: negative size", ErrInvalidOffer)
	case len(o.SHA256) != sha256.Size*2:
		return fmt.Errorf("%w: sha256 %q", ErrInvalidOffer, o.SHA256)
	case mode == ModeChunked && (o.ChunkSize <= 0 || o.ChunkSize > MaxChunkSize):
		return fmt.Errorf("%w: chunk size %d", ErrInvalidOffer, o.ChunkSize)
	}
	if _, err := hex.DecodeString(o.SHA256); err != nil {
		return fmt.Errorf("%w: sha256: %v", ErrInvalidOffer, err)
	}
	return nil
}

// Status is a read-only snapshot of a session.
type Status struct {
	TransferID  string
	FileName    string
	State       State
	Mode        Mode
	FileSize    int64
	BytesDone   int64
	ChunksDone  int
	TotalChunks int
}

// Session is the receiver-side state of one transfer.
type Session struct {
	mu        sync.Mutex
	offer     Offer
	mode      Mode
	state     State
	tmpPath   string
	finalPath string
	file      *os.File

	bytesDone  int64
	written    []bool
	chunksDone int
	// gap is the lowest rejected chunk still missing, or -1. The temp file
	// ends at the gap and later chunks are refused until it is filled.
	gap int
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		TransferID:  s.offer.TransferID,
		FileName:    s.offer.FileName,
		State:       s.state,
		Mode:        s.mode,
		FileSize:    s.offer.FileSize,
		BytesDone:   s.bytesDone,
		ChunksDone:  s.chunksDone,
		TotalChunks: s.offer.TotalChunks(),
	}
}

// writeChunk stores chunk index at index*chunkSize. Rewriting an index is
// allowed; the last write wins. A chunk of the wrong length is rejected.
func (s *Session) writeChunk(index int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("transfer %s: %w", s.offer.TransferID, os.ErrClosed)
	}
	total := s.offer.TotalChunks()
	if index < 0 || index >= total {
		return fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, index, total)
	}
	if s.gap >= 0 && index > s.gap {
		return fmt.Errorf("%w: chunk %d, missing %d", ErrChunkGap, index, s.gap)
	}
	off := int64(index) * int64(s.offer.ChunkSize)
	if want := min(int64(s.offer.ChunkSize), s.offer.FileSize-off); int64(len(data)) != want {
		err := fmt.Errorf("%w: chunk %d is %d bytes, want %d", ErrChunkSize, index, len(data), want)
		if terr := s.rejectLocked(index); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}
	if _, err := s.file.WriteAt(data, off); err != nil {
		return fmt.Errorf("transfer %s: write chunk %d: %w", s.offer.TransferID, index, err)
	}
	if index == s.gap {
		s.gap = -1
	}
	if !s.written[index] {
		s.written[index] = true
		s.chunksDone++
		s.bytesDone += int64(len(data))
	}
	s.state = StateReceiving
	return nil
}

// reject drops chunk index and everything after it, so the temp file length
// and the resume point fall back to that chunk.
func (s *Session) reject(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("transfer %s: %w", s.offer.TransferID, os.ErrClosed)
	}
	return s.rejectLocked(index)
}

func (s *Session) rejectLocked(index int) error {
	if index < 0 || index >= len(s.written) || (s.gap >= 0 && index >= s.gap) {
		return nil
	}
	off := int64(index) * int64(s.offer.ChunkSize)
	fi, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("transfer %s: stat: %w", s.offer.TransferID, err)
	}
	if fi.Size() > off {
		if err := s.file.Truncate(off); err != nil {
			return fmt.Errorf("transfer %s: truncate at chunk %d: %w", s.offer.TransferID, index, err)
		}
	}
	for i := index; i < len(s.written); i++ {
		if s.written[i] {
			s.written[i] = false
			s.chunksDone--
			s.bytesDone -= min(int64(s.offer.ChunkSize), s.offer.FileSize-int64(i)*int64(s.offer.ChunkSize))
		}
	}
	s.gap = index
	return nil
}

// writeNext appends stream bytes at the current offset.
func (s *Session) writeNext(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("transfer %s: %w", s.offer.TransferID, os.ErrClosed)
	}
	if s.bytesDone+int64(len(data)) > s.offer.FileSize {
		return fmt.Errorf("transfer %s: stream exceeds declared size %d", s.offer.TransferID, s.offer.FileSize)
	}
	if _, err := s.file.WriteAt(data, s.bytesDone); err != nil {
		return fmt.Errorf("transfer %s: write: %w", s.offer.TransferID, err)
	}
	s.bytesDone += int64(len(data))
	s.state = StateReceiving
	return nil
}

func (s *Session) remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offer.FileSize - s.bytesDone
}

// verify flushes the temp file and hashes it from the start.
func (s *Session) verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("transfer %s: %w", s.offer.TransferID, os.ErrClosed)
	}
	s.state = StateVerifying
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("transfer %s: sync: %w", s.offer.TransferID, err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := sha256.New()
	n, err := io.Copy(h, s.file)
	if err != nil {
		return fmt.Errorf("transfer %s: hash: %w", s.offer.TransferID, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if n != s.offer.FileSize || !strings.EqualFold(got, s.offer.SHA256) {
		s.state = StateFailed
		return fmt.Errorf("%w: %s has %d bytes hashing to %s, want %d bytes hashing to %s",
			ErrHashMismatch, s.offer.TransferID, n, got, s.offer.FileSize, s.offer.SHA256)
	}
	return nil
}

// closeFile syncs and closes the temp file, leaving it on disk.
func (s *Session) closeFile(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	serr := f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	return serr
}
