package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Control frames on the direct connection are a 4-byte big-endian length
// followed by a msgpack map. File bytes follow the accept frame raw.
const (
	lengthPrefixSize = 4
	maxControlFrame  = 64 * 1024
)

const (
	msgHello  = "hello"
	msgAccept = "accept"
	msgReject = "reject"
	msgResult = "result"
)

type controlFrame struct {
	Type         string `msgpack:"type"`
	Offer        *Offer `msgpack:"offer,omitempty"`
	ResumeOffset int64  `msgpack:"resume_offset,omitempty"`
	Path         string `msgpack:"path,omitempty"`
	Error        string `msgpack:"error,omitempty"`
	Code         string `msgpack:"code,omitempty"`
}

const codeHashMismatch = "hash_mismatch"

// err turns a result or reject frame back into an error.
func (f controlFrame) err() error {
	if f.Error == "" {
		return nil
	}
	if f.Code == codeHashMismatch {
		return fmt.Errorf("%w: receiver: %s", ErrHashMismatch, f.Error)
	}
	if f.Type == msgReject {
		return fmt.Errorf("%w: %s", ErrRejected, f.Error)
	}
	return fmt.Errorf("transfer: receiver: %s", f.Error)
}

var errControlTooLarge = errors.New("transfer: control frame too large")

func writeControl(w io.Writer, f controlFrame) error {
	payload, err := msgpack.Marshal(&f)
	if err != nil {
		return fmt.Errorf("transfer: encode %s frame: %w", f.Type, err)
	}
	if len(payload) > maxControlFrame {
		return errControlTooLarge
	}
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	_, err = w.Write(buf)
	return err
}

func readControl(r io.Reader) (controlFrame, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return controlFrame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxControlFrame {
		return controlFrame{}, fmt.Errorf("%w: %d bytes", errControlTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return controlFrame{}, err
	}
	var f controlFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return controlFrame{}, fmt.Errorf("transfer: decode control frame: %w", err)
	}
	return f, nil
}
