package transfer

import "errors"

var (
	// ErrBusy is returned when an outbound transfer is already running.
	ErrBusy = errors.New("transfer: another transfer is in progress")
	// ErrSessionNotFound is returned for an unknown transfer id.
	ErrSessionNotFound = errors.New("transfer: session not found")
	// ErrHashMismatch is returned by Finalize when the received bytes do not
	// hash to the expected value. The temp file is kept.
	ErrHashMismatch = errors.New("transfer: sha256 mismatch")
	// ErrInvalidOffer is returned for a malformed handshake.
	ErrInvalidOffer = errors.New("transfer: invalid offer")
	// ErrChunkOutOfRange is returned for a chunk index past the file end.
	ErrChunkOutOfRange = errors.New("transfer: chunk index out of range")
	// ErrChunkSize is returned when a chunk's length does not match its slot.
	ErrChunkSize = errors.New("transfer: chunk has wrong length")
	// ErrChunkGap is returned for a chunk past an earlier rejected chunk.
	ErrChunkGap = errors.New("transfer: chunk follows a rejected chunk")
	// ErrDigestMismatch is returned when a side-channel chunk fails its digest.
	ErrDigestMismatch = errors.New("transfer: chunk digest mismatch")
	// ErrRejected is returned to a sender whose offer the receiver refused.
	ErrRejected = errors.New("transfer: rejected by receiver")

	// ErrTimeout marks an I/O deadline expiry mid-transfer. Resumable.
	ErrTimeout = errors.New("transfer: i/o timeout")
	// ErrPrematureClose marks a stream that ended before file_size bytes. Resumable.
	ErrPrematureClose = errors.New("transfer: connection closed before end of file")
	// ErrDisconnected marks any other connection failure mid-transfer. Resumable.
	ErrDisconnected = errors.New("transfer: connection lost")
)

// IsResumable reports whether err left a partial temp file that a later
// transfer with the same id can continue from.
func IsResumable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPrematureClose) ||
		errors.Is(err, ErrDisconnected)
}
