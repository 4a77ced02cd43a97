package transfer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compression names the codec applied to a side-channel chunk.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression accepts "none", "zstd" and "lz4".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return "", fmt.Errorf("transfer: unknown compression %q", s)
}

// Shared zstd codecs; both are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("transfer: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxChunkSize))
	if err != nil {
		panic("transfer: zstd decoder initialization failed: " + err.Error())
	}
}

// ChunkMessage is one chunk on the signaling side channel. Data is base64
// in JSON. Digest is the BLAKE3 of the uncompressed bytes.
type ChunkMessage struct {
	TransferID string      `json:"transferId"`
	Index      int         `json:"index"`
	Encoding   Compression `json:"encoding,omitempty"`
	Digest     string      `json:"digest"`
	Data       []byte      `json:"data"`
}

// EncodeChunk compresses raw with c and records its digest.
func EncodeChunk(id string, index int, raw []byte, c Compression) (ChunkMessage, error) {
	sum := blake3.Sum256(raw)
	msg := ChunkMessage{
		TransferID: id,
		Index:      index,
		Encoding:   c,
		Digest:     hex.EncodeToString(sum[:]),
	}
	switch c {
	case CompressionNone:
		msg.Data = raw
	case CompressionZstd:
		msg.Data = zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return ChunkMessage{}, fmt.Errorf("transfer: lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return ChunkMessage{}, fmt.Errorf("transfer: lz4: %w", err)
		}
		msg.Data = buf.Bytes()
	default:
		return ChunkMessage{}, fmt.Errorf("transfer: unknown compression %q", c)
	}
	return msg, nil
}

// Decode returns the chunk's uncompressed bytes after checking the digest.
func (m ChunkMessage) Decode() ([]byte, error) {
	if len(m.Data) > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrChunkSize, len(m.Data))
	}
	var raw []byte
	switch m.Encoding {
	case CompressionNone:
		raw = m.Data
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(m.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("transfer: chunk %d: zstd: %w", m.Index, err)
		}
		raw = out
	case CompressionLZ4:
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(m.Data)), MaxChunkSize+1))
		if err != nil {
			return nil, fmt.Errorf("transfer: chunk %d: lz4: %w", m.Index, err)
		}
		raw = out
	default:
		return nil, fmt.Errorf("transfer: chunk %d: unknown compression %q", m.Index, m.Encoding)
	}
	if len(raw) > MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk %d expands past %d bytes", ErrChunkSize, m.Index, MaxChunkSize)
	}
	sum := blake3.Sum256(raw)
	if hex.EncodeToString(sum[:]) != m.Digest {
		return nil, fmt.Errorf("%w: chunk %d of %s", ErrDigestMismatch, m.Index, m.TransferID)
	}
	return raw, nil
}

// PrepareOffer hashes the file at path and describes it. An empty id gets a
// fresh UUID; reuse an earlier id to resume.
func PrepareOffer(path, id string, chunkSize int) (Offer, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	f, err := os.Open(path)
	if err != nil {
		return Offer{}, fmt.Errorf("transfer: open %s: %w", path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Offer{}, err
	}
	if !fi.Mode().IsRegular() {
		return Offer{}, fmt.Errorf("transfer: %s is not a regular file", path)
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Offer{}, fmt.Errorf("transfer: hash %s: %w", path, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return Offer{
		TransferID: id,
		FileName:   filepath.Base(path),
		FileSize:   fi.Size(),
		ChunkSize:  chunkSize,
		SHA256:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// ReadChunk reads chunk index of an offered file.
func ReadChunk(r io.ReaderAt, offer Offer, index int) ([]byte, error) {
	total := offer.TotalChunks()
	if index < 0 || index >= total {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, index, total)
	}
	off := int64(index) * int64(offer.ChunkSize)
	buf := make([]byte, min(int64(offer.ChunkSize), offer.FileSize-off))
	if n, err := r.ReadAt(buf, off); n != len(buf) {
		return nil, fmt.Errorf("transfer: read chunk %d: short read: %w", index, err)
	}
	return buf, nil
}
