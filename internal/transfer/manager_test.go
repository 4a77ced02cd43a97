package transfer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testData(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func offerFor(id, name string, data []byte, chunk int) Offer {
	sum := sha256.Sum256(data)
	return Offer{
		TransferID: id,
		FileName:   name,
		FileSize:   int64(len(data)),
		ChunkSize:  chunk,
		SHA256:     hex.EncodeToString(sum[:]),
	}
}

func writeChunks(t *testing.T, m *Manager, offer Offer, data []byte, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		raw, err := ReadChunk(bytes.NewReader(data), offer, i)
		if err != nil {
			t.Fatalf("ReadChunk(%d): %v", i, err)
		}
		if err := m.WriteChunk(offer.TransferID, i, raw); err != nil {
			t.Fatalf("WriteChunk(%d): %v", i, err)
		}
	}
}

func TestResumeAfterRestart(t *testing.T) {
	const size, chunk = 500000, 65536
	dir := t.TempDir()
	data := testData(size, 1)
	offer := offerFor("t-resume", "payload.bin", data, chunk)
	if got := offer.TotalChunks(); got != 8 {
		t.Fatalf("total chunks = %d, want 8", got)
	}

	m := NewManager(dir)
	res, err := m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if res.ResumeChunk != 0 || res.ResumeOffset != 0 {
		t.Fatalf("fresh init resumed at %+v", res)
	}
	writeChunks(t, m, offer, data, 0, 3)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m = NewManager(dir)
	res, err = m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatalf("Init after restart: %v", err)
	}
	if res.ResumeChunk != 3 || res.ResumeOffset != 3*chunk {
		t.Fatalf("resume = %+v, want chunk 3 at %d", res, 3*chunk)
	}
	st, err := m.Status(offer.TransferID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ChunksDone != 3 || st.BytesDone != 3*chunk {
		t.Fatalf("status after resume = %+v", st)
	}

	writeChunks(t, m, offer, data, 3, 8)
	path, err := m.Finalize(offer.TransferID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if path != filepath.Join(dir, "payload.bin") {
		t.Fatalf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if sha256.Sum256(got) != sha256.Sum256(data) {
		t.Fatal("finalized file hash differs from source")
	}
	if _, err := os.Stat(filepath.Join(dir, "t-resume.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file still present: %v", err)
	}
	if _, err := m.Status(offer.TransferID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session kept after finalize: %v", err)
	}
}

func TestResumePointByMode(t *testing.T) {
	const chunk = 1000
	dir := t.TempDir()
	data := testData(5500, 2)
	offer := offerFor("t-mode", "f.bin", data, chunk)
	if err := os.WriteFile(filepath.Join(dir, "t-mode.tmp"), data[:3100], 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	res, err := m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeChunk != 3 || res.ResumeOffset != 3000 {
		t.Fatalf("chunked resume = %+v, want chunk 3 at 3000", res)
	}

	res, err = m.Init(offer, ModeStream)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeOffset != 3100 {
		t.Fatalf("stream resume offset = %d, want 3100", res.ResumeOffset)
	}
	m.Close()
}

func TestResumeOfCompleteTempFile(t *testing.T) {
	dir := t.TempDir()
	data := testData(2500, 3)
	offer := offerFor("t-full", "f.bin", data, 1000)
	if err := os.WriteFile(filepath.Join(dir, "t-full.tmp"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(dir)
	res, err := m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeChunk != 3 || res.ResumeOffset != 2500 {
		t.Fatalf("resume = %+v, want all 3 chunks", res)
	}
	if _, err := m.Finalize(offer.TransferID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestInitDiscardsOversizedTemp(t *testing.T) {
	dir := t.TempDir()
	data := testData(100, 4)
	offer := offerFor("t-big", "f.bin", data, 64)
	tmp := filepath.Join(dir, "t-big.tmp")
	if err := os.WriteFile(tmp, testData(500, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(dir)
	defer m.Close()
	res, err := m.Init(offer, ModeStream)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeOffset != 0 {
		t.Fatalf("resume offset = %d, want 0", res.ResumeOffset)
	}
	if fi, err := os.Stat(tmp); err != nil || fi.Size() != 0 {
		t.Fatalf("temp file not truncated: %v %v", fi, err)
	}
}

func TestHashMismatchKeepsTemp(t *testing.T) {
	dir := t.TempDir()
	data := testData(3000, 6)
	offer := offerFor("t-bad", "f.bin", data, 1000)
	m := NewManager(dir)
	defer m.Close()
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), data...)
	corrupt[1500] ^= 0xff
	writeChunks(t, m, offer, corrupt, 0, 3)

	if _, err := m.Finalize(offer.TransferID); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("Finalize error = %v, want ErrHashMismatch", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "t-bad.tmp")); err != nil {
		t.Fatalf("temp file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "f.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("final file created: %v", err)
	}
	st, err := m.Status(offer.TransferID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateFailed {
		t.Fatalf("state = %v, want failed", st.State)
	}

	// Rewriting the bad chunk repairs the file.
	writeChunks(t, m, offer, data, 1, 2)
	if _, err := m.Finalize(offer.TransferID); err != nil {
		t.Fatalf("Finalize after repair: %v", err)
	}
}

func TestOutOfOrderAndRepeatedChunks(t *testing.T) {
	dir := t.TempDir()
	data := testData(4321, 7)
	offer := offerFor("t-order", "f.bin", data, 1000)
	m := NewManager(dir)
	defer m.Close()
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{4, 2, 0, 2, 3, 1, 4} {
		writeChunks(t, m, offer, data, i, i+1)
	}
	st, _ := m.Status(offer.TransferID)
	if st.ChunksDone != 5 || st.BytesDone != 4321 {
		t.Fatalf("status = %+v", st)
	}
	if _, err := m.Finalize(offer.TransferID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestWriteChunkRejects(t *testing.T) {
	dir := t.TempDir()
	data := testData(2500, 8)
	offer := offerFor("t-rej", "f.bin", data, 1000)
	m := NewManager(dir)
	defer m.Close()
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteChunk("nope", 0, data[:1000]); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown id: %v", err)
	}
	if err := m.WriteChunk("t-rej", 3, data[:1000]); !errors.Is(err, ErrChunkOutOfRange) {
		t.Errorf("index 3: %v", err)
	}
	if err := m.WriteChunk("t-rej", 2, data[:1000]); !errors.Is(err, ErrChunkSize) {
		t.Errorf("oversized last chunk: %v", err)
	}
	if err := m.WriteChunk("t-rej", 0, data[:999]); !errors.Is(err, ErrChunkSize) {
		t.Errorf("short chunk: %v", err)
	}
}

func TestCancelRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	data := testData(2000, 9)
	offer := offerFor("t-cancel", "f.bin", data, 1000)
	m := NewManager(dir)
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	writeChunks(t, m, offer, data, 0, 1)
	if err := m.Cancel("t-cancel"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "t-cancel.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file survived cancel: %v", err)
	}
	if err := m.Cancel("t-cancel"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestSuspendKeepsTemp(t *testing.T) {
	dir := t.TempDir()
	data := testData(2000, 10)
	offer := offerFor("t-susp", "f.bin", data, 1000)
	m := NewManager(dir)
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	writeChunks(t, m, offer, data, 0, 1)
	if err := m.Suspend("t-susp"); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(filepath.Join(dir, "t-susp.tmp"))
	if err != nil || fi.Size() != 1000 {
		t.Fatalf("temp after suspend: %v %v", fi, err)
	}
}

func TestInitRejectsInvalidOffer(t *testing.T) {
	good := offerFor("ok", "f.bin", []byte("x"), 1000)
	cases := map[string]func(*Offer){
		"empty id":      func(o *Offer) { o.TransferID = "" },
		"id with slash": func(o *Offer) { o.TransferID = "../escape" },
		"dot-dot name":  func(o *Offer) { o.FileName = ".." },
		"short hash":    func(o *Offer) { o.SHA256 = "abc" },
		"non-hex hash":  func(o *Offer) { o.SHA256 = string(bytes.Repeat([]byte("z"), 64)) },
		"negative size": func(o *Offer) { o.FileSize = -1 },
		"zero chunk":    func(o *Offer) { o.ChunkSize = 0 },
	}
	m := NewManager(t.TempDir())
	defer m.Close()
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := good
			mutate(&o)
			if _, err := m.Init(o, ModeChunked); !errors.Is(err, ErrInvalidOffer) {
				t.Fatalf("Init = %v, want ErrInvalidOffer", err)
			}
		})
	}
}

func TestFileNameIsConfinedToDir(t *testing.T) {
	dir := t.TempDir()
	data := []byte("hello")
	offer := offerFor("t-name", "../../etc/evil.txt", data, 1000)
	m := NewManager(dir)
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	writeChunks(t, m, offer, data, 0, 1)
	path, err := m.Finalize("t-name")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "evil.txt") {
		t.Fatalf("path = %q", path)
	}
}

func TestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	offer := offerFor("t-empty", "empty", nil, 1000)
	m := NewManager(dir)
	res, err := m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeChunk != 0 {
		t.Fatalf("resume = %+v", res)
	}
	if _, err := m.Finalize("t-empty"); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestRejectedChunkIsResent(t *testing.T) {
	const size, chunk = 500000, 65536
	dir := t.TempDir()
	data := testData(size, 11)
	offer := offerFor("t-resend", "payload.bin", data, chunk)
	total := offer.TotalChunks()

	m := NewManager(dir)
	defer m.Close()
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	send := func(from int, corrupt int) {
		t.Helper()
		for i := from; i < total; i++ {
			raw, err := ReadChunk(bytes.NewReader(data), offer, i)
			if err != nil {
				t.Fatal(err)
			}
			msg, err := EncodeChunk(offer.TransferID, i, raw, CompressionZstd)
			if err != nil {
				t.Fatal(err)
			}
			if i == corrupt {
				msg.Digest = strings.Repeat("0", len(msg.Digest))
			}
			err = m.ApplyChunk(msg)
			switch {
			case i == corrupt && !errors.Is(err, ErrDigestMismatch):
				t.Fatalf("chunk %d: %v, want ErrDigestMismatch", i, err)
			case corrupt >= 0 && i > corrupt && !errors.Is(err, ErrChunkGap):
				t.Fatalf("chunk %d: %v, want ErrChunkGap", i, err)
			case (corrupt < 0 || i < corrupt) && err != nil:
				t.Fatalf("chunk %d: %v", i, err)
			}
		}
	}
	send(0, 2)

	fi, err := os.Stat(filepath.Join(dir, "t-resend.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 2*chunk {
		t.Fatalf("temp size = %d, want %d", fi.Size(), 2*chunk)
	}
	if _, err := m.Finalize(offer.TransferID); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("Finalize = %v, want ErrHashMismatch", err)
	}
	if err := m.Suspend(offer.TransferID); err != nil {
		t.Fatal(err)
	}

	res, err := m.Init(offer, ModeChunked)
	if err != nil {
		t.Fatal(err)
	}
	if res.ResumeChunk != 2 || res.ResumeOffset != 2*chunk {
		t.Fatalf("resume = %+v, want chunk 2", res)
	}
	send(res.ResumeChunk, -1)
	path, err := m.Finalize(offer.TransferID)
	if err != nil {
		t.Fatalf("Finalize after resend: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("resent file differs")
	}
}

func TestRejectedChunkRewrittenInPlace(t *testing.T) {
	dir := t.TempDir()
	data := testData(3500, 12)
	offer := offerFor("t-refill", "f.bin", data, 1000)
	m := NewManager(dir)
	defer m.Close()
	if _, err := m.Init(offer, ModeChunked); err != nil {
		t.Fatal(err)
	}
	writeChunks(t, m, offer, data, 0, 3)
	if err := m.WriteChunk(offer.TransferID, 1, data[:10]); !errors.Is(err, ErrChunkSize) {
		t.Fatalf("short chunk: %v", err)
	}
	st, _ := m.Status(offer.TransferID)
	if st.ChunksDone != 1 || st.BytesDone != 1000 {
		t.Fatalf("status after reject = %+v", st)
	}
	if err := m.WriteChunk(offer.TransferID, 3, data[3000:]); !errors.Is(err, ErrChunkGap) {
		t.Fatalf("chunk past gap: %v", err)
	}

	// Filling the gap lets the rest through.
	writeChunks(t, m, offer, data, 1, 4)
	if _, err := m.Finalize(offer.TransferID); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}
