package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestChunkCodecs(t *testing.T) {
	raw := bytes.Repeat([]byte("remote desktop "), 4000)
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(string(c)+"/", func(t *testing.T) {
			msg, err := EncodeChunk("id", 7, raw, c)
			if err != nil {
				t.Fatalf("EncodeChunk: %v", err)
			}
			if c != CompressionNone && len(msg.Data) >= len(raw) {
				t.Fatalf("%s did not shrink repetitive data: %d >= %d", c, len(msg.Data), len(raw))
			}
			// The side channel carries the message as JSON.
			wireBytes, err := json.Marshal(msg)
			if err != nil {
				t.Fatal(err)
			}
			var back ChunkMessage
			if err := json.Unmarshal(wireBytes, &back); err != nil {
				t.Fatal(err)
			}
			got, err := back.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, raw) || back.Index != 7 || back.TransferID != "id" {
				t.Fatalf("decoded chunk differs")
			}
		})
	}
}

func TestZstdCodecsShared(t *testing.T) {
	if zstdEncoder == nil || zstdDecoder == nil {
		t.Fatal("zstd codecs not initialized")
	}
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := bytes.Repeat([]byte{byte(i)}, 10000+i)
			msg, err := EncodeChunk("id", i, raw, CompressionZstd)
			if err == nil {
				var got []byte
				if got, err = msg.Decode(); err == nil && !bytes.Equal(got, raw) {
					err = errors.New("round trip differs")
				}
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestChunkDigestMismatch(t *testing.T) {
	msg, err := EncodeChunk("id", 0, []byte("payload"), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	msg.Data = []byte("paYload")
	if _, err := msg.Decode(); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Decode = %v, want ErrDigestMismatch", err)
	}
}

func TestChunkUnknownEncoding(t *testing.T) {
	if _, err := EncodeChunk("id", 0, nil, "brotli"); err == nil {
		t.Fatal("EncodeChunk accepted unknown codec")
	}
	msg := ChunkMessage{Encoding: "brotli"}
	if _, err := msg.Decode(); err == nil {
		t.Fatal("Decode accepted unknown codec")
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("gzip accepted")
	}
}

func TestPrepareOfferAndReadChunk(t *testing.T) {
	data := testData(2500, 11)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	offer, err := PrepareOffer(path, "", 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := offerFor(offer.TransferID, "doc.pdf", data, 1000)
	if offer != want {
		t.Fatalf("offer = %+v, want %+v", offer, want)
	}
	if offer.TransferID == "" {
		t.Fatal("no transfer id generated")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	last, err := ReadChunk(f, offer, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(last, data[2000:]) {
		t.Fatalf("last chunk has %d bytes, want 500", len(last))
	}
	if _, err := ReadChunk(f, offer, 3); !errors.Is(err, ErrChunkOutOfRange) {
		t.Fatalf("ReadChunk(3) = %v", err)
	}
}

func TestPrepareOfferRejectsDirectory(t *testing.T) {
	if _, err := PrepareOffer(t.TempDir(), "", 0); err == nil {
		t.Fatal("directory accepted")
	}
}
