package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/events"
)

// ChunkTransport carries the chunked protocol over some side channel.
type ChunkTransport interface {
	// OfferTransfer announces offer and returns the receiver's resume point.
	OfferTransfer(ctx context.Context, offer Offer) (InitResult, error)
	// SendChunk delivers one chunk.
	SendChunk(ctx context.Context, msg ChunkMessage) error
	// FinishTransfer asks the receiver to verify and returns its final path.
	FinishTransfer(ctx context.Context, transferID string) (string, error)
}

// LocalTransport delivers chunks straight into a Manager in this process.
type LocalTransport struct {
	Manager *Manager
}

func (t LocalTransport) OfferTransfer(_ context.Context, offer Offer) (InitResult, error) {
	return t.Manager.Init(offer, ModeChunked)
}

func (t LocalTransport) SendChunk(_ context.Context, msg ChunkMessage) error {
	return t.Manager.ApplyChunk(msg)
}

func (t LocalTransport) FinishTransfer(_ context.Context, id string) (string, error) {
	return t.Manager.Finalize(id)
}

// ClientConfig configures outbound transfers.
type ClientConfig struct {
	ChunkSize   int
	Timeout     time.Duration
	Compression Compression
}

// DefaultClientConfig returns 64 KiB chunks, 30 s timeouts and no compression.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{ChunkSize: DefaultChunkSize, Timeout: DefaultTimeout}
}

// Result describes a finished outbound transfer.
type Result struct {
	TransferID  string
	RemotePath  string
	ResumedFrom int64
	BytesSent   int64
}

// Client sends files. At most one transfer runs at a time; a second
// request fails with ErrBusy instead of queueing.
type Client struct {
	cfg    ClientConfig
	log    *zap.Logger
	events events.Publisher
	busy   atomic.Bool
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	def := DefaultClientConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	o := buildOptions(opts)
	return &Client{cfg: cfg, log: o.log.Named("transfer.client"), events: o.events}
}

// Busy reports whether a transfer is running.
func (c *Client) Busy() bool { return c.busy.Load() }

func (c *Client) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

// Send streams the file at path to a direct-connection Server at addr. Pass
// the id of an interrupted transfer to resume it, or "" for a new one.
func (c *Client) Send(ctx context.Context, addr, path, id string) (Result, error) {
	if err := c.acquire(); err != nil {
		return Result{}, err
	}
	defer c.busy.Store(false)

	offer, err := PrepareOffer(path, id, c.cfg.ChunkSize)
	if err != nil {
		return Result{}, err
	}
	res, err := c.send(ctx, addr, path, offer)
	c.report(offer, res, err)
	return res, err
}

func (c *Client) send(ctx context.Context, addr, path string, offer Offer) (Result, error) {
	res := Result{TransferID: offer.TransferID}
	d := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return res, fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	if err := writeControl(conn, controlFrame{Type: msgHello, Offer: &offer}); err != nil {
		return res, c.ioErr(ctx, err)
	}
	reply, err := readControl(conn)
	if err != nil {
		return res, c.ioErr(ctx, err)
	}
	switch {
	case reply.Type == msgReject:
		return res, reply.err()
	case reply.Type != msgAccept:
		return res, fmt.Errorf("transfer: unexpected %q reply to hello", reply.Type)
	case reply.ResumeOffset < 0 || reply.ResumeOffset > offer.FileSize:
		return res, fmt.Errorf("transfer: receiver resume offset %d outside file of %d bytes", reply.ResumeOffset, offer.FileSize)
	}
	res.ResumedFrom = reply.ResumeOffset

	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()
	if _, err := f.Seek(reply.ResumeOffset, io.SeekStart); err != nil {
		return res, err
	}

	buf := make([]byte, copyBufferSize)
	var sinceProgress int64
	done := reply.ResumeOffset
	for done < offer.FileSize {
		n, rerr := f.Read(buf[:min(int64(len(buf)), offer.FileSize-done)])
		if n > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
			if _, err := conn.Write(buf[:n]); err != nil {
				return res, c.ioErr(ctx, err)
			}
			done += int64(n)
			res.BytesSent += int64(n)
			sinceProgress += int64(n)
			if sinceProgress >= progressEvery || done == offer.FileSize {
				sinceProgress = 0
				c.events.Publish(events.Event{Kind: events.KindTransferProgress, Payload: Progress{
					TransferID: offer.TransferID, FileName: offer.FileName, BytesDone: done, FileSize: offer.FileSize,
				}})
			}
		}
		if rerr != nil && done < offer.FileSize {
			return res, fmt.Errorf("transfer: read %s: %w", path, rerr)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	result, err := readControl(conn)
	if err != nil {
		return res, c.ioErr(ctx, err)
	}
	if err := result.err(); err != nil {
		return res, err
	}
	res.RemotePath = result.Path
	return res, nil
}

// Push sends the file at path over a chunked side channel.
func (c *Client) Push(ctx context.Context, t ChunkTransport, path, id string) (Result, error) {
	if err := c.acquire(); err != nil {
		return Result{}, err
	}
	defer c.busy.Store(false)

	offer, err := PrepareOffer(path, id, c.cfg.ChunkSize)
	if err != nil {
		return Result{}, err
	}
	res, err := c.push(ctx, t, path, offer)
	c.report(offer, res, err)
	return res, err
}

func (c *Client) push(ctx context.Context, t ChunkTransport, path string, offer Offer) (Result, error) {
	res := Result{TransferID: offer.TransferID}
	accepted, err := t.OfferTransfer(ctx, offer)
	if err != nil {
		return res, err
	}
	total := offer.TotalChunks()
	if accepted.ResumeChunk < 0 || accepted.ResumeChunk > total {
		return res, fmt.Errorf("transfer: receiver resume chunk %d outside %d chunks", accepted.ResumeChunk, total)
	}
	res.ResumedFrom = min(int64(accepted.ResumeChunk)*int64(offer.ChunkSize), offer.FileSize)

	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	for i := accepted.ResumeChunk; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		raw, err := ReadChunk(f, offer, i)
		if err != nil {
			return res, err
		}
		msg, err := EncodeChunk(offer.TransferID, i, raw, c.cfg.Compression)
		if err != nil {
			return res, err
		}
		if err := t.SendChunk(ctx, msg); err != nil {
			return res, fmt.Errorf("transfer: chunk %d: %w", i, err)
		}
		res.BytesSent += int64(len(raw))
		c.events.Publish(events.Event{Kind: events.KindTransferProgress, Payload: Progress{
			TransferID: offer.TransferID, FileName: offer.FileName,
			BytesDone: res.ResumedFrom + res.BytesSent, FileSize: offer.FileSize,
		}})
	}
	res.RemotePath, err = t.FinishTransfer(ctx, offer.TransferID)
	return res, err
}

func (c *Client) ioErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return classifyIO(err)
}

func (c *Client) report(offer Offer, res Result, err error) {
	log := c.log.With(zap.String("transfer_id", offer.TransferID), zap.String("file", offer.FileName))
	if err == nil {
		log.Info("transfer sent", zap.Int64("bytes", res.BytesSent), zap.Int64("resumed_from", res.ResumedFrom))
		c.events.Publish(events.Event{Kind: events.KindTransferComplete, Payload: Completed{
			TransferID: offer.TransferID, Path: res.RemotePath, FileSize: offer.FileSize,
		}})
		return
	}
	resumable := IsResumable(err) || errors.Is(err, context.Canceled)
	log.Warn("transfer failed", zap.Bool("resumable", resumable), zap.Error(err))
	c.events.Publish(events.Event{Kind: events.KindTransferFailed, Payload: Failed{
		TransferID: offer.TransferID, Err: err, Resumable: resumable,
	}})
}
