package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/transfer"
)

// ServeTransfers stores chunked transfers offered by peers in m and answers
// them over this connection.
func (c *Client) ServeTransfers(m *transfer.Manager) {
	c.waitersMu.Lock()
	c.transfers = m
	c.waitersMu.Unlock()
}

func (c *Client) handleTransfer(msg Message) {
	c.waitersMu.Lock()
	m := c.transfers
	c.waitersMu.Unlock()
	if m == nil {
		c.log.Debug("ignoring transfer message", zap.String("type", msg.Type), zap.String("from", msg.From))
		return
	}

	switch msg.Type {
	case TypeTransferOffer:
		var offer transfer.Offer
		reply := TransferReply{}
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			reply.Error = fmt.Sprintf("decode offer: %v", err)
		} else {
			reply.TransferID = offer.TransferID
			res, err := m.Init(offer, transfer.ModeChunked)
			if err != nil {
				reply.Error = err.Error()
			}
			reply.ResumeOffset, reply.ResumeChunk = res.ResumeOffset, res.ResumeChunk
		}
		c.reply(TypeTransferAccept, msg.From, reply)

	case TypeTransferChunk:
		var chunk transfer.ChunkMessage
		if err := json.Unmarshal(msg.Payload, &chunk); err != nil {
			c.log.Warn("decode transfer chunk", zap.String("from", msg.From), zap.Error(err))
			return
		}
		// A rejected chunk cuts the temp file back to it. Finalize then
		// fails on length and the sender's retry resumes from that chunk.
		if err := m.ApplyChunk(chunk); err != nil {
			lvl := zap.WarnLevel
			if errors.Is(err, transfer.ErrChunkGap) {
				lvl = zap.DebugLevel
			}
			c.log.Log(lvl, "transfer chunk rejected",
				zap.String("transfer_id", chunk.TransferID), zap.Int("index", chunk.Index), zap.Error(err))
		}

	case TypeTransferFinish:
		var fin TransferFinish
		reply := TransferReply{}
		if err := json.Unmarshal(msg.Payload, &fin); err != nil {
			reply.Error = fmt.Sprintf("decode finish: %v", err)
		} else {
			reply.TransferID = fin.TransferID
			path, err := m.Finalize(fin.TransferID)
			if err != nil {
				reply.Error = err.Error()
				if errors.Is(err, transfer.ErrHashMismatch) {
					_ = m.Suspend(fin.TransferID)
				}
			}
			reply.Path = path
		}
		c.reply(TypeTransferResult, msg.From, reply)
	}
}

func (c *Client) reply(typ, target string, r TransferReply) {
	if err := c.sendPayload(typ, target, r); err != nil {
		c.log.Warn("sending transfer reply", zap.String("type", typ), zap.String("transfer_id", r.TransferID), zap.Error(err))
	}
}

func (c *Client) deliverReply(msg Message) {
	var r TransferReply
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		c.log.Warn("decode transfer reply", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	c.waitersMu.Lock()
	ch, ok := c.waiters[waiterKey{msg.Type, r.TransferID}]
	c.waitersMu.Unlock()
	if !ok {
		c.log.Debug("unsolicited transfer reply", zap.String("type", msg.Type), zap.String("transfer_id", r.TransferID))
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// request sends a transfer message and waits for the reply of kind for id.
func (c *Client) request(ctx context.Context, typ, kind, target, id string, payload any) (TransferReply, error) {
	key := waiterKey{kind, id}
	ch := make(chan TransferReply, 1)
	c.waitersMu.Lock()
	c.waiters[key] = ch
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, key)
		c.waitersMu.Unlock()
	}()

	if err := c.sendPayload(typ, target, payload); err != nil {
		return TransferReply{}, err
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return TransferReply{}, fmt.Errorf("%w: waiting for %s: %w", transfer.ErrTimeout, kind, ctx.Err())
	case <-c.done:
		return TransferReply{}, fmt.Errorf("%w: signaling closed", transfer.ErrDisconnected)
	}
}

// TransferTo returns a ChunkTransport that pushes files to target.
func (c *Client) TransferTo(target string) transfer.ChunkTransport {
	return &chunkChannel{c: c, target: target}
}

type chunkChannel struct {
	c      *Client
	target string
}

func (ch *chunkChannel) OfferTransfer(ctx context.Context, offer transfer.Offer) (transfer.InitResult, error) {
	r, err := ch.c.request(ctx, TypeTransferOffer, TypeTransferAccept, ch.target, offer.TransferID, offer)
	if err != nil {
		return transfer.InitResult{}, err
	}
	if r.Error != "" {
		return transfer.InitResult{}, fmt.Errorf("%w: %s", transfer.ErrRejected, r.Error)
	}
	return transfer.InitResult{ResumeOffset: r.ResumeOffset, ResumeChunk: r.ResumeChunk}, nil
}

func (ch *chunkChannel) SendChunk(_ context.Context, msg transfer.ChunkMessage) error {
	if err := ch.c.sendPayload(TypeTransferChunk, ch.target, msg); err != nil {
		return fmt.Errorf("%w: %w", transfer.ErrDisconnected, err)
	}
	return nil
}

func (ch *chunkChannel) FinishTransfer(ctx context.Context, id string) (string, error) {
	r, err := ch.c.request(ctx, TypeTransferFinish, TypeTransferResult, ch.target, id, TransferFinish{TransferID: id})
	if err != nil {
		return "", err
	}
	if r.Error != "" {
		return "", fmt.Errorf("transfer: receiver: %s", r.Error)
	}
	return r.Path, nil
}
