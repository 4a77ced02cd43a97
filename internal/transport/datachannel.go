package transport

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// maxBufferedFrames bounds how much frame data may queue inside the SCTP
// stack. Beyond it new datagrams are refused, matching UDP drop semantics.
const maxBufferedFrames = 1 << 20

var (
	ErrChannelNotReady = errors.New("data channel not open")
	ErrCongested       = errors.New("data channel congested")
)

var _ DatagramConn = (*DataChannelTransport)(nil)

// DataChannelTransport carries frame datagrams and input events over WebRTC
// DataChannels. The frames channel is unordered with no retransmits, so it
// behaves like a UDP socket.
type DataChannelTransport struct {
	mu       sync.RWMutex
	framesDC *webrtc.DataChannel
	inputDC  *webrtc.DataChannel

	onDatagram func(data []byte)
	onInput    func(data []byte)
}

// NewDataChannelTransport wraps two DataChannels (frames + input).
func NewDataChannelTransport(framesDC, inputDC *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{}
	if framesDC != nil {
		t.SetFramesChannel(framesDC)
	}
	if inputDC != nil {
		t.SetInputChannel(inputDC)
	}
	return t
}

// Send implements DatagramSender on the frames channel.
func (t *DataChannelTransport) Send(data []byte) error {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotReady
	}
	if dc.BufferedAmount() > maxBufferedFrames {
		return ErrCongested
	}
	return dc.Send(data)
}

// Close is a no-op; the peer connection owns the channels.
func (t *DataChannelTransport) Close() error { return nil }

// SendInput writes one encoded input event to the input channel.
func (t *DataChannelTransport) SendInput(data []byte) error {
	t.mu.RLock()
	dc := t.inputDC
	t.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotReady
	}
	return dc.Send(data)
}

// OnDatagram registers the callback for frame datagrams.
func (t *DataChannelTransport) OnDatagram(cb func(data []byte)) {
	t.mu.Lock()
	t.onDatagram = cb
	t.mu.Unlock()
}

// OnInput registers the callback for input events.
func (t *DataChannelTransport) OnInput(cb func(data []byte)) {
	t.mu.Lock()
	t.onInput = cb
	t.mu.Unlock()
}

// SetFramesChannel sets or replaces the frames DataChannel (used when receiving negotiated channels).
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.RLock()
		cb := t.onDatagram
		t.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}

// SetInputChannel sets or replaces the input DataChannel.
func (t *DataChannelTransport) SetInputChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.inputDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.RLock()
		cb := t.onInput
		t.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}
