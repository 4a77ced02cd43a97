package peer

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/transport"
)

// HostOptions configures a Host.
type HostOptions struct {
	Options
	// OnFramesOpen runs when the frames channel opens.
	OnFramesOpen func()
}

// Host answers one controller's offer and owns the channels it streams on.
type Host struct {
	*link
}

// NewHost creates the peer connection and the frames channel. The input
// channel is opened by the controller.
func NewHost(sig Signaler, opts HostOptions) (*Host, error) {
	log := logging.OrNop(opts.Log).Named("peer.host")
	l, err := newLink(sig, opts.Options, log)
	if err != nil {
		return nil, err
	}

	unordered, noRetransmits := false, uint16(0)
	framesDC, err := l.pc.CreateDataChannel(FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		l.Close()
		return nil, err
	}
	if opts.OnFramesOpen != nil {
		framesDC.OnOpen(opts.OnFramesOpen)
	}

	l.transport = transport.NewDataChannelTransport(framesDC, nil)
	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != InputLabel {
			log.Warn("unexpected data channel", zap.String("label", dc.Label()))
			return
		}
		l.transport.SetInputChannel(dc)
	})
	return &Host{link: l}, nil
}

// Dialer returns a Dialer whose connections write to the frames channel,
// whatever the target.
func (h *Host) Dialer() transport.Dialer {
	return transport.DialerFunc(func(context.Context, string) (transport.DatagramConn, error) {
		return h.transport, nil
	})
}

// HandleOffer applies a controller's offer and sends back the answer.
func (h *Host) HandleOffer(from string, payload json.RawMessage) error {
	h.setRemote(from)

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}
	if err := h.applyRemote(offer); err != nil {
		return err
	}
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	return h.sendDescription(h.sig.SendAnswer, &answer)
}
