package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/transport"
)

// Controller offers a connection to one host. It opens the input channel
// and adopts the frames channel the host creates.
type Controller struct {
	*link
	hostID string
}

// NewController creates a Controller for hostID. Call Connect to send the
// offer.
func NewController(sig Signaler, hostID string, opts Options) (*Controller, error) {
	log := logging.OrNop(opts.Log).Named("peer.controller")
	l, err := newLink(sig, opts, log)
	if err != nil {
		return nil, err
	}
	l.setRemote(hostID)

	// Creating a channel before the offer puts the SCTP section in it.
	ordered := true
	inputDC, err := l.pc.CreateDataChannel(InputLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		l.Close()
		return nil, err
	}
	l.transport = transport.NewDataChannelTransport(nil, inputDC)

	l.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			log.Warn("unexpected data channel", zap.String("label", dc.Label()))
			return
		}
		log.Info("frames channel received")
		l.transport.SetFramesChannel(dc)
	})

	return &Controller{link: l, hostID: hostID}, nil
}

// Connect creates the offer and sends it to the host.
func (c *Controller) Connect() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return c.sendDescription(c.sig.SendOffer, &offer)
}

// HandleAnswer applies the host's answer.
func (c *Controller) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return c.applyRemote(answer)
}
