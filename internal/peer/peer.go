// Package peer sets up the WebRTC connection between host and controller.
// Two data channels carry the session: "frames", created by the host,
// unordered with no retransmits so frame datagrams see UDP-like loss, and
// "input", created by the controller, ordered and reliable.
package peer

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/transport"
)

const (
	FramesLabel = "frames"
	InputLabel  = "input"
)

// DefaultICEServers is used when ICEServers is nil. A non-nil empty list
// disables STUN.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

// Signaler relays session descriptions and candidates to the remote peer.
// *signaling.Client implements it.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

// Options configures either side of a connection.
type Options struct {
	ICEServers []string
	Log        *zap.Logger
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-machine use.
	IncludeLoopback bool
	// OnEnded runs once when the connection fails or closes.
	OnEnded func()
}

// NewPeerConnection creates a configured PeerConnection. onState, if set,
// sees every connection state change.
func NewPeerConnection(opts Options, log *zap.Logger, onState func(webrtc.PeerConnectionState)) (*webrtc.PeerConnection, error) {
	urls := opts.ICEServers
	if urls == nil {
		urls = DefaultICEServers
	}
	var cfg webrtc.Configuration
	if len(urls) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: urls}}
	}

	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(opts.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("peer connection state", zap.Stringer("state", state))
		if onState != nil {
			onState(state)
		}
	})
	return pc, nil
}

// Ended reports whether state is terminal.
func Ended(state webrtc.PeerConnectionState) bool {
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
		return true
	}
	return false
}

// link is the state shared by Host and Controller: the peer connection,
// trickled candidates in both directions and the data channel transport.
type link struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	log       *zap.Logger
	transport *transport.DataChannelTransport

	mu       sync.Mutex
	remote   string
	haveSDP  bool
	sentSDP  bool
	pending  []webrtc.ICECandidateInit
	outgoing []json.RawMessage
	ended    sync.Once
}

func newLink(sig Signaler, opts Options, log *zap.Logger) (*link, error) {
	l := &link{sig: sig, log: log}
	pc, err := NewPeerConnection(opts, log, func(s webrtc.PeerConnectionState) {
		if Ended(s) && opts.OnEnded != nil {
			l.ended.Do(opts.OnEnded)
		}
	})
	if err != nil {
		return nil, err
	}
	l.pc = pc
	pc.OnICECandidate(l.sendCandidate)
	return l, nil
}

func (l *link) setRemote(id string) {
	l.mu.Lock()
	l.remote = id
	l.mu.Unlock()
}

func (l *link) remoteID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote
}

// sendCandidate trickles a local candidate. Candidates gathered before the
// local description went out are held so the remote side never sees a
// candidate ahead of the offer or answer.
func (l *link) sendCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		l.log.Warn("marshal ICE candidate", zap.Error(err))
		return
	}
	l.mu.Lock()
	if !l.sentSDP {
		l.outgoing = append(l.outgoing, data)
		l.mu.Unlock()
		return
	}
	target := l.remote
	l.mu.Unlock()
	l.trickle(target, data)
}

func (l *link) trickle(target string, data json.RawMessage) {
	if err := l.sig.SendICECandidate(target, data); err != nil {
		l.log.Debug("send ICE candidate", zap.Error(err))
	}
}

// sendDescription sends the local offer or answer, then any candidates held
// back while it was pending.
func (l *link) sendDescription(send func(string, json.RawMessage) error, desc *webrtc.SessionDescription) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	target := l.remoteID()
	if err := send(target, data); err != nil {
		return err
	}
	l.mu.Lock()
	l.sentSDP = true
	held := l.outgoing
	l.outgoing = nil
	l.mu.Unlock()
	for _, c := range held {
		l.trickle(target, c)
	}
	return nil
}

// applyRemote sets the remote description and then adds any candidates
// that arrived ahead of it.
func (l *link) applyRemote(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	l.mu.Lock()
	l.haveSDP = true
	queued := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range queued {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn("add queued ICE candidate", zap.Error(err))
		}
	}
	return nil
}

// HandleICECandidate adds a remote ICE candidate, holding it until the
// remote description is known.
func (l *link) HandleICECandidate(payload json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &c); err != nil {
		return err
	}
	l.mu.Lock()
	if !l.haveSDP {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(c)
}

// Transport returns the data channel transport.
func (l *link) Transport() *transport.DataChannelTransport {
	return l.transport
}

// Close shuts down the peer connection.
func (l *link) Close() {
	if l.pc != nil {
		_ = l.pc.Close()
	}
}
