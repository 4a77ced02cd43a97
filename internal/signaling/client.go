// Package signaling talks to the WebSocket rendezvous server that relays
// SDP and ICE between host and controller. The same connection carries the
// chunked file transfer side channel.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/transfer"
)

// ErrNotConnected is returned when sending before Connect or after Close.
var ErrNotConnected = errors.New("signaling: not connected")

// Handler callbacks for incoming signaling messages.
type Handler struct {
	OnRegistered       func()
	OnOffer            func(from string, payload json.RawMessage)
	OnAnswer           func(from string, payload json.RawMessage)
	OnICECandidate     func(from string, payload json.RawMessage)
	OnHostsUpdated     func(hosts []HostInfo)
	OnHostDisconnected func(hostID string)
	OnError            func(msg string)
}

// Heartbeat timing. The server answers every ping with a pong, so a
// connection that stays silent for readTimeout is dead.
const (
	pingInterval = 25 * time.Second
	readTimeout  = 3 * pingInterval
	writeTimeout = 10 * time.Second
)

// Client is a WebSocket signaling client.
type Client struct {
	url        string
	clientID   string
	clientType string
	handler    Handler
	log        *zap.Logger
	routes     map[string]func(Message)

	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed bool

	transfers *transfer.Manager
	waitersMu sync.Mutex
	waiters   map[waiterKey]chan TransferReply
}

type waiterKey struct {
	kind string
	id   string
}

// NewClient creates a signaling client. Handler callbacks run on the read
// goroutine, in message order.
func NewClient(url, clientID, clientType string, handler Handler, log *zap.Logger) *Client {
	c := &Client{
		url:        url,
		clientID:   clientID,
		clientType: clientType,
		handler:    handler,
		log:        logging.OrNop(log).Named("signaling"),
		done:       make(chan struct{}),
		waiters:    make(map[waiterKey]chan TransferReply),
	}
	c.routes = c.buildRoutes()
	return c
}

func (c *Client) buildRoutes() map[string]func(Message) {
	h := c.handler
	peerMsg := func(fn func(string, json.RawMessage)) func(Message) {
		if fn == nil {
			return nil
		}
		return func(m Message) { fn(m.From, m.Payload) }
	}
	r := map[string]func(Message){
		TypeOffer:          peerMsg(h.OnOffer),
		TypeAnswer:         peerMsg(h.OnAnswer),
		TypeICECandidate:   peerMsg(h.OnICECandidate),
		TypeTransferOffer:  c.handleTransfer,
		TypeTransferChunk:  c.handleTransfer,
		TypeTransferFinish: c.handleTransfer,
		TypeTransferAccept: c.deliverReply,
		TypeTransferResult: c.deliverReply,
		TypePong:           func(Message) {},
	}
	if h.OnRegistered != nil {
		r[TypeRegistered] = func(Message) { h.OnRegistered() }
	}
	if h.OnHostsUpdated != nil {
		r[TypeHosts] = func(m Message) { h.OnHostsUpdated(m.List) }
		r[TypeHostsUpdated] = r[TypeHosts]
	}
	if h.OnHostDisconnected != nil {
		r[TypeHostDisconnected] = func(m Message) { h.OnHostDisconnected(m.HostID) }
	}
	if h.OnError != nil {
		r[TypeError] = func(m Message) { h.OnError(m.Msg) }
	}
	return r
}

// Connect dials the signaling server, registers and starts the read and
// heartbeat loops.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("signaling dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	err = c.send(Message{Type: TypeRegister, ID: c.clientID, ClientType: c.clientType})
	if err != nil {
		conn.Close()
		return fmt.Errorf("signaling register: %w", err)
	}

	go c.readLoop(conn)
	go c.pingLoop()
	return nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close shuts down the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// SendOffer sends an SDP offer to target.
func (c *Client) SendOffer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeOffer, Target: target, Payload: payload})
}

// SendAnswer sends an SDP answer to target.
func (c *Client) SendAnswer(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeAnswer, Target: target, Payload: payload})
}

// SendICECandidate sends an ICE candidate to target.
func (c *Client) SendICECandidate(target string, payload json.RawMessage) error {
	return c.send(Message{Type: TypeICECandidate, Target: target, Payload: payload})
}

// RequestHostList asks the server for available hosts.
func (c *Client) RequestHostList() error {
	return c.send(Message{Type: TypeListHosts})
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) sendPayload(typ, target string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("signaling: encode %s: %w", typ, err)
	}
	return c.send(Message{Type: typ, Target: target, Payload: payload})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Close()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("signaling read error", zap.Error(err))
			}
			return
		}
		if route := c.routes[msg.Type]; route != nil {
			route(msg)
		} else {
			c.log.Debug("unhandled message", zap.String("type", msg.Type))
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(Message{Type: TypePing, Timestamp: time.Now().UnixMilli()}); err != nil {
				c.log.Debug("ping", zap.Error(err))
			}
		}
	}
}
