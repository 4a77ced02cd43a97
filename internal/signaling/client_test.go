package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/airdesk/internal/transfer"
)

// relay is a minimal signaling server: it registers clients and forwards
// targeted messages with From filled in.
type relay struct {
	mu    sync.Mutex
	conns map[string]*relayConn
}

type relayConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (r *relayConn) write(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.WriteJSON(m)
}

func newRelay(t *testing.T) string {
	t.Helper()
	rl := &relay{conns: make(map[string]*relayConn)}
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		self := &relayConn{conn: conn}
		var id string
		for {
			var m Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			switch {
			case m.Type == TypeRegister:
				id = m.ID
				rl.mu.Lock()
				rl.conns[id] = self
				rl.mu.Unlock()
				self.write(Message{Type: TypeRegistered, ID: id})
			case m.Type == TypePing:
				self.write(Message{Type: TypePong})
			case m.Target != "":
				rl.mu.Lock()
				dst := rl.conns[m.Target]
				rl.mu.Unlock()
				if dst != nil {
					m.From, m.Target = id, ""
					dst.write(m)
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url, id, kind string, h Handler) *Client {
	t.Helper()
	registered := make(chan struct{})
	h.OnRegistered = func() { close(registered) }
	c := NewClient(url, id, kind, h, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	t.Cleanup(c.Close)
	select {
	case <-registered:
	case <-ctx.Done():
		t.Fatalf("%s never registered", id)
	}
	return c
}

func TestRelaysSDP(t *testing.T) {
	url := newRelay(t)
	got := make(chan Message, 1)
	connect(t, url, "host-1", ClientTypeHost, Handler{
		OnOffer: func(from string, payload json.RawMessage) {
			got <- Message{From: from, Payload: payload}
		},
	})
	ctrl := connect(t, url, "ctrl-1", ClientTypeController, Handler{})

	if err := ctrl.SendOffer("host-1", json.RawMessage(`{"sdp":"v=0"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-got:
		if m.From != "ctrl-1" || string(m.Payload) != `{"sdp":"v=0"}` {
			t.Fatalf("offer = %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("offer not delivered")
	}
}

func TestChunkedTransferOverSignaling(t *testing.T) {
	url := newRelay(t)
	dir := t.TempDir()
	host := connect(t, url, "host-1", ClientTypeHost, Handler{})
	host.ServeTransfers(transfer.NewManager(dir))
	ctrl := connect(t, url, "ctrl-1", ClientTypeController, Handler{})

	data := make([]byte, 300000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	src := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := transfer.DefaultClientConfig()
	cfg.Compression = transfer.CompressionLZ4
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := transfer.NewClient(cfg).Push(ctx, ctrl.TransferTo("host-1"), src, "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if res.RemotePath != filepath.Join(dir, "notes.txt") {
		t.Fatalf("remote path = %q", res.RemotePath)
	}
	got, err := os.ReadFile(res.RemotePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatal("received file differs")
	}
}

func TestTransferOfferWithoutReceiverTimesOut(t *testing.T) {
	url := newRelay(t)
	connect(t, url, "host-1", ClientTypeHost, Handler{})
	ctrl := connect(t, url, "ctrl-1", ClientTypeController, Handler{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := ctrl.TransferTo("host-1").OfferTransfer(ctx, transfer.Offer{TransferID: "x"})
	if !errors.Is(err, transfer.ErrTimeout) {
		t.Fatalf("OfferTransfer = %v, want timeout", err)
	}
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", "x", ClientTypeHost, Handler{}, nil)
	if err := c.SendOffer("y", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendOffer = %v", err)
	}
}

func TestRoutesOnlyHandledTypes(t *testing.T) {
	var hosts []HostInfo
	var errMsg string
	c := NewClient("ws://unused", "x", ClientTypeController, Handler{
		OnHostsUpdated: func(h []HostInfo) { hosts = h },
		OnError:        func(msg string) { errMsg = msg },
	}, nil)

	c.routes[TypeHostsUpdated](Message{List: []HostInfo{{ID: "host-1", Online: true}}})
	c.routes[TypeError](Message{Msg: "unknown target"})
	if len(hosts) != 1 || hosts[0].ID != "host-1" {
		t.Fatalf("hosts = %+v", hosts)
	}
	if errMsg != "unknown target" {
		t.Fatalf("error = %q", errMsg)
	}
	for _, typ := range []string{TypeOffer, TypeRegistered, TypeHostDisconnected} {
		if c.routes[typ] != nil {
			t.Errorf("%s routed without a handler", typ)
		}
	}
}
