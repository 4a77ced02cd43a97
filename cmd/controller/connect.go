package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/display"
	"github.com/junsooki/airdesk/internal/input"
	"github.com/junsooki/airdesk/internal/peer"
	"github.com/junsooki/airdesk/internal/signaling"
	"github.com/junsooki/airdesk/internal/stream"
)

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "view and control a host through the signaling server",
		Flags: append(cliutil.SignalingFlags(),
			&cli.StringFlag{Name: "host", Usage: "host ID to connect to", Required: true},
		),
		Action: runConnect,
	}
}

// session tracks the controller peer, which exists only after registration.
type session struct {
	mu   sync.Mutex
	peer *peer.Controller
}

func (s *session) get() *peer.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *session) set(p *peer.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = p
}

func runConnect(c *cli.Context) error {
	cfg, log, err := cliutil.Setup(c, nil)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := newBus(log)
	defer bus.Close()

	hostID := c.String("host")
	selfID := cfg.EnsureID(signaling.ClientTypeController)
	sess := &session{}

	disp := display.NewEbitenDisplay(fmt.Sprintf("airdesk - %s", hostID), func(e input.Event) {
		p := sess.get()
		if p == nil {
			return
		}
		data, err := e.Marshal()
		if err != nil {
			return
		}
		_ = p.Transport().SendInput(data)
	})

	recv := stream.NewReceiver(cfg.ReceiverConfig(), display.DecodingSink(disp, log),
		stream.WithLogger(log), stream.WithEvents(bus))
	if err := recv.Attach(ctx); err != nil {
		return err
	}

	var sig *signaling.Client
	sig = signaling.NewClient(cfg.Signaling.URL, selfID, signaling.ClientTypeController, signaling.Handler{
		OnRegistered: func() {
			log.Info("registered with signaling server", zap.String("id", selfID))
			p, err := peer.NewController(sig, hostID, peer.Options{
				ICEServers: cfg.Signaling.ICEServers,
				Log:        log,
				OnEnded: func() {
					log.Warn("connection to host ended")
					cancel()
				},
			})
			if err != nil {
				log.Error("create controller peer", zap.Error(err))
				cancel()
				return
			}
			p.Transport().OnDatagram(recv.HandleDatagram)
			sess.set(p)
			if err := p.Connect(); err != nil {
				log.Error("send offer", zap.Error(err))
				cancel()
			}
		},
		OnAnswer: func(_ string, payload json.RawMessage) {
			if p := sess.get(); p != nil {
				if err := p.HandleAnswer(payload); err != nil {
					log.Warn("handle answer", zap.Error(err))
				}
			}
		},
		OnICECandidate: func(_ string, payload json.RawMessage) {
			if p := sess.get(); p != nil {
				if err := p.HandleICECandidate(payload); err != nil {
					log.Warn("handle ICE candidate", zap.Error(err))
				}
			}
		},
		OnHostDisconnected: func(id string) {
			if id == hostID {
				log.Warn("host left the signaling server")
				cancel()
			}
		},
		OnError: func(msg string) {
			log.Warn("signaling error", zap.String("message", msg))
		},
	}, log)

	if err := sig.Connect(ctx); err != nil {
		return err
	}
	defer sig.Close()
	go func() {
		select {
		case <-sig.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err = runViewer(ctx, disp, recv, log)
	if p := sess.get(); p != nil {
		p.Close()
	}
	return err
}
