package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/capture"
	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/encoder"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/input"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/peer"
	"github.com/junsooki/airdesk/internal/permissions"
	"github.com/junsooki/airdesk/internal/signaling"
	"github.com/junsooki/airdesk/internal/stream"
	"github.com/junsooki/airdesk/internal/transfer"
)

func serveCommand() *cli.Command {
	flags := append(cliutil.SignalingFlags(), captureFlags()...)
	flags = append(flags,
		&cli.BoolFlag{Name: "no-input", Usage: "ignore remote input events"},
		&cli.StringFlag{Name: "dir", Usage: "directory for pushed files"},
	)
	return &cli.Command{
		Name:   "serve",
		Usage:  "accept controllers through the signaling server",
		Flags:  flags,
		Action: runServe,
	}
}

// hostSession is one connected controller.
type hostSession struct {
	peer   *peer.Host
	sender *stream.Sender
}

func (s *hostSession) close() {
	s.sender.Stop()
	s.peer.Close()
}

type server struct {
	ctx        context.Context
	cfg        *config.Config
	log        *zap.Logger
	bus        *events.Bus
	source     capture.Source
	encoder    encoder.Encoder
	senderCfg  stream.SenderConfig
	translator *input.Translator
	sig        *signaling.Client

	mu      sync.Mutex
	current *hostSession
}

func runServe(c *cli.Context) error {
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) {
		applyCaptureFlags(c, cfg)
		if c.Bool("no-input") {
			cfg.Input.Enabled = false
		}
		if c.IsSet("dir") {
			cfg.Transfer.Dir = c.String("dir")
		}
	})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()

	bus := events.NewBus(0)
	go cliutil.LogEvents(bus, log.Named("events"))
	defer bus.Close()

	hostID := cfg.EnsureID(signaling.ClientTypeHost)
	perms := permissions.Ensure(log, cfg.Input.Enabled)

	src, err := openSource(c)
	if err != nil {
		return err
	}
	senderCfg, err := cfg.SenderConfig()
	if err != nil {
		return err
	}

	s := &server{
		ctx:       ctx,
		cfg:       cfg,
		log:       log,
		bus:       bus,
		source:    src,
		encoder:   encoder.NewJPEGEncoder(cfg.Stream.Quality),
		senderCfg: senderCfg,
	}
	if cfg.Input.Enabled {
		s.translator = newTranslator(cfg, log, perms.Accessibility)
	}

	manager := transfer.NewManager(cfg.Transfer.Dir, transfer.WithLogger(log), transfer.WithEvents(bus))
	defer manager.Close()

	s.sig = signaling.NewClient(cfg.Signaling.URL, hostID, signaling.ClientTypeHost, signaling.Handler{
		OnRegistered: func() {
			log.Info("registered with signaling server")
		},
		OnOffer:        s.handleOffer,
		OnICECandidate: s.handleICECandidate,
		OnError: func(msg string) {
			log.Warn("signaling error", zap.String("message", msg))
		},
	}, log)
	s.sig.ServeTransfers(manager)

	if err := s.sig.Connect(ctx); err != nil {
		return err
	}
	defer s.sig.Close()

	log.Info("host ready",
		zap.String("host_id", hostID),
		zap.String("signaling", cfg.Signaling.URL),
		zap.Int("fps", cfg.Stream.FPS),
		zap.String("downloads", manager.Dir()))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case <-s.sig.Done():
		log.Warn("signaling connection lost")
	}
	s.replace(nil)
	return nil
}

// newTranslator replays input on the platform sink, or only logs it when
// injection is unavailable.
func newTranslator(cfg *config.Config, log *zap.Logger, allowed bool) *input.Translator {
	var sink input.Sink = input.NewLogSink(log)
	if allowed {
		if ps, err := input.NewPlatformSink(log); err == nil {
			sink = ps
		} else {
			log.Warn("input injection unavailable", zap.Error(err))
		}
	}
	return input.NewTranslator(sink, input.WithLogger(log), input.WithDelay(cfg.Input.Delay.Duration))
}

func (s *server) handleOffer(from string, payload json.RawMessage) {
	s.log.Info("offer received", zap.String("from", from))

	var sess *hostSession
	h, err := peer.NewHost(s.sig, peer.HostOptions{
		Options: peer.Options{
			ICEServers: s.cfg.Signaling.ICEServers,
			Log:        s.log,
			OnEnded: func() {
				s.log.Info("controller disconnected", zap.String("from", from))
				go sess.sender.Stop()
			},
		},
		OnFramesOpen: func() {
			if err := sess.sender.Start(s.ctx, from, s.cfg.Stream.FPS); err != nil {
				s.log.Warn("start stream", zap.Error(err))
			}
		},
	})
	if err != nil {
		s.log.Error("create host peer", zap.Error(err))
		return
	}
	sender, err := stream.NewSender(s.senderCfg, s.source, s.encoder, h.Dialer(),
		stream.WithLogger(s.log), stream.WithEvents(s.bus))
	if err != nil {
		h.Close()
		s.log.Error("create sender", zap.Error(err))
		return
	}
	sess = &hostSession{peer: h, sender: sender}

	if s.translator != nil {
		dec := &logging.Decimator{Every: s.cfg.Stream.LogEvery}
		h.Transport().OnInput(func(data []byte) {
			e, err := input.ParseEvent(data)
			if err == nil {
				err = s.translator.Apply(e)
			}
			if err != nil {
				if ok, n := dec.Tick(); ok {
					s.log.Warn("input event", zap.Uint64("count", n), zap.Error(err))
				}
			}
		})
	}

	s.replace(sess)
	if err := h.HandleOffer(from, payload); err != nil {
		s.log.Error("handle offer", zap.Error(err))
	}
}

func (s *server) handleICECandidate(_ string, payload json.RawMessage) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}
	if err := cur.peer.HandleICECandidate(payload); err != nil {
		s.log.Warn("handle ICE candidate", zap.Error(err))
	}
}

// replace installs next as the active session and closes the previous one.
func (s *server) replace(next *hostSession) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}
