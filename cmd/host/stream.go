package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/encoder"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/permissions"
	"github.com/junsooki/airdesk/internal/stream"
	"github.com/junsooki/airdesk/internal/transport"
)

func streamCommand() *cli.Command {
	flags := append(captureFlags(),
		&cli.StringFlag{Name: "target", Usage: "receiver address HOST:PORT", Required: true},
	)
	return &cli.Command{
		Name:   "stream",
		Usage:  "push frames over UDP to a receiver until interrupted",
		Flags:  flags,
		Action: runStream,
	}
}

func runStream(c *cli.Context) error {
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) { applyCaptureFlags(c, cfg) })
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()

	bus := events.NewBus(0)
	go cliutil.LogEvents(bus, log.Named("events"))
	defer bus.Close()

	if !c.Bool("synthetic") {
		permissions.Ensure(log, false)
	}
	src, err := openSource(c)
	if err != nil {
		return err
	}
	senderCfg, err := cfg.SenderConfig()
	if err != nil {
		return err
	}
	sender, err := stream.NewSender(senderCfg, src, encoder.NewJPEGEncoder(cfg.Stream.Quality), transport.UDPDialer{},
		stream.WithLogger(log), stream.WithEvents(bus))
	if err != nil {
		return err
	}

	target := c.String("target")
	if err := sender.Start(ctx, target, cfg.Stream.FPS); err != nil {
		return fmt.Errorf("stream to %s: %w", target, err)
	}
	<-ctx.Done()
	sender.Stop()

	st := sender.Stats()
	log.Info("stream finished",
		zap.String("target", target),
		zap.Uint64("frames_sent", st.FramesSent),
		zap.Uint64("encode_errors", st.EncodeErrors),
		zap.Uint64("send_errors", st.SendErrors))
	return nil
}
