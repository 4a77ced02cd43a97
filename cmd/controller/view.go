package main

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/display"
	"github.com/junsooki/airdesk/internal/stream"
)

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "show frames pushed over UDP by airdesk-host stream",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "UDP port to listen on"},
			&cli.BoolFlag{Name: "accept-legacy", Usage: "also accept the 8-byte legacy header"},
		},
		Action: runView,
	}
}

func runView(c *cli.Context) error {
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) {
		if c.IsSet("port") {
			cfg.Stream.Port = c.Int("port")
		}
		if c.IsSet("accept-legacy") {
			cfg.Stream.AcceptLegacy = c.Bool("accept-legacy")
		}
	})
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()

	bus := newBus(log)
	defer bus.Close()

	disp := display.NewEbitenDisplay("airdesk - UDP", nil)
	recv := stream.NewReceiver(cfg.ReceiverConfig(), display.DecodingSink(disp, log),
		stream.WithLogger(log), stream.WithEvents(bus))
	if err := recv.Start(ctx, cfg.Stream.Port); err != nil {
		return err
	}
	log.Info("listening for frames", zap.Stringer("addr", recv.Addr()))

	return runViewer(ctx, disp, recv, log)
}
