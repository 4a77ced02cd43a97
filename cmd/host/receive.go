package main

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/transfer"
)

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "accept direct file transfers until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "TCP port to listen on"},
			&cli.StringFlag{Name: "dir", Usage: "directory for received files"},
		},
		Action: runReceive,
	}
}

func runReceive(c *cli.Context) error {
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) {
		if c.IsSet("port") {
			cfg.Transfer.Port = c.Int("port")
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

	manager := transfer.NewManager(cfg.Transfer.Dir, transfer.WithLogger(log), transfer.WithEvents(bus))
	defer manager.Close()

	srv := transfer.NewServer(manager, cfg.ServerConfig(), transfer.WithLogger(log), transfer.WithEvents(bus))
	if err := srv.Listen(); err != nil {
		return err
	}
	log.Info("receiving files", zap.Stringer("addr", srv.Addr()), zap.String("dir", manager.Dir()))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve() }()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		return <-errc
	case err := <-errc:
		return err
	}
}
