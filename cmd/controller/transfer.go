package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/signaling"
	"github.com/junsooki/airdesk/internal/transfer"
)

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "transfer-id", Usage: "reuse an ID to resume an interrupted transfer"},
		&cli.IntFlag{Name: "chunk-size", Usage: "bytes per chunk"},
		&cli.DurationFlag{Name: "timeout", Usage: "per-operation I/O timeout"},
	}
}

func applyTransferFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("chunk-size") {
		cfg.Transfer.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("timeout") {
		cfg.Transfer.Timeout = config.Duration{Duration: c.Duration("timeout")}
	}
	if c.IsSet("compression") {
		cfg.Transfer.Compression = c.String("compression")
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "send a file to airdesk-host receive over a direct connection",
		ArgsUsage: "FILE",
		Flags: append(transferFlags(),
			&cli.StringFlag{Name: "addr", Usage: "receiver HOST:PORT", Required: true},
		),
		Action: runSend,
	}
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "send a file to a host through the signaling server",
		ArgsUsage: "FILE",
		Flags: append(append(cliutil.SignalingFlags(), transferFlags()...),
			&cli.StringFlag{Name: "host", Usage: "host ID", Required: true},
			&cli.StringFlag{Name: "compression", Usage: "chunk compression: none, zstd or lz4"},
		),
		Action: runPush,
	}
}

func fileArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: %s %s", c.Command.HelpName, c.Command.ArgsUsage), 2)
	}
	return c.Args().First(), nil
}

func runSend(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) { applyTransferFlags(c, cfg) })
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()

	bus := newBus(log)
	defer bus.Close()

	ccfg, err := cfg.ClientConfig()
	if err != nil {
		return err
	}
	client := transfer.NewClient(ccfg, transfer.WithLogger(log), transfer.WithEvents(bus))
	res, err := client.Send(ctx, c.String("addr"), path, c.String("transfer-id"))
	return reportResult(log, res, err)
}

func runPush(c *cli.Context) error {
	path, err := fileArg(c)
	if err != nil {
		return err
	}
	cfg, log, err := cliutil.Setup(c, func(cfg *config.Config) { applyTransferFlags(c, cfg) })
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := cliutil.SignalContext(c.Context)
	defer stop()

	bus := newBus(log)
	defer bus.Close()

	ccfg, err := cfg.ClientConfig()
	if err != nil {
		return err
	}

	registered := make(chan struct{})
	var once sync.Once
	sig := signaling.NewClient(cfg.Signaling.URL, cfg.EnsureID(signaling.ClientTypeController), signaling.ClientTypeController,
		signaling.Handler{
			OnRegistered: func() { once.Do(func() { close(registered) }) },
			OnError: func(msg string) {
				log.Warn("signaling error", zap.String("message", msg))
			},
		}, log)
	if err := sig.Connect(ctx); err != nil {
		return err
	}
	defer sig.Close()

	select {
	case <-registered:
	case <-sig.Done():
		return signaling.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}

	client := transfer.NewClient(ccfg, transfer.WithLogger(log), transfer.WithEvents(bus))
	res, err := client.Push(ctx, sig.TransferTo(c.String("host")), path, c.String("transfer-id"))
	return reportResult(log, res, err)
}

func reportResult(log *zap.Logger, res transfer.Result, err error) error {
	if err != nil {
		if transfer.IsResumable(err) && res.TransferID != "" {
			log.Warn("transfer interrupted; rerun with --transfer-id to resume",
				zap.String("transfer_id", res.TransferID), zap.Error(err))
			return cli.Exit("", 3)
		}
		if errors.Is(err, context.Canceled) {
			return cli.Exit("", 130)
		}
		return err
	}
	log.Info("transfer complete",
		zap.String("transfer_id", res.TransferID),
		zap.String("remote_path", res.RemotePath),
		zap.Int64("resumed_from", res.ResumedFrom),
		zap.Int64("bytes_sent", res.BytesSent))
	return nil
}
