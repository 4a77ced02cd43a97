// Package cliutil holds the flag and startup plumbing shared by the host and
// controller binaries.
package cliutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/config"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/stream"
	"github.com/junsooki/airdesk/internal/transfer"
)

// GlobalFlags are accepted by every command of both binaries.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to YAML config file",
			EnvVars: []string{"AIRDESK_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "console or json",
		},
	}
}

// SignalingFlags locate the rendezvous server.
func SignalingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "signaling", Usage: "signaling server WebSocket URL"},
		&cli.StringFlag{Name: "id", Usage: "client ID (random if empty)"},
	}
}

// Setup loads the config file, applies the global flag overrides and builds
// the logger. apply, if set, copies command-specific flags into the config
// before validation.
func Setup(c *cli.Context, apply func(*config.Config)) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("signaling") {
		cfg.Signaling.URL = c.String("signaling")
	}
	if c.IsSet("id") {
		cfg.Signaling.ID = c.String("id")
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogOptions())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// LogEvents drains bus into log until the bus is closed.
func LogEvents(bus *events.Bus, log *zap.Logger) {
	for e := range bus.Events() {
		switch p := e.Payload.(type) {
		case stream.ErrorEvent:
			log.Warn("stream error", zap.String("stage", p.Stage), zap.Uint64("count", p.Count), zap.Error(p.Err))
		case stream.SenderStats:
			log.Info("stream stopped", zap.Uint32("sequence", p.Sequence), zap.Uint64("frames_sent", p.FramesSent),
				zap.Uint64("encode_errors", p.EncodeErrors), zap.Uint64("send_errors", p.SendErrors))
		case stream.ReceiverStats:
			log.Info("receiver stopped", zap.Uint64("datagrams", p.Datagrams), zap.Uint64("dropped", p.Dropped),
				zap.Uint64("frames_emitted", p.FramesEmitted), zap.Uint64("frames_superseded", p.FramesSuperseded))
		case transfer.Progress:
			log.Debug("transfer progress", zap.String("transfer_id", p.TransferID),
				zap.Int64("bytes", p.BytesDone), zap.Int64("size", p.FileSize))
		case transfer.Completed:
			log.Info("transfer complete", zap.String("transfer_id", p.TransferID), zap.String("path", p.Path))
		case transfer.Failed:
			log.Warn("transfer failed", zap.String("transfer_id", p.TransferID), zap.Bool("resumable", p.Resumable), zap.Error(p.Err))
		default:
			log.Debug("event", zap.String("kind", string(e.Kind)), zap.Any("payload", p))
		}
	}
	if n := bus.Dropped(); n > 0 {
		log.Debug("events dropped", zap.Uint64("count", n))
	}
}

// ExitErrHandler prints err and exits, preserving cli.Exit codes.
func ExitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
