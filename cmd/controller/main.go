// Command airdesk-controller views and drives a remote host.
//
// Usage:
//
//	airdesk-controller connect --host ID            WebRTC viewer via signaling
//	airdesk-controller view    [--port 7878]        UDP viewer
//	airdesk-controller send    --addr HOST:PORT FILE
//	airdesk-controller push    --host ID FILE       chunked transfer via signaling
//	airdesk-controller wake    --mac MAC
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/display"
	"github.com/junsooki/airdesk/internal/events"
	"github.com/junsooki/airdesk/internal/stream"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:           "airdesk-controller",
		Usage:          "view, control and send files to a remote host",
		Version:        version,
		Flags:          cliutil.GlobalFlags(),
		ExitErrHandler: cliutil.ExitErrHandler,
		Commands: []*cli.Command{
			connectCommand(),
			viewCommand(),
			sendCommand(),
			pushCommand(),
			wakeCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

// runViewer runs disp on the calling goroutine until the window closes or
// ctx is cancelled, then stops recv.
func runViewer(ctx context.Context, disp display.Display, recv *stream.Receiver, log *zap.Logger) error {
	stop := context.AfterFunc(ctx, disp.Close)
	defer stop()
	err := disp.Run()
	recv.Stop()
	st := recv.Stats()
	log.Info("viewer closed",
		zap.Uint64("datagrams", st.Datagrams),
		zap.Uint64("dropped", st.Dropped),
		zap.Uint64("frames_emitted", st.FramesEmitted))
	return err
}

func newBus(log *zap.Logger) *events.Bus {
	bus := events.NewBus(0)
	go cliutil.LogEvents(bus, log.Named("events"))
	return bus
}
