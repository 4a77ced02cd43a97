// Command airdesk-host runs on the captured machine.
//
// Usage:
//
//	airdesk-host serve   [--signaling URL] [--id ID]     WebRTC host
//	airdesk-host stream  --target HOST:PORT              raw UDP frame push
//	airdesk-host receive [--port 7879] [--dir DIR]       direct file receiver
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/junsooki/airdesk/internal/capture"
	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/config"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:           "airdesk-host",
		Usage:          "share this machine's display, input and downloads",
		Version:        version,
		Flags:          cliutil.GlobalFlags(),
		ExitErrHandler: cliutil.ExitErrHandler,
		Commands: []*cli.Command{
			serveCommand(),
			streamCommand(),
			receiveCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func captureFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "display", Usage: "display index to capture"},
		&cli.BoolFlag{Name: "synthetic", Usage: "stream a generated test pattern instead of the screen"},
		&cli.IntFlag{Name: "fps", Usage: "frames per second"},
		&cli.IntFlag{Name: "quality", Usage: "JPEG quality 1-100"},
		&cli.IntFlag{Name: "max-width", Usage: "downscale frames wider than this (0 keeps size)"},
		&cli.StringFlag{Name: "variant", Usage: "datagram header: h264, jpeg, jpeg-chunk or legacy"},
	}
}

func applyCaptureFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("fps") {
		cfg.Stream.FPS = c.Int("fps")
	}
	if c.IsSet("quality") {
		cfg.Stream.Quality = c.Int("quality")
	}
	if c.IsSet("max-width") {
		cfg.Stream.MaxWidth = c.Int("max-width")
	}
	if c.IsSet("variant") {
		cfg.Stream.Variant = c.String("variant")
	}
}

func openSource(c *cli.Context) (capture.Source, error) {
	if c.Bool("synthetic") {
		return capture.NewSynthetic(1280, 720, capture.LayoutBGRA), nil
	}
	return capture.NewPlatformSource(c.Int("display"))
}
