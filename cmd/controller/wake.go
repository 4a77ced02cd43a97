package main

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/cliutil"
	"github.com/junsooki/airdesk/internal/wake"
)

func wakeCommand() *cli.Command {
	return &cli.Command{
		Name:  "wake",
		Usage: "broadcast a wake magic packet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mac", Usage: "target hardware address", Required: true},
			&cli.StringFlag{Name: "broadcast", Usage: "broadcast address", Value: wake.DefaultBroadcast},
			&cli.IntSliceFlag{Name: "port", Usage: "UDP ports (default 9 and 7)"},
		},
		Action: runWake,
	}
}

func runWake(c *cli.Context) error {
	_, log, err := cliutil.Setup(c, nil)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer func() { _ = log.Sync() }()

	mac := c.String("mac")
	if err := wake.Send(c.Context, mac, c.String("broadcast"), c.IntSlice("port")...); err != nil {
		return err
	}
	log.Info("magic packet sent", zap.String("mac", mac), zap.String("broadcast", c.String("broadcast")))
	return nil
}
