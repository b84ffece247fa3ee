package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/lightning/cmd/lightning/console"
	"github.com/mklimuk/lightning/config"
	"github.com/mklimuk/lightning/display"
	"github.com/mklimuk/lightning/monitor"
	"github.com/mklimuk/lightning/snsctx"
)

var runCmd = cli.Command{
	Name:  "run",
	Usage: "watch the sensor and report lightning",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "no-clear", Usage: "append frames instead of redrawing the screen"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(snsctx.SetVerbose(context.Background(), c.Bool("verbose")), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()
		platform, err := monitor.OpenPlatform(ctx, cfg, logger)
		if err != nil {
			return console.Fail("platform initialization error", err)
		}
		defer func() {
			err := platform.Close()
			if err != nil {
				logger.Warn("could not release platform", "error", err)
			}
		}()
		m := monitor.New(cfg, platform,
			monitor.WithLogger(logger),
			monitor.WithScreen(display.NewTerminal(os.Stdout, !c.Bool("no-clear"))),
		)
		err = m.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Fail("monitor stopped", err)
		}
		return nil
	},
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, console.Fail("configuration error", err)
	}
	return cfg, nil
}
