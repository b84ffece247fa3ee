package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/lightning/as3935"
	"github.com/mklimuk/lightning/cmd/lightning/console"
	"github.com/mklimuk/lightning/monitor"
	"github.com/mklimuk/lightning/snsctx"
)

var calibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "calibrate the internal RC oscillators",
	Action: func(c *cli.Context) error {
		return withSensor(c, func(ctx context.Context, sensor *as3935.Driver) error {
			err := sensor.CalibrateRCO(ctx)
			if err != nil {
				return console.Fail("calibration error", err)
			}
			status, err := sensor.CalibrationStatus(ctx)
			if err != nil {
				return console.Fail("could not read calibration status", err)
			}
			if !status.OK() {
				console.Warnf("calibration not confirmed by the chip")
			}
			return encode(status)
		})
	},
}

type sensorStatus struct {
	Interrupt   string             `yaml:"interrupt"`
	Distance    string             `yaml:"distance"`
	Energy      uint32             `yaml:"energy"`
	Calibration as3935.Calibration `yaml:"calibration"`
	Registers   []string           `yaml:"registers"`
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "print the sensor state without changing it",
	Action: func(c *cli.Context) error {
		return withSensor(c, func(ctx context.Context, sensor *as3935.Driver) error {
			var status sensorStatus
			regs, err := sensor.Registers(ctx)
			if err != nil {
				return console.Fail("could not read registers", err)
			}
			for i, r := range regs {
				status.Registers = append(status.Registers, fmt.Sprintf("0x%02X: 0x%02X", i, r))
			}
			reason, err := sensor.InterruptReason(ctx)
			if err != nil {
				return console.Fail("could not read interrupt", err)
			}
			status.Interrupt = reason.String()
			distance, err := sensor.Distance(ctx)
			if err != nil {
				return console.Fail("could not read distance", err)
			}
			status.Distance = distance.String()
			status.Energy, err = sensor.Energy(ctx)
			if err != nil {
				return console.Fail("could not read energy", err)
			}
			status.Calibration, err = sensor.CalibrationStatus(ctx)
			if err != nil {
				return console.Fail("could not read calibration status", err)
			}
			return encode(status)
		})
	},
}

var clearStatsCmd = cli.Command{
	Name:  "clear-stats",
	Usage: "clear the lightning distance estimation statistics",
	Action: func(c *cli.Context) error {
		return withSensor(c, func(ctx context.Context, sensor *as3935.Driver) error {
			err := sensor.ClearStatistics(ctx)
			if err != nil {
				return console.Fail("could not clear statistics", err)
			}
			console.Infof("statistics cleared")
			return nil
		})
	},
}

var registerCmd = cli.Command{
	Name:  "register",
	Usage: "raw register access",
	Subcommands: cli.Commands{
		&registerReadCmd,
		&registerWriteCmd,
	},
}

var registerReadCmd = cli.Command{
	Name:      "read",
	ArgsUsage: "<register>",
	Action: func(c *cli.Context) error {
		reg, err := parseByte(c.Args().First())
		if err != nil {
			return console.Fail("invalid register", err)
		}
		return withSensor(c, func(ctx context.Context, sensor *as3935.Driver) error {
			val, err := sensor.ReadRegister(ctx, reg)
			if err != nil {
				return console.Fail("read error", err)
			}
			console.Printf("0x%02X: 0x%02X (%08b)\n", reg, val, val)
			return nil
		})
	},
}

var registerWriteCmd = cli.Command{
	Name:      "write",
	ArgsUsage: "<register> <value>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		reg, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Fail("invalid register", err)
		}
		val, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Fail("invalid value", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write 0x%02X to register 0x%02X?", val, reg))
			if err != nil {
				return console.Fail("prompt error", err)
			}
			if !ok {
				console.Printf("%s aborted\n", console.PictoStop)
				return nil
			}
		}
		return withSensor(c, func(ctx context.Context, sensor *as3935.Driver) error {
			err := sensor.WriteRegister(ctx, reg, val)
			if err != nil {
				return console.Fail("write error", err)
			}
			console.Infof("0x%02X written to 0x%02X", val, reg)
			return nil
		})
	},
}

// withSensor opens the configured platform and attaches to the chip without resetting it.
func withSensor(c *cli.Context, fn func(ctx context.Context, sensor *as3935.Driver) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	platform, err := monitor.OpenPlatform(ctx, cfg, slog.Default())
	if err != nil {
		return console.Fail("platform initialization error", err)
	}
	defer func() {
		err := platform.Close()
		if err != nil {
			console.Warnf("could not release platform: %s", err)
		}
	}()
	return fn(ctx, as3935.Attach(platform.Bus))
}

func parseByte(s string) (byte, error) {
	if s == "" {
		return 0, fmt.Errorf("missing argument")
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func encode(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	err := enc.Encode(v)
	if err != nil {
		return console.Fail("encoding error", err)
	}
	return nil
}
