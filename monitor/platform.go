package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/lightning/adapter"
	"github.com/mklimuk/lightning/as3935"
	"github.com/mklimuk/lightning/config"
	lgpio "github.com/mklimuk/lightning/gpio"
	li2c "github.com/mklimuk/lightning/i2c"
	lspi "github.com/mklimuk/lightning/spi"
)

// Watcher delivers IRQ edges, stamped with their detection time, until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, edges chan<- time.Time) error
}

// Platform is the hardware the monitor runs on: the sensor register bus and its IRQ line.
type Platform struct {
	Bus     as3935.RegisterBus
	IRQ     Watcher
	closers []func() error
}

func (p *Platform) onClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// OpenPlatform sets up the adaptor selected in cfg.
func OpenPlatform(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Platform, error) {
	p := &Platform{}
	var err error
	switch cfg.Adapter {
	case config.AdapterPeriph:
		err = p.openPeriph(cfg)
	case config.AdapterNanoPi:
		err = p.openNanoPi(cfg, logger)
	case config.AdapterMCP2221:
		err = p.openMCP2221(ctx, cfg, logger)
	case config.AdapterI2C:
		err = p.openI2C(cfg)
	default:
		err = fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}
	logger.Info("platform ready", "adapter", cfg.Adapter)
	return p, nil
}

func (p *Platform) openPeriph(cfg config.Config) error {
	port, err := lspi.NewGenericBus(cfg.SPI.Device, physic.Frequency(cfg.SPI.SpeedHz)*physic.Hertz, cfg.SPI.Mode)
	if err != nil {
		return err
	}
	p.onClose(port.Close)
	cs, err := lgpio.NewOutput(cfg.Pins.ChipSelect, true)
	if err != nil {
		return fmt.Errorf("could not open chip select line: %w", err)
	}
	p.onClose(cs.Halt)
	irq, err := lgpio.NewIRQ(cfg.Pins.IRQ)
	if err != nil {
		return fmt.Errorf("could not open irq line: %w", err)
	}
	p.onClose(irq.Halt)
	p.Bus = as3935.NewSPIBus(port, cs)
	p.IRQ = irq
	return nil
}

func (p *Platform) openNanoPi(cfg config.Config, logger *slog.Logger) error {
	board := nanopi.NewNeoAdaptor()
	err := board.Connect()
	if err != nil {
		return fmt.Errorf("could not connect to board: %w", err)
	}
	p.onClose(board.Finalize)
	port := lspi.NewGobotBus(board, cfg.SPI.Bus, cfg.SPI.Chip, cfg.SPI.SpeedHz, cfg.SPI.Mode)
	err = port.Start()
	if err != nil {
		return fmt.Errorf("could not start spi driver: %w", err)
	}
	p.onClose(port.Halt)
	csPin := cfg.Pins.ChipSelect
	cs := lgpio.OutputFunc(func(high bool) error {
		var val byte
		if high {
			val = 1
		}
		return board.DigitalWrite(csPin, val)
	})
	err = cs.Set(context.Background(), true)
	if err != nil {
		return fmt.Errorf("could not release chip select: %w", err)
	}
	irqPin := cfg.Pins.IRQ
	level := func(ctx context.Context) (bool, error) {
		val, err := board.DigitalRead(irqPin)
		return val != 0, err
	}
	p.Bus = as3935.NewSPIBus(port, cs)
	p.IRQ = lgpio.NewPoller(level, cfg.IRQ.PollInterval, lgpio.WithPollLogger(logger))
	return nil
}

func (p *Platform) openMCP2221(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	bridge := adapter.NewMCP2221(adapter.HIDOpener(cfg.I2C.Index))
	err := bridge.Init(ctx)
	if err != nil {
		return err
	}
	p.onClose(func() error { return bridge.Release(context.Background()) })
	gp, err := strconv.Atoi(cfg.Pins.IRQ)
	if err != nil || gp < 0 || gp > 3 {
		return fmt.Errorf("irq pin must be a GP line number 0-3, got %q", cfg.Pins.IRQ)
	}
	params, err := bridge.GetGPIOParameters(ctx)
	if err != nil {
		return fmt.Errorf("could not read GP settings: %w", err)
	}
	params[gp] = adapter.GPIOSetting{Mode: adapter.GPIOModeIn, Designation: adapter.GPIOOperation}
	err = bridge.SetGPIOParameters(ctx, params)
	if err != nil {
		return fmt.Errorf("could not configure GP%d as input: %w", gp, err)
	}
	p.Bus = as3935.NewI2CBus(bridge, cfg.I2C.Address)
	p.IRQ = lgpio.NewPoller(bridge.Level(gp), cfg.IRQ.PollInterval, lgpio.WithPollLogger(logger))
	return nil
}

func (p *Platform) openI2C(cfg config.Config) error {
	bus, err := li2c.NewGenericBus(cfg.I2C.Device)
	if err != nil {
		return err
	}
	p.onClose(bus.Close)
	if cfg.I2C.SpeedHz > 0 {
		err = bus.SetSpeed(physic.Frequency(cfg.I2C.SpeedHz) * physic.Hertz)
		if err != nil {
			return err
		}
	}
	irq, err := lgpio.NewIRQ(cfg.Pins.IRQ)
	if err != nil {
		return fmt.Errorf("could not open irq line: %w", err)
	}
	p.onClose(irq.Halt)
	p.Bus = as3935.NewI2CBus(bus, cfg.I2C.Address)
	p.IRQ = irq
	return nil
}
