package spi

import (
	"context"
	"fmt"

	"github.com/mklimuk/lightning"
	"gobot.io/x/gobot/v2/drivers/spi"
)

var _ lightning.SPIDevice = &GobotBus{}

// gobotOps is the subset of the gobot SPI connection used here.
type gobotOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// GobotBus drives the sensor through a Gobot SPI adaptor (e.g. the NanoPi sysfs adaptor).
type GobotBus struct {
	*spi.Driver
}

// NewGobotBus binds a Gobot SPI driver to the given bus and chip numbers.
// speed is in Hz, mode is the SPI mode (0-3).
func NewGobotBus(adaptor spi.Connector, bus, chip int, speed int64, mode int) *GobotBus {
	d := spi.NewDriver(adaptor, "as3935")
	d.SetBusNumber(bus)
	d.SetChipNumber(chip)
	d.SetMode(mode)
	d.SetBitCount(8)
	d.SetSpeed(speed)
	return &GobotBus{Driver: d}
}

// Start establishes the SPI connection.
func (b *GobotBus) Start() error { return b.Driver.Start() }

// Halt releases the bus.
func (b *GobotBus) Halt() error { return b.Driver.Halt() }

func (b *GobotBus) ops() (gobotOps, error) {
	if b == nil || b.Driver == nil {
		return nil, fmt.Errorf("spi driver not initialized")
	}
	ops, ok := b.Driver.Connection().(gobotOps)
	if !ok {
		return nil, fmt.Errorf("spi connection does not support required operations")
	}
	return ops, nil
}

func (b *GobotBus) Write(ctx context.Context, buffer []byte) error {
	ops, err := b.ops()
	if err != nil {
		return err
	}
	if len(buffer) == 0 {
		return nil
	}
	err = ops.WriteBytes(buffer)
	if err != nil {
		return fmt.Errorf("could not write to spi bus: %w", err)
	}
	return nil
}

func (b *GobotBus) Read(ctx context.Context, buffer []byte) (int, error) {
	ops, err := b.ops()
	if err != nil {
		return 0, err
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	err = ops.ReadCommandData([]byte{}, buffer)
	if err != nil {
		return 0, fmt.Errorf("could not read from spi bus: %w", err)
	}
	return len(buffer), nil
}
