// Package i2c drives the sensor through a Linux i2c-dev bus.
package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/lightning"
)

var (
	_ lightning.I2CBus        = &GenericBus{}
	_ lightning.I2CTransactor = &GenericBus{}
)

// GenericBus wraps a periph.io I2C bus. Every transfer is a single periph Tx.
type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

// NewGenericBus opens the named bus ("" picks the first one registered, "1" or
// "/dev/i2c-1" a specific one).
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Failed {
		slog.Debug("host driver failed", "driver", driver.D.String(), "error", driver.Err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	return newGenericBus(dev, bus), nil
}

func newGenericBus(name string, bus i2c.BusCloser) *GenericBus {
	return &GenericBus{name: name, bus: bus}
}

// SetSpeed changes the bus clock. Not every host driver allows it.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	err := b.bus.SetSpeed(f)
	if err != nil {
		return fmt.Errorf("could not set %s clock to %s: %w", b, f, err)
	}
	return nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.TxAddr(ctx, address, nil, buffer)
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.TxAddr(ctx, address, buffer, nil)
}

// TxAddr writes w and reads r in one transaction; the kernel puts a repeated
// START between the two when both are set.
func (b *GenericBus) TxAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("%s transfer to %#02x failed (w=%d r=%d): %w", b, address, len(w), len(r), err)
	}
	return nil
}

// Release is a no-op; the kernel driver frees the bus after every transfer.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}

func (b *GenericBus) String() string {
	if b.name == "" {
		return "i2c"
	}
	return "i2c " + b.name
}
