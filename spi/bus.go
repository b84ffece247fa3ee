package spi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/lightning"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var _ lightning.SPIDevice = &GenericBus{}

// GenericBus is a Linux spidev port driven through periph.io.
type GenericBus struct {
	port spi.PortCloser
	conn spi.Conn
}

// NewGenericBus opens the spidev port dev ("" picks the first one) with the given
// clock frequency and SPI mode (0-3).
func NewGenericBus(dev string, speed physic.Frequency, mode int) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port: %w", err)
	}
	conn, err := port.Connect(speed, spi.Mode(mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not connect to spi port %s: %w", port, err)
	}
	return &GenericBus{
		port: port,
		conn: conn,
	}, nil
}

func (b *GenericBus) Write(ctx context.Context, buffer []byte) error {
	err := b.conn.Tx(buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to spi bus: %w", err)
	}
	return nil
}

// Read clocks out zeros while reading len(buffer) bytes.
func (b *GenericBus) Read(ctx context.Context, buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}
	err := b.conn.Tx(make([]byte, len(buffer)), buffer)
	if err != nil {
		return 0, fmt.Errorf("could not read from spi bus: %w", err)
	}
	return len(buffer), nil
}

func (b *GenericBus) Close() error {
	return b.port.Close()
}
