package as3935

import (
	"context"
	"fmt"

	"github.com/mklimuk/lightning"
	"github.com/mklimuk/lightning/snsctx"
)

// DefaultI2CAddress is the address selected by ADD0/ADD1 both pulled high.
const DefaultI2CAddress = 0x03

// RegisterBus performs single byte register transfers. Register addresses are 6 bits wide,
// higher bits are silently dropped.
type RegisterBus interface {
	ReadRegister(ctx context.Context, reg byte) (byte, error)
	WriteRegister(ctx context.Context, reg byte, value byte) error
}

var _ RegisterBus = &SPIBus{}
var _ RegisterBus = &I2CBus{}

// SPIBus frames every register transfer with an active low chip select line.
type SPIBus struct {
	transport lightning.SPIDevice
	cs        lightning.OutputPin
}

func NewSPIBus(transport lightning.SPIDevice, cs lightning.OutputPin) *SPIBus {
	return &SPIBus{transport: transport, cs: cs}
}

func writeFrame(reg, value byte) []byte {
	return []byte{reg & addrMask, value}
}

func readFrame(reg byte) []byte {
	return []byte{readBit | reg&addrMask}
}

func (b *SPIBus) WriteRegister(ctx context.Context, reg byte, value byte) error {
	frame := writeFrame(reg, value)
	return b.selected(ctx, func() error {
		snsctx.Trace(ctx, "spi write", frame)
		err := b.transport.Write(ctx, frame)
		if err != nil {
			return fmt.Errorf("could not write register %#02x: %w", reg&addrMask, err)
		}
		return nil
	})
}

func (b *SPIBus) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	var value byte
	frame := readFrame(reg)
	err := b.selected(ctx, func() error {
		snsctx.Trace(ctx, "spi read request", frame)
		err := b.transport.Write(ctx, frame)
		if err != nil {
			return fmt.Errorf("could not request register %#02x: %w", reg&addrMask, err)
		}
		buf := []byte{0x00}
		n, err := b.transport.Read(ctx, buf)
		if err != nil {
			return fmt.Errorf("could not read register %#02x: %w", reg&addrMask, err)
		}
		// nothing clocked back, every caller masks the value anyway
		if n > 0 {
			value = buf[0]
		}
		snsctx.Trace(ctx, "spi read response", buf[:n])
		return nil
	})
	return value, err
}

// selected runs fn with chip select asserted and always deasserts it afterwards.
func (b *SPIBus) selected(ctx context.Context, fn func() error) error {
	err := b.cs.Set(ctx, false)
	if err != nil {
		return fmt.Errorf("could not assert chip select: %w", err)
	}
	err = fn()
	csErr := b.cs.Set(ctx, true)
	if err != nil {
		return err
	}
	if csErr != nil {
		return fmt.Errorf("could not release chip select: %w", csErr)
	}
	return nil
}

// I2CBus talks to the sensor wired in I2C mode (SI pin high).
type I2CBus struct {
	transport lightning.I2CBus
	addr      byte
}

func NewI2CBus(transport lightning.I2CBus, addr byte) *I2CBus {
	return &I2CBus{transport: transport, addr: addr}
}

func (b *I2CBus) WriteRegister(ctx context.Context, reg byte, value byte) error {
	frame := writeFrame(reg, value)
	snsctx.Trace(ctx, "i2c write", frame)
	err := b.transport.WriteToAddr(ctx, b.addr, frame)
	if err != nil {
		return fmt.Errorf("could not write register %#02x: %w", reg&addrMask, err)
	}
	return nil
}

// ReadRegister sends the register pointer and reads one byte back. Transports that
// support it get a repeated START between the two, the rest a STOP.
func (b *I2CBus) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	if tx, ok := b.transport.(lightning.I2CTransactor); ok {
		buf := []byte{0x00}
		err := tx.TxAddr(ctx, b.addr, []byte{reg & addrMask}, buf)
		if err != nil {
			return 0x00, fmt.Errorf("could not read register %#02x: %w", reg&addrMask, err)
		}
		snsctx.Trace(ctx, "i2c read response", buf)
		return buf[0], nil
	}
	err := b.transport.WriteToAddr(ctx, b.addr, []byte{reg & addrMask})
	if err != nil {
		return 0x00, fmt.Errorf("could not set register pointer %#02x: %w", reg&addrMask, err)
	}
	buf := []byte{0x00}
	err = b.transport.ReadFromAddr(ctx, b.addr, buf)
	if err != nil {
		return 0x00, fmt.Errorf("could not read register %#02x: %w", reg&addrMask, err)
	}
	snsctx.Trace(ctx, "i2c read response", buf)
	return buf[0], nil
}
