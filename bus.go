package lightning

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BusReader interface {
	// Read fills buffer from the bus and reports how many bytes were actually received.
	Read(ctx context.Context, buffer []byte) (int, error)
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

// SPIDevice is a byte oriented full-duplex link. Framing (chip select) is done by the caller.
type SPIDevice interface {
	BusReader
	BusWriter
}

// OutputPin drives a single digital line.
type OutputPin interface {
	Set(ctx context.Context, high bool) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// I2CTransactor is implemented by buses that can write and then read in a single
// transaction, with a repeated START instead of a STOP between the two.
type I2CTransactor interface {
	TxAddr(ctx context.Context, address byte, w []byte, r []byte) error
}
