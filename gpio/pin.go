package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/lightning"
)

// edgeWait bounds a single WaitForEdge call so cancellation is noticed.
const edgeWait = 250 * time.Millisecond

var _ lightning.OutputPin = &Output{}

// Output is a host GPIO line driven through periph.io.
type Output struct {
	pin gpio.PinIO
}

// NewOutput opens the named line (e.g. "GPIO8") and drives it to the initial level.
func NewOutput(name string, initial bool) (*Output, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	o := &Output{pin: pin}
	err = o.Set(context.Background(), initial)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Output) Set(ctx context.Context, high bool) error {
	err := o.pin.Out(gpio.Level(high))
	if err != nil {
		return fmt.Errorf("could not set %s to %t: %w", o.pin, high, err)
	}
	return nil
}

// Halt stops any pending operation on the line. The level is left as it is.
func (o *Output) Halt() error {
	return o.pin.Halt()
}

// IRQ is an input line with falling edge detection.
type IRQ struct {
	pin gpio.PinIO
}

func NewIRQ(name string) (*IRQ, error) {
	pin, err := lookup(name)
	if err != nil {
		return nil, err
	}
	err = pin.In(gpio.PullNoChange, gpio.FallingEdge)
	if err != nil {
		return nil, fmt.Errorf("could not enable edge detection on %s: %w", pin, err)
	}
	return &IRQ{pin: pin}, nil
}

// Watch forwards falling edges, stamped with the time they were seen, until ctx is done.
// An edge arriving while the channel is full is dropped.
func (i *IRQ) Watch(ctx context.Context, edges chan<- time.Time) error {
	defer func() {
		err := i.Halt()
		if err != nil {
			slog.Debug("could not halt irq pin", "pin", i.pin.String(), "error", err)
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !i.pin.WaitForEdge(edgeWait) {
			continue
		}
		select {
		case edges <- time.Now():
		default:
			slog.Warn("irq edge dropped, handler is lagging", "pin", i.pin.String())
		}
	}
}

// Halt disarms edge detection and unblocks a pending wait. Safe to call more than once.
func (i *IRQ) Halt() error {
	err := i.pin.Halt()
	if err != nil {
		return fmt.Errorf("could not halt %s: %w", i.pin, err)
	}
	return nil
}

func lookup(name string) (gpio.PinIO, error) {
	_, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no GPIO pin named %s", name)
	}
	return pin, nil
}

// OutputFunc adapts a plain digital write function, such as a Gobot adaptor's
// DigitalWrite bound to a pin, to an OutputPin.
type OutputFunc func(high bool) error

func (f OutputFunc) Set(ctx context.Context, high bool) error {
	return f(high)
}
