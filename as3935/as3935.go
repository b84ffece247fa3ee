// Package as3935 drives the ams AS3935 Franklin lightning sensor.
//
// The chip is configured through a small register file reachable over SPI or I2C.
// Every multi-step register sequence of a single operation runs under the driver
// lock so that read-modify-write cycles and pulse sequences are never interleaved.
//
// Datasheet reference: ams AS3935 Franklin Lightning Sensor IC, v1-04.
package as3935

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOutOfRange is returned by setters given a value outside of the register field.
// The register is left untouched.
var ErrOutOfRange = errors.New("value out of range")

const (
	resetDelay       = 2 * time.Millisecond
	calibrationDelay = 2 * time.Millisecond

	maxNoiseFloor     = 7
	maxWatchdog       = 15
	maxSpikeRejection = 15
)

// Driver represents the AS3935 lightning sensor
type Driver struct {
	mx    sync.Mutex
	bus   RegisterBus
	clock clockwork.Clock
}

type Option func(*Driver)

// WithClock replaces the time source used for the fixed reset and calibration delays.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Driver) {
		d.clock = clock
	}
}

// New creates the driver and resets the chip to its default register values.
func New(ctx context.Context, bus RegisterBus, opts ...Option) (*Driver, error) {
	d := Attach(bus, opts...)
	err := d.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not reset sensor: %w", err)
	}
	return d, nil
}

// Attach creates the driver without touching the chip, keeping whatever
// configuration it currently holds.
func Attach(bus RegisterBus, opts ...Option) *Driver {
	d := &Driver{bus: bus, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset sends the PRESET_DEFAULT direct command and waits for the chip to come back.
func (d *Driver) Reset(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.bus.WriteRegister(ctx, regPresetReset, cmdDirect)
	if err != nil {
		return fmt.Errorf("could not send reset command: %w", err)
	}
	d.clock.Sleep(resetDelay)
	return nil
}

func (d *Driver) InterruptReason(ctx context.Context) (InterruptReason, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	val, err := d.bus.ReadRegister(ctx, regInterrupt)
	if err != nil {
		return ReasonNone, fmt.Errorf("could not read interrupt register: %w", err)
	}
	return reasonFromRegister(val), nil
}

func (d *Driver) Distance(ctx context.Context) (Distance, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	val, err := d.bus.ReadRegister(ctx, regDistance)
	if err != nil {
		return DistanceOutOfRange, fmt.Errorf("could not read distance register: %w", err)
	}
	return distanceFromRegister(val), nil
}

// SetIndoors sets the AFE gain boost for indoor operation.
func (d *Driver) SetIndoors(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.update(ctx, regAFEGain, maskIndoor, maskIndoor)
	if err != nil {
		return fmt.Errorf("could not set indoor mode: %w", err)
	}
	return nil
}

// SetOutdoors clears the AFE gain boost for outdoor operation.
func (d *Driver) SetOutdoors(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.update(ctx, regAFEGain, maskIndoor, 0x00)
	if err != nil {
		return fmt.Errorf("could not set outdoor mode: %w", err)
	}
	return nil
}

// CalibrateRCO routes TRCO to the IRQ pin, which triggers the oscillator calibration,
// and turns the output off again once calibration had time to finish.
func (d *Driver) CalibrateRCO(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.bus.WriteRegister(ctx, regIRQDisplay, displayTRCO)
	if err != nil {
		return fmt.Errorf("could not start RCO calibration: %w", err)
	}
	d.clock.Sleep(calibrationDelay)
	err = d.bus.WriteRegister(ctx, regIRQDisplay, 0x00)
	if err != nil {
		return fmt.Errorf("could not disable oscillator display: %w", err)
	}
	return nil
}

// Calibration holds the result flags of the last RCO calibration.
type Calibration struct {
	TRCODone   bool `yaml:"trco_done"`
	TRCOFailed bool `yaml:"trco_failed"`
	SRCODone   bool `yaml:"srco_done"`
	SRCOFailed bool `yaml:"srco_failed"`
}

func (c Calibration) OK() bool {
	return c.TRCODone && c.SRCODone && !c.TRCOFailed && !c.SRCOFailed
}

func (d *Driver) CalibrationStatus(ctx context.Context) (Calibration, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	trco, err := d.bus.ReadRegister(ctx, regCalibTRCO)
	if err != nil {
		return Calibration{}, fmt.Errorf("could not read TRCO calibration status: %w", err)
	}
	srco, err := d.bus.ReadRegister(ctx, regCalibSRCO)
	if err != nil {
		return Calibration{}, fmt.Errorf("could not read SRCO calibration status: %w", err)
	}
	return Calibration{
		TRCODone:   trco&calibDone > 0,
		TRCOFailed: trco&calibNOK > 0,
		SRCODone:   srco&calibDone > 0,
		SRCOFailed: srco&calibNOK > 0,
	}, nil
}

// SetNoiseFloor sets NF_LEV (0-7).
func (d *Driver) SetNoiseFloor(ctx context.Context, level int) error {
	if level < 0 || level > maxNoiseFloor {
		return fmt.Errorf("noise floor %d: %w", level, ErrOutOfRange)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.update(ctx, regThreshold, maskNoiseFloor, byte(level)<<4)
	if err != nil {
		return fmt.Errorf("could not set noise floor: %w", err)
	}
	return nil
}

// SetWatchdogThreshold sets WDTH (0-15).
func (d *Driver) SetWatchdogThreshold(ctx context.Context, threshold int) error {
	if threshold < 0 || threshold > maxWatchdog {
		return fmt.Errorf("watchdog threshold %d: %w", threshold, ErrOutOfRange)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.update(ctx, regThreshold, maskWatchdog, byte(threshold))
	if err != nil {
		return fmt.Errorf("could not set watchdog threshold: %w", err)
	}
	return nil
}

// SetSpikeRejection sets SREJ (0-15).
func (d *Driver) SetSpikeRejection(ctx context.Context, rejection int) error {
	if rejection < 0 || rejection > maxSpikeRejection {
		return fmt.Errorf("spike rejection %d: %w", rejection, ErrOutOfRange)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.update(ctx, regLightning, maskSpike, byte(rejection))
	if err != nil {
		return fmt.Errorf("could not set spike rejection: %w", err)
	}
	return nil
}

// ClearStatistics pulses CL_STAT. The chip reacts to the high-low transition only.
func (d *Driver) ClearStatistics(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	val, err := d.bus.ReadRegister(ctx, regLightning)
	if err != nil {
		return fmt.Errorf("could not read lightning register: %w", err)
	}
	err = d.bus.WriteRegister(ctx, regLightning, val|maskClearStat)
	if err != nil {
		return fmt.Errorf("could not set statistics clear bit: %w", err)
	}
	err = d.bus.WriteRegister(ctx, regLightning, val&^maskClearStat)
	if err != nil {
		return fmt.Errorf("could not reset statistics clear bit: %w", err)
	}
	return nil
}

// Energy returns the raw, dimensionless energy of the last detected strike.
func (d *Driver) Energy(ctx context.Context) (uint32, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var raw [3]byte
	for i, reg := range []byte{regEnergyLSB, regEnergyMSB, regEnergyMMSB} {
		val, err := d.bus.ReadRegister(ctx, reg)
		if err != nil {
			return 0, fmt.Errorf("could not read energy register %#02x: %w", reg, err)
		}
		raw[i] = val
	}
	return uint32(raw[2]&maskEnergyMMSB)<<16 | uint32(raw[1])<<8 | uint32(raw[0]), nil
}

// Registers dumps registers 0x00 to 0x08.
func (d *Driver) Registers(ctx context.Context) ([RegisterCount]byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res [RegisterCount]byte
	for reg := byte(0); reg < RegisterCount; reg++ {
		val, err := d.bus.ReadRegister(ctx, reg)
		if err != nil {
			return res, fmt.Errorf("could not read register %#02x: %w", reg, err)
		}
		res[reg] = val
	}
	return res, nil
}

// ReadRegister gives raw access to a single register.
func (d *Driver) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.bus.ReadRegister(ctx, reg)
}

// WriteRegister gives raw access to a single register.
func (d *Driver) WriteRegister(ctx context.Context, reg byte, value byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.bus.WriteRegister(ctx, reg, value)
}

// update replaces the bits selected by mask; the caller holds the lock
func (d *Driver) update(ctx context.Context, reg, mask, bits byte) error {
	val, err := d.bus.ReadRegister(ctx, reg)
	if err != nil {
		return err
	}
	return d.bus.WriteRegister(ctx, reg, val&^mask|bits&mask)
}
