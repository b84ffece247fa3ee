package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/karalabe/hid"

	"github.com/mklimuk/lightning"
	"github.com/mklimuk/lightning/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

const (
	cmdStatus        = 0x10
	cmdReadGPIO      = 0x51
	cmdI2CWrite      = 0x90
	cmdI2CRead       = 0x91
	cmdI2CReadRepeat = 0x93
	cmdI2CWriteNoEnd = 0x94
	cmdI2CReadData   = 0x40
	cmdGetSRAM       = 0xB0
	cmdSetSRAM       = 0xB1
	statusBusy       = 0x01
	statusReadFailed = 0x41
	cancelTransfer   = 0x10
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var (
	_ lightning.I2CBus        = &MCP2221{}
	_ lightning.I2CTransactor = &MCP2221{}
)

// Opener returns a fresh handle on the HID device. The handle is closed after every report.
type Opener func() (io.ReadWriteCloser, error)

// HIDOpener opens the index-th MCP2221 found on the USB bus.
func HIDOpener(index int) Opener {
	return func() (io.ReadWriteCloser, error) {
		devs := hid.Enumerate(VendorID, ProductID)
		if len(devs) == 0 {
			return nil, ErrDeviceNotFound
		}
		if index < 0 || index >= len(devs) {
			return nil, fmt.Errorf("no device with id %d (%d found)", index, len(devs))
		}
		dev, err := devs[index].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

// MCP2221 is a USB to I2C/GPIO bridge. It carries the sensor in I2C mode
// and exposes its GP lines for the IRQ.
type MCP2221 struct {
	mx           sync.Mutex
	open         Opener
	clock        clockwork.Clock
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

func (m GPIOMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// GPIODesignation selects the function of a GP line. Only plain GPIO operation
// is used for the sensor IRQ.
type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// alternate function 2 of GP1
	GPIO1InterruptDetection GPIODesignation = 0b00000100
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

// GPIOLine is the state of one GP line.
type GPIOLine struct {
	Mode  GPIOMode `yaml:"mode"`
	Value byte     `yaml:"value"`
}

// GPIOValues holds GP0..GP3.
type GPIOValues [4]GPIOLine

// GPIOSetting is the configuration of one GP line.
type GPIOSetting struct {
	Mode        GPIOMode        `yaml:"mode"`
	Designation GPIODesignation `yaml:"designation"`
}

// GPIOParameters holds the GP0..GP3 configuration.
type GPIOParameters [4]GPIOSetting

type Option func(*MCP2221)

func WithClock(clock clockwork.Clock) Option {
	return func(d *MCP2221) {
		d.clock = clock
	}
}

func WithResponseWait(wait time.Duration) Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(open Opener, opts ...Option) *MCP2221 {
	d := &MCP2221{
		open:         open,
		clock:        clockwork.NewRealClock(),
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init cancels any transfer left hanging by a previous process.
func (d *MCP2221) Init(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	if err != nil {
		return fmt.Errorf("could not init adapter: %w", err)
	}
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.write(ctx, cmdI2CWrite, address, buffer)
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.read(ctx, cmdI2CRead, address, buffer)
}

// TxAddr writes w without a STOP condition and reads r after a repeated START.
func (d *MCP2221) TxAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdI2CWriteNoEnd, address, w)
	if err != nil {
		return err
	}
	return d.read(ctx, cmdI2CReadRepeat, address, r)
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		slog.Debug("adapter busy", "address", address)
		return lightning.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == statusBusy {
		return lightning.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CReadData
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == statusReadFailed {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	d.request[1] = 0x01
	for i, p := range params {
		d.request[2+i] = byte(p.Designation) | byte(p.Mode)
	}
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == statusBusy {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	d.request[1] = 0x01
	var res GPIOParameters
	err := d.send(ctx)
	if err != nil {
		return res, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == statusBusy {
		return res, ErrCommandUnsupported
	}
	for i := range res {
		res[i] = GPIOSetting{
			Mode:        GPIOMode(d.response[22+i] & gpioModeMask),
			Designation: GPIODesignation(d.response[22+i] & gpioOperationMask),
		}
	}
	return res, nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadGPIO
	var res GPIOValues
	err := d.send(ctx)
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == statusBusy {
		return res, ErrCommandFailed
	}
	for i := range res {
		res[i] = GPIOLine{Mode: GPIOModeNoOperation, Value: d.response[2+2*i]}
		if mode := d.response[3+2*i]; mode != byte(GPIOModeNoOperation) {
			res[i].Mode = GPIOMode(mode << 3)
		}
	}
	return res, nil
}

// Level reads a single GP line. It matches the level function expected by the IRQ poller.
func (d *MCP2221) Level(pin int) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		if pin < 0 || pin > 3 {
			return false, fmt.Errorf("invalid GP line %d", pin)
		}
		values, err := d.ReadGPIO(ctx)
		if err != nil {
			return false, err
		}
		if values[pin].Mode == GPIOModeNoOperation {
			return false, fmt.Errorf("GP%d is not configured as GPIO", pin)
		}
		return values[pin].Value != 0, nil
	}
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	// 9..10 requested length, 11..12 transferred length, 13 buffer counter,
	// 14 speed divider, 15 timeout, 16..17 address, 25 read pending
	return &MCP2221Status{
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		ReadPending:            int(buffer[25]),
	}
}

func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

// ReleaseBus cancels the current I2C transfer and frees the bus.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = cancelTransfer
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		err := dev.Close()
		if err != nil {
			slog.Debug("could not close adapter handle", "error", err)
		}
	}()
	snsctx.Trace(ctx, "sending report to adapter", d.request)
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.clock.After(d.responseWait):
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	snsctx.Trace(ctx, "read report from adapter", d.response)
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
