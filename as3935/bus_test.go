package as3935

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// transcript collects chip select and transfer events in the order they happened
type transcript struct {
	events []string
}

func (t *transcript) add(e string) {
	t.events = append(t.events, e)
}

type fakeSPI struct {
	log      *transcript
	response []byte
	writeErr error
	readErr  error
}

func (f *fakeSPI) Write(ctx context.Context, buffer []byte) error {
	f.log.add("tx:" + hex.EncodeToString(buffer))
	return f.writeErr
}

func (f *fakeSPI) Read(ctx context.Context, buffer []byte) (int, error) {
	f.log.add("rx")
	if f.readErr != nil {
		return 0, f.readErr
	}
	return copy(buffer, f.response), nil
}

type fakePin struct {
	log *transcript
}

func (p *fakePin) Set(ctx context.Context, high bool) error {
	if high {
		p.log.add("cs:high")
	} else {
		p.log.add("cs:low")
	}
	return nil
}

func newSPIBus(response []byte) (*SPIBus, *fakeSPI, *transcript) {
	log := &transcript{}
	dev := &fakeSPI{log: log, response: response}
	return NewSPIBus(dev, &fakePin{log: log}), dev, log
}

func TestSPIBus_WriteFrame(t *testing.T) {
	tests := []struct {
		reg      byte
		expected []string
	}{
		{0x3F, []string{"cs:low", "tx:3fab", "cs:high"}},
		{0x7F, []string{"cs:low", "tx:3fab", "cs:high"}},
		{0xC0, []string{"cs:low", "tx:00ab", "cs:high"}},
		{0x3C, []string{"cs:low", "tx:3cab", "cs:high"}},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString([]byte{test.reg}), func(t *testing.T) {
			bus, _, log := newSPIBus(nil)
			require.NoError(t, bus.WriteRegister(context.Background(), test.reg, 0xAB))
			assert.Equal(t, test.expected, log.events)
		})
	}
}

func TestSPIBus_ReadFrame(t *testing.T) {
	tests := []struct {
		reg      byte
		expected []string
	}{
		{0x03, []string{"cs:low", "tx:43", "rx", "cs:high"}},
		{0x3F, []string{"cs:low", "tx:7f", "rx", "cs:high"}},
		{0x7F, []string{"cs:low", "tx:7f", "rx", "cs:high"}},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString([]byte{test.reg}), func(t *testing.T) {
			bus, _, log := newSPIBus([]byte{0x5A})
			val, err := bus.ReadRegister(context.Background(), test.reg)
			require.NoError(t, err)
			assert.Equal(t, byte(0x5A), val)
			assert.Equal(t, test.expected, log.events)
		})
	}
}

func TestSPIBus_EmptyReadIsZero(t *testing.T) {
	bus, _, _ := newSPIBus(nil)
	val, err := bus.ReadRegister(context.Background(), regInterrupt)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), val)
}

func TestSPIBus_ReleasesChipSelectOnError(t *testing.T) {
	bus, dev, log := newSPIBus(nil)
	dev.readErr = errors.New("bus gone")
	_, err := bus.ReadRegister(context.Background(), regDistance)
	require.Error(t, err)
	assert.ErrorIs(t, err, dev.readErr)
	assert.Equal(t, "cs:high", log.events[len(log.events)-1])

	log.events = nil
	dev.writeErr = errors.New("bus gone")
	err = bus.WriteRegister(context.Background(), regAFEGain, 0x24)
	require.Error(t, err)
	assert.Equal(t, []string{"cs:low", "tx:0024", "cs:high"}, log.events)
}

type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestI2CBus_Registers(t *testing.T) {
	ctx := context.Background()
	transport := &MockI2CBus{}
	transport.On("WriteToAddr", ctx, byte(DefaultI2CAddress), []byte{0x07}).Return(nil).Once()
	transport.On("ReadFromAddr", ctx, byte(DefaultI2CAddress), mock.Anything).Return([]byte{0x11}, nil).Once()
	transport.On("WriteToAddr", ctx, byte(DefaultI2CAddress), []byte{0x3C, 0x96}).Return(nil).Once()

	bus := NewI2CBus(transport, DefaultI2CAddress)
	val, err := bus.ReadRegister(ctx, 0x47)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), val)
	require.NoError(t, bus.WriteRegister(ctx, 0x7C, 0x96))
	transport.AssertExpectations(t)
}

func TestI2CBus_ReadError(t *testing.T) {
	ctx := context.Background()
	transport := &MockI2CBus{}
	busErr := errors.New("nack")
	transport.On("WriteToAddr", ctx, byte(0x01), []byte{0x03}).Return(busErr)

	bus := NewI2CBus(transport, 0x01)
	_, err := bus.ReadRegister(ctx, regInterrupt)
	assert.ErrorIs(t, err, busErr)
	transport.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

// MockI2CTransactor is a transport with combined write-read support.
type MockI2CTransactor struct {
	MockI2CBus
}

func (m *MockI2CTransactor) TxAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	args := m.Called(ctx, address, w, r)
	if data, ok := args.Get(0).([]byte); ok {
		copy(r, data)
	}
	return args.Error(1)
}

func TestI2CBus_ReadUsesRepeatedStart(t *testing.T) {
	ctx := context.Background()
	transport := &MockI2CTransactor{}
	transport.On("TxAddr", ctx, byte(DefaultI2CAddress), []byte{0x03}, mock.Anything).Return([]byte{0x08}, nil).Once()

	bus := NewI2CBus(transport, DefaultI2CAddress)
	val, err := bus.ReadRegister(ctx, regInterrupt)
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), val)
	transport.AssertExpectations(t)
	transport.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
	transport.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestI2CBus_RepeatedStartError(t *testing.T) {
	ctx := context.Background()
	transport := &MockI2CTransactor{}
	busErr := errors.New("arbitration lost")
	transport.On("TxAddr", ctx, byte(0x02), []byte{0x07}, mock.Anything).Return(nil, busErr)

	bus := NewI2CBus(transport, 0x02)
	_, err := bus.ReadRegister(ctx, regDistance)
	assert.ErrorIs(t, err, busErr)
	assert.ErrorContains(t, err, "could not read register 0x07")
}
