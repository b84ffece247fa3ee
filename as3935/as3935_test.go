package as3935

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDriver(t *testing.T) (*Driver, *MockBus) {
	t.Helper()
	bus := NewMockBus()
	d, err := New(context.Background(), bus)
	require.NoError(t, err)
	bus.Reset()
	return d, bus
}

func TestNew_Resets(t *testing.T) {
	bus := NewMockBus()
	_, err := New(context.Background(), bus)
	require.NoError(t, err)
	assert.Equal(t, []Op{{Write: true, Reg: 0x3C, Value: 0x96}}, bus.Ops())
}

func TestNew_ResetFailure(t *testing.T) {
	bus := NewMockBus()
	busErr := errors.New("no device")
	bus.Fail(func(reg byte) error { return busErr })
	_, err := New(context.Background(), bus)
	assert.ErrorIs(t, err, busErr)
}

func TestAttach_NoBusTraffic(t *testing.T) {
	bus := NewMockBus()
	bus.Set(0x01, 0x22)
	d := Attach(bus)
	assert.Empty(t, bus.Ops())
	val, err := d.ReadRegister(context.Background(), 0x01)
	require.NoError(t, err)
	assert.Equal(t, byte(0x22), val)
}

func TestDriver_InterruptReason(t *testing.T) {
	tests := []struct {
		raw      byte
		expected InterruptReason
		known    bool
	}{
		{0x08, ReasonLightning, true},
		{0x01, ReasonNoise, true},
		{0x04, ReasonDisturber, true},
		{0x00, ReasonNone, true},
		{0x0F, InterruptReason(15), false},
		{0x02, InterruptReason(2), false},
		{0xF3, InterruptReason(3), false},
		{0xE8, ReasonLightning, true},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.raw), func(t *testing.T) {
			d, bus := newDriver(t)
			bus.Set(regInterrupt, test.raw)
			reason, err := d.InterruptReason(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.expected, reason)
			assert.Equal(t, test.known, reason.Known())
			assert.Equal(t, []Op{{Reg: regInterrupt, Value: test.raw}}, bus.Ops())
		})
	}
}

func TestDriver_Distance(t *testing.T) {
	tests := []struct {
		raw      byte
		expected Distance
		text     string
	}{
		{0x00, DistanceOverhead, "overhead"},
		{0x3F, DistanceOutOfRange, ">63km"},
		{0xFF, DistanceOutOfRange, ">63km"},
		{0x11, Distance(17), "17km"},
		{0xC5, Distance(5), "5km"},
	}
	for _, test := range tests {
		t.Run(test.text, func(t *testing.T) {
			d, bus := newDriver(t)
			bus.Set(regDistance, test.raw)
			dist, err := d.Distance(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.expected, dist)
			assert.Equal(t, test.text, dist.String())
		})
	}
}

func TestDriver_IndoorOutdoor(t *testing.T) {
	ctx := context.Background()
	d, bus := newDriver(t)
	bus.Set(regAFEGain, 0x9B)

	require.NoError(t, d.SetIndoors(ctx))
	assert.Equal(t, byte(0xBB), bus.Get(regAFEGain))
	assert.NotZero(t, bus.Get(regAFEGain)&0x20)

	require.NoError(t, d.SetOutdoors(ctx))
	assert.Equal(t, byte(0x9B), bus.Get(regAFEGain))
	assert.Zero(t, bus.Get(regAFEGain)&0x20)

	// idempotent
	require.NoError(t, d.SetOutdoors(ctx))
	assert.Equal(t, byte(0x9B), bus.Get(regAFEGain))
}

func TestDriver_SetNoiseFloor(t *testing.T) {
	ctx := context.Background()
	d, bus := newDriver(t)
	bus.Set(regThreshold, 0x8A)

	require.NoError(t, d.SetNoiseFloor(ctx, 5))
	assert.Equal(t, byte(0xDA), bus.Get(regThreshold))

	require.NoError(t, d.SetNoiseFloor(ctx, 0))
	assert.Equal(t, byte(0x8A), bus.Get(regThreshold))
}

func TestDriver_SettersOutOfRange(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(d *Driver) error
	}{
		{"noise floor 9", func(d *Driver) error { return d.SetNoiseFloor(ctx, 9) }},
		{"noise floor -1", func(d *Driver) error { return d.SetNoiseFloor(ctx, -1) }},
		{"watchdog 16", func(d *Driver) error { return d.SetWatchdogThreshold(ctx, 16) }},
		{"spike rejection 200", func(d *Driver) error { return d.SetSpikeRejection(ctx, 200) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, bus := newDriver(t)
			bus.Set(regThreshold, 0x22)
			bus.Set(regLightning, 0x22)
			err := test.call(d)
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Equal(t, byte(0x22), bus.Get(regThreshold))
			assert.Equal(t, byte(0x22), bus.Get(regLightning))
			assert.Empty(t, bus.Ops())
		})
	}
}

func TestDriver_WatchdogAndSpike(t *testing.T) {
	ctx := context.Background()
	d, bus := newDriver(t)
	bus.Set(regThreshold, 0x22)
	bus.Set(regLightning, 0xF2)

	require.NoError(t, d.SetWatchdogThreshold(ctx, 10))
	assert.Equal(t, byte(0x2A), bus.Get(regThreshold))

	require.NoError(t, d.SetSpikeRejection(ctx, 11))
	assert.Equal(t, byte(0xFB), bus.Get(regLightning))

	// watchdog and noise floor share a register and must not clobber each other
	require.NoError(t, d.SetNoiseFloor(ctx, 7))
	assert.Equal(t, byte(0x7A), bus.Get(regThreshold))
}

func TestDriver_ClearStatistics(t *testing.T) {
	tests := []struct {
		prior byte
		set   byte
		clear byte
	}{
		{0x82, 0xC2, 0x82},
		{0x22, 0x62, 0x22},
		{0xC2, 0xC2, 0x82},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.prior), func(t *testing.T) {
			d, bus := newDriver(t)
			bus.Set(regLightning, test.prior)
			require.NoError(t, d.ClearStatistics(context.Background()))
			assert.Equal(t, []byte{test.set, test.clear}, bus.Writes(regLightning))
			assert.Equal(t, []Op{
				{Reg: regLightning, Value: test.prior},
				{Write: true, Reg: regLightning, Value: test.set},
				{Write: true, Reg: regLightning, Value: test.clear},
			}, bus.Ops())
		})
	}
}

func TestDriver_CalibrateRCO(t *testing.T) {
	d, bus := newDriver(t)
	start := time.Now()
	require.NoError(t, d.CalibrateRCO(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), calibrationDelay)
	assert.Equal(t, []Op{
		{Write: true, Reg: regIRQDisplay, Value: 0x80},
		{Write: true, Reg: regIRQDisplay, Value: 0x00},
	}, bus.Ops())
}

func TestDriver_CalibrateRCOFailure(t *testing.T) {
	d, bus := newDriver(t)
	busErr := errors.New("stuck")
	bus.Fail(func(reg byte) error { return busErr })
	err := d.CalibrateRCO(context.Background())
	assert.ErrorIs(t, err, busErr)
	assert.Empty(t, bus.Ops())
}

func TestDriver_CalibrationStatus(t *testing.T) {
	d, bus := newDriver(t)
	bus.Set(regCalibTRCO, 0x80)
	bus.Set(regCalibSRCO, 0xC0)
	status, err := d.CalibrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Calibration{TRCODone: true, SRCODone: true, SRCOFailed: true}, status)
	assert.False(t, status.OK())

	bus.Set(regCalibSRCO, 0x80)
	status, err = d.CalibrationStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK())
}

func TestDriver_Energy(t *testing.T) {
	d, bus := newDriver(t)
	bus.Set(regEnergyLSB, 0x34)
	bus.Set(regEnergyMSB, 0x12)
	bus.Set(regEnergyMMSB, 0xE5)
	energy, err := d.Energy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0x051234), energy)
}

func TestDriver_Registers(t *testing.T) {
	d, bus := newDriver(t)
	for reg := byte(0); reg < RegisterCount; reg++ {
		bus.Set(reg, reg*3)
	}
	regs, err := d.Registers(context.Background())
	require.NoError(t, err)
	for reg := byte(0); reg < RegisterCount; reg++ {
		assert.Equal(t, reg*3, regs[reg])
	}
}

func TestDriver_ReadErrorsAreWrapped(t *testing.T) {
	d, bus := newDriver(t)
	busErr := errors.New("timeout")
	bus.Fail(func(reg byte) error {
		if reg == regDistance {
			return busErr
		}
		return nil
	})
	_, err := d.Distance(context.Background())
	assert.ErrorIs(t, err, busErr)
	_, err = d.InterruptReason(context.Background())
	assert.NoError(t, err)
}
