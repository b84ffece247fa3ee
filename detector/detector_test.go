package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/lightning/as3935"
)

type MockSensor struct {
	mock.Mock
}

func (m *MockSensor) InterruptReason(ctx context.Context) (as3935.InterruptReason, error) {
	args := m.Called(ctx)
	return args.Get(0).(as3935.InterruptReason), args.Error(1)
}

func (m *MockSensor) Distance(ctx context.Context) (as3935.Distance, error) {
	args := m.Called(ctx)
	return args.Get(0).(as3935.Distance), args.Error(1)
}

type recordingSink struct {
	mx     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, ev Event) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type countingObserver struct {
	admitted, dropped int
}

func (o *countingObserver) ObserveEdge(admitted bool) {
	if admitted {
		o.admitted++
	} else {
		o.dropped++
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newSensor(t *testing.T) (*as3935.Driver, *as3935.MockBus) {
	t.Helper()
	bus := as3935.NewMockBus()
	sensor, err := as3935.New(context.Background(), bus)
	require.NoError(t, err)
	bus.Reset()
	return sensor, bus
}

func TestDetector_LightningFlow(t *testing.T) {
	ctx := context.Background()
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x08)
	bus.Set(0x07, 17)
	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	d := New(sensor, WithClock(clock), WithSinks(sink), WithLogger(quietLogger()))

	ev, admitted, err := d.OnEdge(ctx, clock.Now())
	require.NoError(t, err)
	require.True(t, admitted)
	assert.Equal(t, KindLightning, ev.Kind)
	assert.Equal(t, as3935.Distance(17), ev.Distance)
	assert.Equal(t, "Strike! 17km", ev.Text)
	assert.Equal(t, clock.Now(), ev.Time)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, []string{"Strike! 17km"}, d.Log().Snapshot())
	require.Len(t, sink.events, 1)
	assert.Equal(t, ev, sink.events[0])
	// interrupt register first, distance only for lightning
	assert.Equal(t, []as3935.Op{{Reg: 0x03, Value: 0x08}, {Reg: 0x07, Value: 17}}, bus.Ops())
}

func TestDetector_NonLightningIsNotLogged(t *testing.T) {
	tests := []struct {
		raw  byte
		kind Kind
	}{
		{0x01, KindNoise},
		{0x04, KindDisturber},
		{0x00, KindNone},
		{0x0F, KindStrongDisturber},
		{0x02, KindUnknown},
	}
	for _, test := range tests {
		t.Run(test.kind.String(), func(t *testing.T) {
			sensor, bus := newSensor(t)
			bus.Set(0x03, test.raw)
			sink := &recordingSink{}
			clock := clockwork.NewFakeClock()
			d := New(sensor, WithClock(clock), WithSinks(sink), WithLogger(quietLogger()))
			ev, admitted, err := d.OnEdge(context.Background(), clock.Now())
			require.NoError(t, err)
			require.True(t, admitted)
			assert.Equal(t, test.kind, ev.Kind)
			assert.Zero(t, d.Log().Len())
			assert.Len(t, sink.events, 1)
			assert.Equal(t, []as3935.Op{{Reg: 0x03, Value: test.raw}}, bus.Ops())
		})
	}
}

func TestDetector_Debounce(t *testing.T) {
	ctx := context.Background()
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x01)
	clock := clockwork.NewFakeClock()
	observer := &countingObserver{}
	d := New(sensor, WithClock(clock), WithEdgeObserver(observer), WithLogger(quietLogger()))

	_, admitted, err := d.OnEdge(ctx, clock.Now())
	require.NoError(t, err)
	assert.True(t, admitted)

	clock.Advance(150 * time.Millisecond)
	_, admitted, err = d.OnEdge(ctx, clock.Now())
	require.NoError(t, err)
	assert.False(t, admitted)

	clock.Advance(100 * time.Millisecond)
	_, admitted, err = d.OnEdge(ctx, clock.Now())
	require.NoError(t, err)
	assert.True(t, admitted)

	assert.Equal(t, 2, observer.admitted)
	assert.Equal(t, 1, observer.dropped)
	// dropped edges never touch the bus
	assert.Len(t, bus.Ops(), 2)
}

func TestDetector_KeepsFiveNewestStrikes(t *testing.T) {
	ctx := context.Background()
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x08)
	clock := clockwork.NewFakeClock()
	d := New(sensor, WithClock(clock), WithLogger(quietLogger()))

	for km := byte(1); km <= 6; km++ {
		bus.Set(0x07, km)
		_, admitted, err := d.OnEdge(ctx, clock.Now())
		require.NoError(t, err)
		require.True(t, admitted)
		clock.Advance(time.Second)
	}
	assert.Equal(t, []string{"Strike! 6km", "Strike! 5km", "Strike! 4km", "Strike! 3km", "Strike! 2km"}, d.Log().All())
	assert.Equal(t, []string{"Strike! 6km", "Strike! 5km", "Strike! 4km"}, d.Log().Snapshot())
}

func TestDetector_SensorError(t *testing.T) {
	ctx := context.Background()
	busErr := errors.New("spi timeout")
	sensor := &MockSensor{}
	sensor.On("InterruptReason", ctx).Return(as3935.ReasonLightning, nil).Once()
	sensor.On("Distance", ctx).Return(as3935.Distance(0), busErr).Once()

	clock := clockwork.NewFakeClock()
	d := New(sensor, WithClock(clock), WithLogger(quietLogger()))
	_, admitted, err := d.OnEdge(ctx, clock.Now())
	assert.True(t, admitted)
	assert.ErrorIs(t, err, busErr)
	assert.Zero(t, d.Log().Len())
	sensor.AssertExpectations(t)
}

func TestDetector_SinkErrorIsNotFatal(t *testing.T) {
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x08)
	failing := &recordingSink{err: fmt.Errorf("broker down")}
	healthy := &recordingSink{}
	clock := clockwork.NewFakeClock()
	d := New(sensor, WithClock(clock), WithSinks(failing, healthy), WithLogger(quietLogger()))
	_, _, err := d.OnEdge(context.Background(), clock.Now())
	require.NoError(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, []string{"Strike! overhead"}, d.Log().Snapshot())
}

func TestDetector_Run(t *testing.T) {
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x08)
	bus.Set(0x07, 0x3F)
	d := New(sensor, WithDebounce(0), WithLogger(quietLogger()))

	edges := make(chan time.Time, 1)
	edges <- time.Now()
	close(edges)
	require.NoError(t, d.Run(context.Background(), edges))
	assert.Equal(t, []string{"Strike! >63km"}, d.Log().Snapshot())
}

func TestDetector_RunStopsOnBusError(t *testing.T) {
	sensor, bus := newSensor(t)
	busErr := errors.New("device gone")
	bus.Fail(func(reg byte) error { return busErr })
	d := New(sensor, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	edges := make(chan time.Time, 1)
	edges <- time.Now()
	err := d.Run(ctx, edges)
	assert.ErrorIs(t, err, busErr)
}

// slowSink stands in for a broker that takes a while to acknowledge.
type slowSink struct {
	clock *clockwork.FakeClock
	delay time.Duration
}

func (s *slowSink) Publish(ctx context.Context, ev Event) error {
	s.clock.Advance(s.delay)
	return nil
}

func TestDetector_RunDebouncesOnDetectionTime(t *testing.T) {
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x08)
	bus.Set(0x07, 10)
	clock := clockwork.NewFakeClock()
	observer := &countingObserver{}
	d := New(sensor,
		WithClock(clock),
		WithSinks(&slowSink{clock: clock, delay: 300 * time.Millisecond}),
		WithEdgeObserver(observer),
		WithLogger(quietLogger()),
	)

	// two chatter edges 1ms apart, queued while the handler is still publishing
	seen := clock.Now()
	edges := make(chan time.Time, 2)
	edges <- seen
	edges <- seen.Add(time.Millisecond)
	close(edges)
	require.NoError(t, d.Run(context.Background(), edges))

	assert.Equal(t, 1, observer.admitted)
	assert.Equal(t, 1, observer.dropped)
	assert.Equal(t, []string{"Strike! 10km"}, d.Log().Snapshot())
	assert.Equal(t, seen, d.debouncer.Last())
}

func TestDetector_UnstampedEdgeUsesClock(t *testing.T) {
	sensor, bus := newSensor(t)
	bus.Set(0x03, 0x04)
	clock := clockwork.NewFakeClock()
	d := New(sensor, WithClock(clock), WithLogger(quietLogger()))
	ev, admitted, err := d.OnEdge(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Equal(t, clock.Now(), ev.Time)
}
