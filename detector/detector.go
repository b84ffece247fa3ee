// Package detector turns raw sensor IRQ edges into classified events.
//
// Edges are debounced, the interrupt reason is fetched from the sensor and classified.
// Lightning strikes are kept in a bounded log for the display, every event is written
// to the diagnostic log and handed to the configured sinks.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mklimuk/lightning/as3935"
)

const sinkTimeout = 5 * time.Second

// Sensor is the part of the AS3935 driver needed to classify an interrupt.
type Sensor interface {
	InterruptReason(ctx context.Context) (as3935.InterruptReason, error)
	Distance(ctx context.Context) (as3935.Distance, error)
}

// Sink receives every classified event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// EdgeObserver is told about the debounce decision of every edge.
type EdgeObserver interface {
	ObserveEdge(admitted bool)
}

type Detector struct {
	sensor    Sensor
	debouncer *Debouncer
	log       *EventLog
	sinks     []Sink
	observer  EdgeObserver
	clock     clockwork.Clock
	window    time.Duration
	logger    *slog.Logger
}

type Option func(*Detector)

func WithClock(clock clockwork.Clock) Option {
	return func(d *Detector) {
		d.clock = clock
	}
}

func WithDebounce(window time.Duration) Option {
	return func(d *Detector) {
		d.window = window
	}
}

func WithEventLog(log *EventLog) Option {
	return func(d *Detector) {
		d.log = log
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(d *Detector) {
		d.sinks = append(d.sinks, sinks...)
	}
}

func WithEdgeObserver(observer EdgeObserver) Option {
	return func(d *Detector) {
		d.observer = observer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func New(sensor Sensor, opts ...Option) *Detector {
	d := &Detector{
		sensor: sensor,
		clock:  clockwork.NewRealClock(),
		window: DefaultDebounce,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = NewEventLog(DefaultLogCapacity, DefaultDisplayCount)
	}
	d.debouncer = NewDebouncer(d.clock, d.window)
	return d
}

// Log returns the lightning history fed by this detector.
func (d *Detector) Log() *EventLog {
	return d.log
}

// OnEdge handles a single falling edge of the IRQ line detected at the given time.
// It reports false when the edge was swallowed by the debounce window. Errors come
// from the sensor bus only.
func (d *Detector) OnEdge(ctx context.Context, at time.Time) (Event, bool, error) {
	if at.IsZero() {
		at = d.clock.Now()
	}
	admitted := d.debouncer.AdmitAt(at)
	if d.observer != nil {
		d.observer.ObserveEdge(admitted)
	}
	if !admitted {
		d.logger.Debug("edge dropped by debounce window")
		return Event{}, false, nil
	}
	reason, err := d.sensor.InterruptReason(ctx)
	if err != nil {
		return Event{}, true, fmt.Errorf("could not get interrupt reason: %w", err)
	}
	var distance as3935.Distance
	if reason == as3935.ReasonLightning {
		distance, err = d.sensor.Distance(ctx)
		if err != nil {
			return Event{}, true, fmt.Errorf("could not get storm distance: %w", err)
		}
	}
	ev := Classify(reason, distance)
	ev.ID = uuid.NewString()
	ev.Time = at
	if ev.Kind == KindLightning {
		d.log.Push(ev.Text)
		d.logger.Info(ev.Line(), "kind", ev.Kind, "distance", ev.Distance.Km())
	} else {
		d.logger.Info(ev.Line(), "kind", ev.Kind, "code", ev.Code)
	}
	d.publish(ctx, ev)
	return ev, true, nil
}

func (d *Detector) publish(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.Publish(sctx, ev)
		cancel()
		if err != nil {
			d.logger.Warn("could not publish event", "kind", ev.Kind, "id", ev.ID, "error", err)
		}
	}
}

// Run handles edges until the context is done or the sensor bus fails. Each edge
// carries the time its watcher saw it.
func (d *Detector) Run(ctx context.Context, edges <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case at, ok := <-edges:
			if !ok {
				return nil
			}
			_, _, err := d.OnEdge(ctx, at)
			if err != nil {
				return err
			}
		}
	}
}
