package detector

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDebounce exceeds the retrigger interval of a single discharge seen on the IRQ line.
const DefaultDebounce = 200 * time.Millisecond

// Debouncer admits at most one edge per window. Dropped edges do not extend the window.
type Debouncer struct {
	mx     sync.Mutex
	clock  clockwork.Clock
	window time.Duration
	last   time.Time
}

func NewDebouncer(clock clockwork.Clock, window time.Duration) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer{clock: clock, window: window}
}

// Admit reports whether an edge arriving now should be processed, together with the edge time.
func (d *Debouncer) Admit() (time.Time, bool) {
	now := d.clock.Now()
	return now, d.AdmitAt(now)
}

// AdmitAt decides on an edge detected at the given time. Watchers stamp edges when they
// see them, so time spent queued behind a busy handler does not count towards the window.
// A zero time means the edge was not stamped and the clock is read instead.
func (d *Debouncer) AdmitAt(at time.Time) bool {
	if at.IsZero() {
		at = d.clock.Now()
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if !d.last.IsZero() && at.Sub(d.last) <= d.window {
		return false
	}
	d.last = at
	return true
}

// Last returns the time of the last admitted edge, zero if none was admitted yet.
func (d *Debouncer) Last() time.Time {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.last
}
