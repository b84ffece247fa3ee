package detector

import "sync"

const (
	DefaultLogCapacity  = 5
	DefaultDisplayCount = 3
)

// EventLog keeps the most recent lightning descriptions, newest first.
type EventLog struct {
	mx       sync.RWMutex
	entries  []string
	capacity int
	display  int
}

func NewEventLog(capacity, display int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if display <= 0 || display > capacity {
		display = min(DefaultDisplayCount, capacity)
	}
	return &EventLog{
		entries:  make([]string, 0, capacity+1),
		capacity: capacity,
		display:  display,
	}
}

// Push stores entry as the newest one, evicting the oldest when full.
func (l *EventLog) Push(entry string) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.entries = append(l.entries, "")
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Snapshot returns the entries meant for the display.
func (l *EventLog) Snapshot() []string {
	l.mx.RLock()
	defer l.mx.RUnlock()
	n := min(l.display, len(l.entries))
	res := make([]string, n)
	copy(res, l.entries[:n])
	return res
}

// All returns every retained entry.
func (l *EventLog) All() []string {
	l.mx.RLock()
	defer l.mx.RUnlock()
	res := make([]string, len(l.entries))
	copy(res, l.entries)
	return res
}

func (l *EventLog) Len() int {
	l.mx.RLock()
	defer l.mx.RUnlock()
	return len(l.entries)
}
