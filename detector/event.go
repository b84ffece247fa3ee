package detector

import (
	"fmt"
	"time"

	"github.com/mklimuk/lightning/as3935"
)

// Kind tags a classified interrupt.
type Kind int

const (
	KindNone Kind = iota
	KindNoise
	KindDisturber
	KindLightning
	KindStrongDisturber
	KindUnknown
)

// codeStrongDisturber is not documented by the datasheet but shows up next to heavy interference.
const codeStrongDisturber = 0x0F

var kindNames = map[Kind]string{
	KindNone:            "none",
	KindNoise:           "noise",
	KindDisturber:       "disturber",
	KindLightning:       "lightning",
	KindStrongDisturber: "strong_disturber",
	KindUnknown:         "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a classified sensor interrupt.
type Event struct {
	ID       string
	Kind     Kind
	Code     byte
	Distance as3935.Distance
	Time     time.Time
	// Text is the display entry, set for lightning only.
	Text string
}

// Classify turns an interrupt reason into an event. distance is only looked at for lightning.
func Classify(reason as3935.InterruptReason, distance as3935.Distance) Event {
	ev := Event{Code: reason.Code()}
	switch {
	case reason == as3935.ReasonLightning:
		ev.Kind = KindLightning
		ev.Distance = distance
		ev.Text = fmt.Sprintf("Strike! %s", distance)
	case reason == as3935.ReasonNoise:
		ev.Kind = KindNoise
	case reason == as3935.ReasonDisturber:
		ev.Kind = KindDisturber
	case reason == as3935.ReasonNone:
		ev.Kind = KindNone
	case reason.Code() == codeStrongDisturber:
		ev.Kind = KindStrongDisturber
	default:
		ev.Kind = KindUnknown
	}
	return ev
}

// Line is the diagnostic description of the event.
func (e Event) Line() string {
	switch e.Kind {
	case KindLightning:
		return "[LIGHTNING] " + e.Text
	case KindNoise:
		return "[NOISE] electromagnetic noise detected"
	case KindDisturber:
		return "[DISTURBER] disturber detected"
	case KindNone:
		return "[INFO] no active interrupt"
	case KindStrongDisturber:
		return fmt.Sprintf("[DISTURBER] strong disturber (code %d)", e.Code)
	default:
		return fmt.Sprintf("[UNKNOWN] unrecognized event type: %d (0x%02X)", e.Code, e.Code)
	}
}
