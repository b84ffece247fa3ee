package as3935

import "fmt"

// InterruptReason is the 4 bit INT field of register 0x03.
type InterruptReason byte

const (
	ReasonNone      InterruptReason = 0x00
	ReasonNoise     InterruptReason = 0x01
	ReasonDisturber InterruptReason = 0x04
	ReasonLightning InterruptReason = 0x08
)

func reasonFromRegister(value byte) InterruptReason {
	return InterruptReason(value & maskInterrupt)
}

// Known reports whether the code is one of the values documented in the datasheet.
func (r InterruptReason) Known() bool {
	switch r {
	case ReasonNone, ReasonNoise, ReasonDisturber, ReasonLightning:
		return true
	default:
		return false
	}
}

// Code returns the raw code, useful for diagnostics of unknown reasons.
func (r InterruptReason) Code() byte {
	return byte(r)
}

func (r InterruptReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoise:
		return "noise"
	case ReasonDisturber:
		return "disturber"
	case ReasonLightning:
		return "lightning"
	default:
		return fmt.Sprintf("unknown(%d)", byte(r))
	}
}
