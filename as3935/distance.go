package as3935

import "fmt"

// Distance is the estimated distance to the storm front in kilometers.
type Distance byte

const (
	DistanceOverhead   Distance = 0x00
	DistanceOutOfRange Distance = 0x3F
)

func distanceFromRegister(value byte) Distance {
	return Distance(value & maskDistance)
}

// Km returns the distance in kilometers.
func (d Distance) Km() int {
	return int(d)
}

func (d Distance) String() string {
	switch d {
	case DistanceOverhead:
		return "overhead"
	case DistanceOutOfRange:
		return ">63km"
	default:
		return fmt.Sprintf("%dkm", byte(d))
	}
}
