// Package publish forwards classified events to message brokers.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mklimuk/lightning/detector"
)

// Payload is the broker representation of an event.
type Payload struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Code        byte      `json:"code"`
	DistanceKm  *int      `json:"distance_km,omitempty"`
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
}

func NewPayload(ev detector.Event) Payload {
	p := Payload{
		ID:          ev.ID,
		Kind:        ev.Kind.String(),
		Code:        ev.Code,
		Description: ev.Line(),
		Time:        ev.Time.UTC(),
	}
	if ev.Kind == detector.KindLightning {
		km := ev.Distance.Km()
		p.DistanceKm = &km
	}
	return p
}

func encode(ev detector.Event) ([]byte, error) {
	data, err := json.Marshal(NewPayload(ev))
	if err != nil {
		return nil, fmt.Errorf("could not serialize event %s: %w", ev.ID, err)
	}
	return data, nil
}
