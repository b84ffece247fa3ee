package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mklimuk/lightning/as3935"
	"github.com/mklimuk/lightning/config"
)

// Tunable is the part of the driver touched by the startup configuration.
type Tunable interface {
	SetIndoors(ctx context.Context) error
	SetOutdoors(ctx context.Context) error
	CalibrateRCO(ctx context.Context) error
	CalibrationStatus(ctx context.Context) (as3935.Calibration, error)
	SetNoiseFloor(ctx context.Context, level int) error
	SetWatchdogThreshold(ctx context.Context, threshold int) error
	SetSpikeRejection(ctx context.Context, rejection int) error
}

// Configure applies the sensor settings. Out of range thresholds are skipped with a warning,
// bus errors abort.
func Configure(ctx context.Context, sensor Tunable, cfg config.Sensor, logger *slog.Logger) error {
	var err error
	switch cfg.Location {
	case config.LocationOutdoor:
		err = sensor.SetOutdoors(ctx)
	default:
		err = sensor.SetIndoors(ctx)
	}
	if err != nil {
		return fmt.Errorf("could not set sensor location: %w", err)
	}
	if cfg.Calibrate {
		err = sensor.CalibrateRCO(ctx)
		if err != nil {
			return fmt.Errorf("could not calibrate oscillators: %w", err)
		}
		status, err := sensor.CalibrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("could not read calibration status: %w", err)
		}
		if !status.OK() {
			logger.Warn("oscillator calibration not confirmed", "status", fmt.Sprintf("%+v", status))
		}
	}
	settings := []struct {
		name  string
		value *int
		set   func(context.Context, int) error
	}{
		{"noise floor", cfg.NoiseFloor, sensor.SetNoiseFloor},
		{"watchdog threshold", cfg.WatchdogThreshold, sensor.SetWatchdogThreshold},
		{"spike rejection", cfg.SpikeRejection, sensor.SetSpikeRejection},
	}
	for _, s := range settings {
		if s.value == nil {
			continue
		}
		err = s.set(ctx, *s.value)
		if errors.Is(err, as3935.ErrOutOfRange) {
			logger.Warn("sensor setting ignored", "setting", s.name, "value", *s.value, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("could not set %s: %w", s.name, err)
		}
	}
	logger.Info("sensor configured", "location", cfg.Location)
	return nil
}
