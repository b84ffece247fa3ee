// Package config holds the lightning monitor settings, read from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterPeriph  = "periph"
	AdapterNanoPi  = "nanopi"
	AdapterMCP2221 = "mcp2221"
	AdapterI2C     = "i2c"
)

const (
	LocationIndoor  = "indoor"
	LocationOutdoor = "outdoor"
)

var adapters = []string{AdapterPeriph, AdapterNanoPi, AdapterMCP2221, AdapterI2C}

type Config struct {
	Adapter  string   `yaml:"adapter"`
	SPI      SPI      `yaml:"spi"`
	I2C      I2C      `yaml:"i2c"`
	Pins     Pins     `yaml:"pins"`
	IRQ      IRQ      `yaml:"irq"`
	Sensor   Sensor   `yaml:"sensor"`
	Detector Detector `yaml:"detector"`
	Display  Display  `yaml:"display"`
	HTTP     HTTP     `yaml:"http"`
	MQTT     MQTT     `yaml:"mqtt"`
	Kafka    Kafka    `yaml:"kafka"`
}

type SPI struct {
	// Device is the periph port name, empty picks the first spidev.
	Device  string `yaml:"device"`
	SpeedHz int64  `yaml:"speed_hz"`
	Mode    int    `yaml:"mode"`
	// Bus and Chip select the spidev on Gobot adaptors.
	Bus  int `yaml:"bus"`
	Chip int `yaml:"chip"`
}

type I2C struct {
	Device  string `yaml:"device"`
	Address byte   `yaml:"address"`
	// SpeedHz changes the host bus clock when set.
	SpeedHz int64 `yaml:"speed_hz"`
	// Index picks the USB bridge when more than one is attached.
	Index int `yaml:"index"`
}

// Pins names the chip select and IRQ lines. Names follow the adaptor in use:
// periph names ("GPIO8"), header pins for Gobot ("24"), GP index for the MCP2221 ("1").
type Pins struct {
	ChipSelect string `yaml:"chip_select"`
	IRQ        string `yaml:"irq"`
}

type IRQ struct {
	// PollInterval applies to adaptors without edge detection.
	PollInterval time.Duration `yaml:"poll_interval"`
	Buffer       int           `yaml:"buffer"`
}

// Sensor settings left nil keep the power-on defaults.
type Sensor struct {
	Location          string `yaml:"location"`
	NoiseFloor        *int   `yaml:"noise_floor,omitempty"`
	WatchdogThreshold *int   `yaml:"watchdog_threshold,omitempty"`
	SpikeRejection    *int   `yaml:"spike_rejection,omitempty"`
	Calibrate         bool   `yaml:"calibrate"`
}

type Detector struct {
	Debounce time.Duration `yaml:"debounce"`
}

type Display struct {
	Enabled  bool          `yaml:"enabled"`
	Title    string        `yaml:"title"`
	Width    int           `yaml:"width"`
	Interval time.Duration `yaml:"interval"`
}

// HTTP serves health, recent events and metrics. An empty listen address disables it.
type HTTP struct {
	Listen string `yaml:"listen"`
}

// MQTT publishing is disabled without a broker.
type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Kafka publishing is disabled without brokers.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Default() Config {
	return Config{
		Adapter: AdapterPeriph,
		SPI: SPI{
			SpeedHz: 2_000_000,
			Mode:    1,
		},
		I2C: I2C{
			Device:  "",
			Address: 0x03,
		},
		Pins: Pins{
			ChipSelect: "GPIO8",
			IRQ:        "GPIO25",
		},
		IRQ: IRQ{
			PollInterval: 5 * time.Millisecond,
			Buffer:       8,
		},
		Sensor: Sensor{
			Location:  LocationIndoor,
			Calibrate: true,
		},
		Detector: Detector{
			Debounce: 200 * time.Millisecond,
		},
		Display: Display{
			Enabled:  true,
			Title:    "Lightning sensor",
			Width:    16,
			Interval: time.Second,
		},
		HTTP: HTTP{
			Listen: ":9935",
		},
		MQTT: MQTT{
			ClientID: "lightning",
			Topic:    "lightning",
		},
		Kafka: Kafka{
			Topic: "lightning-events",
		},
	}
}

// Load reads path over the defaults. A missing path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	err = dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("could not decode config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(adapters, c.Adapter) {
		errs = append(errs, fmt.Errorf("unknown adapter %q", c.Adapter))
	}
	if c.Sensor.Location != LocationIndoor && c.Sensor.Location != LocationOutdoor {
		errs = append(errs, fmt.Errorf("unknown sensor location %q", c.Sensor.Location))
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 3 {
		errs = append(errs, fmt.Errorf("invalid spi mode %d", c.SPI.Mode))
	}
	if c.SPI.SpeedHz <= 0 {
		errs = append(errs, errors.New("spi speed must be positive"))
	}
	if c.Detector.Debounce <= 0 {
		errs = append(errs, errors.New("debounce window must be positive"))
	}
	if c.Display.Interval <= 0 {
		errs = append(errs, errors.New("display interval must be positive"))
	}
	if c.IRQ.PollInterval <= 0 {
		errs = append(errs, errors.New("irq poll interval must be positive"))
	}
	if c.IRQ.Buffer < 0 {
		errs = append(errs, errors.New("irq buffer can not be negative"))
	}
	if c.Pins.IRQ == "" {
		errs = append(errs, errors.New("irq pin is required"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt topic is required when broker is set"))
	}
	return errors.Join(errs...)
}
