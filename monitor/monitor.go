// Package monitor wires the sensor, the edge handler and its outputs into a running service.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/lightning/as3935"
	"github.com/mklimuk/lightning/config"
	"github.com/mklimuk/lightning/detector"
	"github.com/mklimuk/lightning/display"
	"github.com/mklimuk/lightning/metrics"
	"github.com/mklimuk/lightning/publish"
	"github.com/mklimuk/lightning/server"
)

type Monitor struct {
	cfg      config.Config
	platform *Platform
	logger   *slog.Logger
	clock    clockwork.Clock
	screen   display.Screen
	access   io.Writer
	registry *prometheus.Registry
	sinks    []detector.Sink
	history  *detector.EventLog
	stats    *metrics.Metrics
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithScreen replaces the terminal display.
func WithScreen(screen display.Screen) Option {
	return func(m *Monitor) {
		m.screen = screen
	}
}

// WithAccessLog sets where HTTP request lines go.
func WithAccessLog(w io.Writer) Option {
	return func(m *Monitor) {
		m.access = w
	}
}

// WithSinks adds event sinks on top of the configured brokers.
func WithSinks(sinks ...detector.Sink) Option {
	return func(m *Monitor) {
		m.sinks = append(m.sinks, sinks...)
	}
}

func New(cfg config.Config, platform *Platform, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		platform: platform,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		access:   os.Stderr,
		registry: prometheus.NewRegistry(),
		history:  detector.NewEventLog(detector.DefaultLogCapacity, detector.DefaultDisplayCount),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.stats = metrics.NewMetrics(m.registry)
	if m.screen == nil {
		m.screen = display.NewTerminal(os.Stdout, true)
	}
	return m
}

// History is the strike log shown on the display.
func (m *Monitor) History() *detector.EventLog {
	return m.history
}

// Run resets and configures the sensor, then handles edges until ctx is done.
// A sensor bus failure or a dead IRQ watcher stops everything.
func (m *Monitor) Run(ctx context.Context) error {
	sensor, err := as3935.New(ctx, m.platform.Bus, as3935.WithClock(m.clock))
	if err != nil {
		return err
	}
	err = Configure(ctx, sensor, m.cfg.Sensor, m.logger)
	if err != nil {
		return err
	}

	sinks := append([]detector.Sink{m.stats}, m.sinks...)
	brokers, closeBrokers, err := m.openBrokers()
	if err != nil {
		return err
	}
	defer closeBrokers()
	sinks = append(sinks, brokers...)

	det := detector.New(sensor,
		detector.WithClock(m.clock),
		detector.WithDebounce(m.cfg.Detector.Debounce),
		detector.WithEventLog(m.history),
		detector.WithSinks(sinks...),
		detector.WithEdgeObserver(m.stats),
		detector.WithLogger(m.logger),
	)
	edges := make(chan time.Time, m.cfg.IRQ.Buffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := m.platform.IRQ.Watch(gctx, edges)
		if err != nil {
			return fmt.Errorf("irq watcher stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return det.Run(gctx, edges)
	})
	if m.cfg.Display.Enabled {
		renderer := display.NewRenderer(m.screen, m.history,
			display.WithTitle(m.cfg.Display.Title),
			display.WithWidth(m.cfg.Display.Width),
			display.WithClock(m.clock),
			display.WithLogger(m.logger),
		)
		g.Go(func() error {
			return renderer.Run(gctx, m.cfg.Display.Interval)
		})
	}
	if m.cfg.HTTP.Listen != "" {
		srv := server.New(m.cfg.HTTP.Listen, m.history, m.registry, m.access, m.logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	m.logger.Info("lightning monitor running", "adapter", m.cfg.Adapter, "debounce", m.cfg.Detector.Debounce)
	return g.Wait()
}

func (m *Monitor) openBrokers() ([]detector.Sink, func(), error) {
	var sinks []detector.Sink
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			err := c.Close()
			if err != nil {
				m.logger.Warn("could not close publisher", "error", err)
			}
		}
	}
	if m.cfg.MQTT.Broker != "" {
		client, err := publish.NewMQTT(m.cfg.MQTT.Broker, m.cfg.MQTT.ClientID, m.cfg.MQTT.Topic, m.logger)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, client)
		closers = append(closers, client)
	}
	if len(m.cfg.Kafka.Brokers) > 0 {
		writer := publish.NewKafka(m.cfg.Kafka.Brokers, m.cfg.Kafka.Topic)
		sinks = append(sinks, writer)
		closers = append(closers, writer)
		m.logger.Info("publishing events to kafka", "brokers", m.cfg.Kafka.Brokers, "topic", m.cfg.Kafka.Topic)
	}
	return sinks, closeAll, nil
}
