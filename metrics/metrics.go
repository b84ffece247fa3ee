package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mklimuk/lightning/detector"
)

const namespace = "lightning"

var (
	_ detector.Sink         = &Metrics{}
	_ detector.EdgeObserver = &Metrics{}
)

// Metrics counts IRQ edges and classified events.
type Metrics struct {
	Edges        *prometheus.CounterVec // labels: result={admitted,dropped}
	Events       *prometheus.CounterVec // labels: kind
	LastDistance prometheus.Gauge
	LastStrike   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "irq_edges_total",
			Help:      "IRQ edges seen by the debouncer.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Classified sensor events by kind.",
		}, []string{"kind"}),
		LastDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_strike_distance_km",
			Help:      "Estimated distance to the storm front at the last strike.",
		}),
		LastStrike: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_strike_timestamp_seconds",
			Help:      "Unix time of the last strike.",
		}),
	}
	reg.MustRegister(m.Edges, m.Events, m.LastDistance, m.LastStrike)
	return m
}

func (m *Metrics) ObserveEdge(admitted bool) {
	if admitted {
		m.Edges.WithLabelValues("admitted").Inc()
		return
	}
	m.Edges.WithLabelValues("dropped").Inc()
}

func (m *Metrics) Publish(ctx context.Context, ev detector.Event) error {
	m.Events.WithLabelValues(ev.Kind.String()).Inc()
	if ev.Kind == detector.KindLightning {
		m.LastDistance.Set(float64(ev.Distance.Km()))
		m.LastStrike.Set(float64(ev.Time.Unix()))
	}
	return nil
}
