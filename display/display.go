// Package display paints the recent lightning history on a small text screen.
package display

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTitle    = "Lightning sensor"
	DefaultWidth    = 16
	DefaultInterval = time.Second

	idleLine1 = "No strikes"
	idleLine2 = "Waiting..."
)

// Screen accepts a full frame of text lines and presents it.
type Screen interface {
	Paint(ctx context.Context, lines []string) error
}

// Source provides the entries to show, newest first.
type Source interface {
	Snapshot() []string
}

type Renderer struct {
	screen Screen
	source Source
	title  string
	width  int
	clock  clockwork.Clock
	logger *slog.Logger
}

type Option func(*Renderer)

func WithTitle(title string) Option {
	return func(r *Renderer) {
		r.title = title
	}
}

func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Renderer) {
		r.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func NewRenderer(screen Screen, source Source, opts ...Option) *Renderer {
	r := &Renderer{
		screen: screen,
		source: source,
		title:  DefaultTitle,
		width:  DefaultWidth,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Frame builds the lines of a single screen refresh.
func (r *Renderer) Frame() []string {
	lines := []string{r.cut(r.title), strings.Repeat("-", r.width)}
	entries := r.source.Snapshot()
	if len(entries) == 0 {
		return append(lines, idleLine1, idleLine2)
	}
	for _, e := range entries {
		lines = append(lines, r.cut(e))
	}
	return lines
}

func (r *Renderer) cut(line string) string {
	runes := []rune(line)
	if len(runes) > r.width {
		return string(runes[:r.width])
	}
	return line
}

func (r *Renderer) Render(ctx context.Context) error {
	return r.screen.Paint(ctx, r.Frame())
}

// Run repaints the screen right away and then on every tick until ctx is done.
// Paint failures are logged, the loop keeps going.
func (r *Renderer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := r.Render(ctx)
		if err != nil {
			r.logger.Warn("could not paint display", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}
