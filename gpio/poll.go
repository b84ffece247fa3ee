package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultPollInterval = 5 * time.Millisecond

// LevelFunc reads the current level of an input line.
type LevelFunc func(ctx context.Context) (bool, error)

// Poller turns a line that can only be sampled into falling edge notifications.
// It is meant for bridges without interrupt support (MCP2221 GP lines, sysfs pins).
type Poller struct {
	level    LevelFunc
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

type PollerOption func(*Poller)

func WithPollClock(clock clockwork.Clock) PollerOption {
	return func(p *Poller) {
		p.clock = clock
	}
}

func WithPollLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

func NewPoller(level LevelFunc, interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		level:    level,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch samples the line every interval and signals every high to low transition.
// Edges carry the time of the sample that saw the line low. The first sample only
// primes the state. A read error stops the watch.
func (p *Poller) Watch(ctx context.Context, edges chan<- time.Time) error {
	prev, err := p.level(ctx)
	if err != nil {
		return fmt.Errorf("could not sample irq line: %w", err)
	}
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
		seen := p.clock.Now()
		level, err := p.level(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("could not sample irq line: %w", err)
		}
		if prev && !level {
			select {
			case edges <- seen:
			default:
				p.logger.Warn("irq edge dropped, handler is lagging")
			}
		}
		prev = level
	}
}
