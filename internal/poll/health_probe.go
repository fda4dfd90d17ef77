package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/upstream"
)

// DefaultHealthPeriod is the health probe's tick interval.
const DefaultHealthPeriod = 30 * time.Second

// DefaultSlowThreshold is how long a head-state call may take before it's
// considered slow (but still successful).
const DefaultSlowThreshold = 2 * time.Second

// HealthProbe runs an independent ticker doing a cheap head-state call: a
// failure forces a failover, a slow-but-successful call only updates the
// endpoint's latency estimate.
type HealthProbe struct {
	Dispatcher    *dispatch.Dispatcher
	Pool          *upstream.Pool
	Logger        *slog.Logger
	Period        time.Duration
	SlowThreshold time.Duration
}

// NewHealthProbe returns a HealthProbe with defaults applied where unset.
func NewHealthProbe(d *dispatch.Dispatcher, pool *upstream.Pool, logger *slog.Logger) *HealthProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthProbe{
		Dispatcher:    d,
		Pool:          pool,
		Logger:        logger,
		Period:        DefaultHealthPeriod,
		SlowThreshold: DefaultSlowThreshold,
	}
}

// Run blocks, ticking at Period until ctx is cancelled.
func (p *HealthProbe) Run(ctx context.Context) {
	period := p.Period
	if period <= 0 {
		period = DefaultHealthPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// ForceTick runs one probe iteration immediately, without waiting for the
// next tick.
func (p *HealthProbe) ForceTick(ctx context.Context) {
	p.tick(ctx)
}

func (p *HealthProbe) tick(ctx context.Context) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.Pool.Call(callCtx, dispatch.HeadStateMethod, nil)
	latency := time.Since(start)

	if err != nil {
		p.Logger.Warn("poll: health probe call failed, forcing failover", "err", err)
		p.Pool.Failover()
		return
	}

	threshold := p.SlowThreshold
	if threshold <= 0 {
		threshold = DefaultSlowThreshold
	}
	if latency > threshold {
		p.Pool.RecordSlow(latency)
	}
}
