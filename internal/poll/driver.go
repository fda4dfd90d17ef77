// Package poll runs the gateway's two background loops: the change-
// detection driver that fans out new blocks and witness changes to
// subscribers, and an independent health probe that keeps the upstream
// pool's failover decisions current even when nobody is asking for data.
package poll

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
)

// DefaultPeriod is the change-detection loop's tick interval.
const DefaultPeriod = 3 * time.Second

// SessionLister supplies the full set of currently open sessions, used for
// the legacy non-subscriber broadcast.
type SessionLister interface {
	Sessions() []*session.Session
}

// Driver periodically refreshes head state and, on a height change, fetches
// and broadcasts the derived artifacts any feed currently has subscribers
// for.
type Driver struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *subscribe.Registry
	Pool       *upstream.Pool
	Sessions   SessionLister
	Logger     *slog.Logger
	Period     time.Duration

	mu             sync.Mutex
	lastHeight     int64
	lastWitnesses  []string
	haveLastHeight bool
}

// NewDriver returns a Driver with Period defaulted when unset.
func NewDriver(d *dispatch.Dispatcher, registry *subscribe.Registry, pool *upstream.Pool, sessions SessionLister, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Dispatcher: d,
		Registry:   registry,
		Pool:       pool,
		Sessions:   sessions,
		Logger:     logger,
		Period:     DefaultPeriod,
	}
}

// Run blocks, ticking at Period until ctx is cancelled. A tick failure is
// logged and the loop continues - it never exits except via ctx.
func (d *Driver) Run(ctx context.Context) {
	period := d.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// ForceTick runs one iteration of the change-detection loop immediately,
// without waiting for the next tick.
func (d *Driver) ForceTick(ctx context.Context) {
	d.tick(ctx)
}

func (d *Driver) tick(ctx context.Context) {
	hs, err := d.Dispatcher.FetchHeadState(ctx)
	if err != nil {
		d.Logger.Warn("poll: head state refresh failed, failing over", "err", err)
		d.Pool.Failover()
		return
	}

	d.mu.Lock()
	changed := !d.haveLastHeight || hs.Height != d.lastHeight
	d.lastHeight = hs.Height
	d.haveLastHeight = true
	d.mu.Unlock()

	if changed {
		d.Registry.BroadcastTo(session.FeedHeadState, hs.Raw)
		d.fanOutBlockArtifacts(ctx, hs.Height)
		d.Registry.BroadcastLegacyToNonMembers(session.FeedHeadState, hs.Raw, d.Sessions.Sessions())
	}

	d.checkWitnesses(ctx)
}

func (d *Driver) fanOutBlockArtifacts(ctx context.Context, height int64) {
	if d.Registry.HasSubscribers(session.FeedBlockHeaders) {
		if raw, err := d.Dispatcher.FetchBlockHeader(ctx, height); err == nil {
			d.Registry.BroadcastTo(session.FeedBlockHeaders, raw)
		} else {
			d.Logger.Warn("poll: block header fetch failed", "height", height, "err", err)
		}
	}
	if d.Registry.HasSubscribers(session.FeedFullBlocks) {
		if raw, err := d.Dispatcher.FetchFullBlock(ctx, height); err == nil {
			d.Registry.BroadcastTo(session.FeedFullBlocks, raw)
		} else {
			d.Logger.Warn("poll: full block fetch failed", "height", height, "err", err)
		}
	}
	if d.Registry.HasSubscribers(session.FeedOperations) {
		if raw, err := d.Dispatcher.FetchOperations(ctx, height, false); err == nil {
			d.Registry.BroadcastTo(session.FeedOperations, raw)
		} else {
			d.Logger.Warn("poll: operations fetch failed", "height", height, "err", err)
		}
	}
}

// checkWitnesses compares the active witness list against the previously
// seen list by deep value equality, broadcasting only on change.
func (d *Driver) checkWitnesses(ctx context.Context) {
	witnesses, err := d.Dispatcher.FetchWitnesses(ctx)
	if err != nil {
		d.Logger.Warn("poll: witness refresh failed", "err", err)
		return
	}

	d.mu.Lock()
	unchanged := slices.Equal(d.lastWitnesses, witnesses)
	d.lastWitnesses = witnesses
	d.mu.Unlock()

	if unchanged {
		return
	}

	raw, err := json.Marshal(witnesses)
	if err != nil {
		return
	}
	d.Registry.BroadcastTo(session.FeedWitnesses, raw)
}
