// Package upstream manages the set of JSON-RPC endpoints a gateway talks to:
// health tracking, failover selection, and a retrying call wrapper.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultRecoveryWindow is how long an endpoint stays excluded from
// selection after its last recorded failure.
const DefaultRecoveryWindow = 60 * time.Second

// RPCClient is the opaque collaborator that actually speaks JSON-RPC to one
// endpoint. Callers supply their own implementation (see httpRPCClient for
// the one this package ships).
type RPCClient interface {
	Call(ctx context.Context, method string, args []any) (json.RawMessage, error)
}

// Health tracks per-endpoint call statistics used to rank candidates during
// failover. It is only ever mutated by the owning Endpoint under its own
// mutex.
type Health struct {
	Healthy       bool
	ErrorCount    int
	LastError     time.Time
	LastSuccess   time.Time
	AvgLatency    time.Duration
	TotalRequests int64
}

// Endpoint pairs an RPCClient with the health record the pool uses to decide
// whether to keep using it.
type Endpoint struct {
	URL    string
	Client RPCClient

	mu     sync.Mutex
	health Health
}

// NewEndpoint returns an Endpoint that starts out healthy.
func NewEndpoint(url string, client RPCClient) *Endpoint {
	return &Endpoint{
		URL:    url,
		Client: client,
		health: Health{Healthy: true},
	}
}

// Health returns a copy of the endpoint's current health record.
func (e *Endpoint) Health() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

// recordSuccess updates rolling statistics after a successful call.
func (e *Endpoint) recordSuccess(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health.Healthy = true
	e.health.LastSuccess = time.Now()
	e.health.TotalRequests++
	n := e.health.TotalRequests
	if n <= 1 {
		e.health.AvgLatency = latency
	} else {
		prev := e.health.AvgLatency
		e.health.AvgLatency = time.Duration((int64(prev)*(n-1) + int64(latency)) / n)
	}
}

// recordFailure marks the endpoint as failed as of now.
func (e *Endpoint) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health.ErrorCount++
	e.health.LastError = time.Now()
	e.health.Healthy = false
}

// recordLatency updates the rolling average without touching health/error
// state, used by the health probe for slow-but-successful calls.
func (e *Endpoint) recordLatency(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.health.TotalRequests
	if n <= 0 {
		e.health.AvgLatency = latency
		return
	}
	prev := e.health.AvgLatency
	e.health.AvgLatency = time.Duration((int64(prev)*n + int64(latency)) / (n + 1))
}

// eligible reports whether the endpoint may be selected during failover:
// either currently healthy, or its last failure is older than recovery.
func (e *Endpoint) eligible(recovery time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.health.Healthy {
		return true
	}
	return !e.health.LastError.IsZero() && time.Since(e.health.LastError) >= recovery
}

// Pool holds an ordered set of endpoints and a sticky "current" index.
// Call always goes to the current endpoint; Failover re-ranks the survivors
// and moves the sticky index.
type Pool struct {
	// OnFailover, if set, is called whenever Failover actually switches the
	// sticky endpoint - never on a no-op call. The runner wires this to drop
	// the cache bundle and record an audit event, keeping Pool itself
	// unaware of either concern.
	OnFailover func(oldIndex, newIndex int)

	mu             sync.Mutex
	endpoints      []*Endpoint
	current        int
	recoveryWindow time.Duration
}

// NewPool builds a Pool over the given endpoints. recoveryWindow defaults to
// DefaultRecoveryWindow when non-positive.
func NewPool(endpoints []*Endpoint, recoveryWindow time.Duration) *Pool {
	if recoveryWindow <= 0 {
		recoveryWindow = DefaultRecoveryWindow
	}
	return &Pool{
		endpoints:      endpoints,
		recoveryWindow: recoveryWindow,
	}
}

// ErrNoEndpoints is returned when a Pool has no configured endpoints.
var ErrNoEndpoints = errors.New("upstream: no endpoints configured")

// Current returns the sticky current endpoint and its index.
func (p *Pool) Current() (*Endpoint, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.endpoints) == 0 {
		return nil, -1
	}
	return p.endpoints[p.current], p.current
}

// Call invokes method on the current endpoint and updates its health record.
func (p *Pool) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	ep, _ := p.Current()
	if ep == nil {
		return nil, ErrNoEndpoints
	}

	start := time.Now()
	result, err := ep.Client.Call(ctx, method, args)
	if err != nil {
		ep.recordFailure()
		return nil, err
	}
	ep.recordSuccess(time.Since(start))
	return result, nil
}

// Failover re-ranks eligible endpoints (healthy first, then lower error
// count, then lower average latency) and switches the sticky index to the
// best survivor. If no endpoint is eligible, the current index is left
// unchanged.
func (p *Pool) Failover() {
	p.mu.Lock()
	if len(p.endpoints) == 0 {
		p.mu.Unlock()
		return
	}

	survivors := make([]int, 0, len(p.endpoints))
	for i, ep := range p.endpoints {
		if ep.eligible(p.recoveryWindow) {
			survivors = append(survivors, i)
		}
	}
	if len(survivors) == 0 {
		p.mu.Unlock()
		return
	}

	sort.Slice(survivors, func(a, b int) bool {
		ha := p.endpoints[survivors[a]].Health()
		hb := p.endpoints[survivors[b]].Health()
		if ha.Healthy != hb.Healthy {
			return ha.Healthy
		}
		if ha.ErrorCount != hb.ErrorCount {
			return ha.ErrorCount < hb.ErrorCount
		}
		return ha.AvgLatency < hb.AvgLatency
	})

	old := p.current
	p.current = survivors[0]
	changed := old != p.current
	hook := p.OnFailover
	p.mu.Unlock()

	if changed && hook != nil {
		hook(old, p.current)
	}
}

// RecordSlow updates the current endpoint's latency estimate without
// forcing a failover, used by the health probe for slow-but-successful
// calls.
func (p *Pool) RecordSlow(latency time.Duration) {
	ep, _ := p.Current()
	if ep == nil {
		return
	}
	ep.recordLatency(latency)
}

// Endpoints returns the pool's configured endpoints in order. The returned
// slice is owned by the caller and must not be mutated.
func (p *Pool) Endpoints() []*Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}
