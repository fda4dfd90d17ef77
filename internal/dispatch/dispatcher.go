// Package dispatch resolves inbound frames against the gateway's closed
// method table and routes them to cached read handlers, subscription
// registry mutations, or an uncached upstream pass-through.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/chain"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
)

// Default freshness windows. HeadTTL is deliberately short (the gateway
// polls upstream on this cadence); BlockTTL is long because a stored block
// artifact never changes.
const (
	DefaultHeadTTL    = 3 * time.Second
	DefaultWitnessTTL = 60 * time.Second
	DefaultBlockTTL   = 10 * time.Minute
)

// Dispatcher parses and routes inbound frames for one gateway instance. It
// also exposes its cached fetch helpers (FetchHeadState, FetchBlockHeader,
// ...) so the poll driver can reuse the exact same cache-population path a
// client request would take.
type Dispatcher struct {
	Bundle   *cache.Bundle
	Caller   *upstream.Caller
	Pool     *upstream.Pool
	Registry *subscribe.Registry
	Logger   *slog.Logger

	HeadTTL    time.Duration
	WitnessTTL time.Duration
	BlockTTL   time.Duration
}

// New returns a Dispatcher wired to the given collaborators, applying
// default TTLs where the caller leaves them unset.
func New(bundle *cache.Bundle, caller *upstream.Caller, pool *upstream.Pool, registry *subscribe.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Bundle:     bundle,
		Caller:     caller,
		Pool:       pool,
		Registry:   registry,
		Logger:     logger,
		HeadTTL:    DefaultHeadTTL,
		WitnessTTL: DefaultWitnessTTL,
		BlockTTL:   DefaultBlockTTL,
	}
}

// Handle parses raw and routes it to the matching handler, always returning
// a reply frame - success or error - never an error return value, per the
// spec's "the dispatcher always returns a reply frame" rule. The second
// return value, when non-nil, is a follow-up action the caller must run
// only after the reply frame has been sent - used by subscribe to deliver
// an already-warm immediate snapshot strictly after its ack, never before.
func (d *Dispatcher) Handle(ctx context.Context, sess *session.Session, raw RawFrame) (Frame, func()) {
	var req requestFrame
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorFrame(unknownID, "", fmt.Errorf("%w: %v", ErrInvalidFrame, err)), nil
	}
	if req.Method == "" {
		return errorFrame(req.ID, req.Method, ErrMissingMethod), nil
	}

	id, ok := methodTable[req.Method]
	if !ok {
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)), nil
	}

	args, err := parseArgs(req.Params)
	if err != nil {
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrInvalidFrame, err)), nil
	}

	switch id {
	case handlerHeadState:
		return d.handleHeadState(ctx, req), nil
	case handlerBlockHeader:
		return d.handleBlockHeader(ctx, req, args), nil
	case handlerFullBlock:
		return d.handleFullBlock(ctx, req, args), nil
	case handlerOperationsInBlock:
		return d.handleOperationsInBlock(ctx, req, args), nil
	case handlerActiveWitnesses:
		return d.handleActiveWitnesses(ctx, req), nil
	case handlerTransaction:
		return d.handleTransaction(ctx, req, args), nil
	case handlerSubscribe:
		return d.handleSubscribe(sess, req, args)
	case handlerUnsubscribe:
		return d.handleUnsubscribe(sess, req, args), nil
	default:
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)), nil
	}
}

// requiredArg decodes args[index] into T, returning missing verbatim when
// the argument is absent so the client sees which field was at fault
// rather than a generic "missing argument" message.
func requiredArg[T any](args []json.RawMessage, index int, missing error) (T, error) {
	var zero T
	if index >= len(args) {
		return zero, missing
	}
	var v T
	if err := json.Unmarshal(args[index], &v); err != nil {
		return zero, fmt.Errorf("%w: %v", missing, err)
	}
	return v, nil
}

func optionalBoolArg(args []json.RawMessage, index int, fallback bool) bool {
	if index >= len(args) {
		return fallback
	}
	var v bool
	if err := json.Unmarshal(args[index], &v); err != nil {
		return fallback
	}
	return v
}

// failoverOnNetworkError forces the pool onto a different endpoint when err
// looks like a network or timeout failure, so the next unrelated call
// immediately begins on a fresh endpoint instead of waiting for the next
// scheduled poll or health probe tick. This runs outside the retrying
// caller's own in-loop failover, on the dispatcher's error-reporting path.
func (d *Dispatcher) failoverOnNetworkError(err error) {
	if upstream.IsNetworkOrTimeout(err) {
		d.Pool.Failover()
	}
}

func (d *Dispatcher) handleHeadState(ctx context.Context, req requestFrame) Frame {
	hs, err := d.FetchHeadState(ctx)
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, hs.Raw)
}

func (d *Dispatcher) handleBlockHeader(ctx context.Context, req requestFrame, args []json.RawMessage) Frame {
	height, err := requiredArg[int64](args, 0, ErrBlockNumberRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}
	result, err := d.FetchBlockHeader(ctx, height)
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, result)
}

func (d *Dispatcher) handleFullBlock(ctx context.Context, req requestFrame, args []json.RawMessage) Frame {
	height, err := requiredArg[int64](args, 0, ErrBlockNumberRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}
	result, err := d.FetchFullBlock(ctx, height)
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, result)
}

func (d *Dispatcher) handleOperationsInBlock(ctx context.Context, req requestFrame, args []json.RawMessage) Frame {
	height, err := requiredArg[int64](args, 0, ErrBlockNumberRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}
	onlyVirtual := optionalBoolArg(args, 1, false)

	result, err := d.FetchOperations(ctx, height, onlyVirtual)
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, result)
}

func (d *Dispatcher) handleActiveWitnesses(ctx context.Context, req requestFrame) Frame {
	witnesses, err := d.FetchWitnessesRaw(ctx)
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, witnesses)
}

func (d *Dispatcher) handleTransaction(ctx context.Context, req requestFrame, args []json.RawMessage) Frame {
	txID, err := requiredArg[string](args, 0, ErrTransactionIDRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	result, err := d.Caller.Call(callCtx, bareMethods[handlerTransaction], []any{txID})
	if err != nil {
		d.failoverOnNetworkError(err)
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %v", ErrUpstreamFailure, err))
	}
	return successFrame(req.ID, result)
}

// subscriptionAck is the result payload of a subscribe/unsubscribe call,
// naming the feed alongside the new membership state so a client juggling
// several in-flight subscribe calls can tell which one just resolved.
type subscriptionAck struct {
	Subscribed bool         `json:"subscribed"`
	Type       session.Feed `json:"type"`
}

func (d *Dispatcher) handleSubscribe(sess *session.Session, req requestFrame, args []json.RawMessage) (Frame, func()) {
	feedName, err := requiredArg[string](args, 0, ErrFeedRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err), nil
	}
	feed, ok := session.ParseFeed(feedName)
	if !ok {
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %s", ErrUnknownFeed, feedName)), nil
	}

	d.Registry.Add(feed, sess)

	ack, err := json.Marshal(subscriptionAck{Subscribed: true, Type: feed})
	if err != nil {
		return errorFrame(req.ID, req.Method, err), nil
	}

	// If the backing slot is already populated, deliver the snapshot after
	// the ack so the client never sees a gap before the next periodic
	// fan-out, and always sees its subscribe response before the first
	// datum - the caller must invoke this only once the ack has been sent.
	var after func()
	if payload, ok := d.peekFeedPayload(feed); ok {
		after = func() { d.Registry.BroadcastTo(feed, payload) }
	}

	return successFrame(req.ID, ack), after
}

func (d *Dispatcher) handleUnsubscribe(sess *session.Session, req requestFrame, args []json.RawMessage) Frame {
	feedName, err := requiredArg[string](args, 0, ErrFeedRequired)
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}
	feed, ok := session.ParseFeed(feedName)
	if !ok {
		return errorFrame(req.ID, req.Method, fmt.Errorf("%w: %s", ErrUnknownFeed, feedName))
	}

	d.Registry.Remove(feed, sess)

	ack, err := json.Marshal(subscriptionAck{Subscribed: false, Type: feed})
	if err != nil {
		return errorFrame(req.ID, req.Method, err)
	}
	return successFrame(req.ID, ack)
}

// peekFeedPayload returns the currently materialized payload for a feed
// that is always populated once warm (head-state, witnesses), without
// triggering a refresh.
func (d *Dispatcher) peekFeedPayload(feed session.Feed) (json.RawMessage, bool) {
	switch feed {
	case session.FeedHeadState:
		hs, present := d.Bundle.Head.Peek()
		if !present {
			return nil, false
		}
		return hs.Raw, true
	case session.FeedWitnesses:
		list, present := d.Bundle.Witness.Peek()
		if !present {
			return nil, false
		}
		b, err := json.Marshal(list)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return nil, false
	}
}

// FetchHeadState returns the cached head state, refreshing from upstream
// via the retrying caller when stale.
func (d *Dispatcher) FetchHeadState(ctx context.Context) (chain.HeadState, error) {
	return d.Bundle.Head.GetOrRefresh(d.HeadTTL, func() (chain.HeadState, error) {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		raw, err := d.Caller.Call(callCtx, bareMethods[handlerHeadState], nil)
		if err != nil {
			return chain.HeadState{}, err
		}
		return chain.ParseHeadState(raw)
	}, &d.Bundle.Counters)
}

// FetchWitnessesRaw returns the active witness list as a JSON array,
// refreshing from upstream when stale.
func (d *Dispatcher) FetchWitnessesRaw(ctx context.Context) (json.RawMessage, error) {
	list, err := d.FetchWitnesses(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(list)
}

// FetchWitnesses returns the active witness list, refreshing from upstream
// via the retrying caller when stale.
func (d *Dispatcher) FetchWitnesses(ctx context.Context) ([]string, error) {
	return d.Bundle.Witness.GetOrRefresh(d.WitnessTTL, func() ([]string, error) {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		raw, err := d.Caller.Call(callCtx, bareMethods[handlerActiveWitnesses], nil)
		if err != nil {
			return nil, err
		}
		return chain.ParseWitnesses(raw)
	}, &d.Bundle.Counters)
}

// FetchBlockHeader returns the header for height, from the bounded map if
// present else fetched and stored.
func (d *Dispatcher) FetchBlockHeader(ctx context.Context, height int64) (json.RawMessage, error) {
	if v, ok := d.Bundle.Headers.Lookup(height, d.BlockTTL, &d.Bundle.Counters); ok {
		return v, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	raw, err := d.Caller.Call(callCtx, bareMethods[handlerBlockHeader], []any{height})
	if err != nil {
		return nil, err
	}
	d.Bundle.Headers.Store(height, raw)
	return raw, nil
}

// FetchFullBlock returns the full block body for height, from the bounded
// map if present else fetched and stored.
func (d *Dispatcher) FetchFullBlock(ctx context.Context, height int64) (json.RawMessage, error) {
	if v, ok := d.Bundle.Blocks.Lookup(height, d.BlockTTL, &d.Bundle.Counters); ok {
		return v, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	raw, err := d.Caller.Call(callCtx, bareMethods[handlerFullBlock], []any{height})
	if err != nil {
		return nil, err
	}
	d.Bundle.Blocks.Store(height, raw)
	return raw, nil
}

// FetchOperations returns the operations for (height, onlyVirtual), from
// the bounded map if present else fetched and stored.
func (d *Dispatcher) FetchOperations(ctx context.Context, height int64, onlyVirtual bool) (json.RawMessage, error) {
	key := chain.OpsKey{Height: height, OnlyVirtual: onlyVirtual}
	if v, ok := d.Bundle.Ops.Lookup(key, d.BlockTTL, &d.Bundle.Counters); ok {
		return v, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	raw, err := d.Caller.Call(callCtx, bareMethods[handlerOperationsInBlock], []any{height, onlyVirtual})
	if err != nil {
		return nil, err
	}
	d.Bundle.Ops.Store(key, raw)
	return raw, nil
}
