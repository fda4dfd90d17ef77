// Package upstream_test provides behavior tests for the upstream package.
package upstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jroosing/chaingate/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scriptable RPCClient for pool/caller tests.
type fakeClient struct {
	calls   atomic.Int64
	err     error
	result  json.RawMessage
	latency time.Duration
}

func (f *fakeClient) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestPool_CallUsesCurrentEndpoint(t *testing.T) {
	fc := &fakeClient{result: json.RawMessage(`"ok"`)}
	ep := upstream.NewEndpoint("a", fc)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)

	result, err := pool.Call(context.Background(), "get_head", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"ok"`), result)
	assert.Equal(t, int64(1), fc.calls.Load())
	assert.True(t, ep.Health().Healthy)
	assert.Equal(t, int64(1), ep.Health().TotalRequests)
}

func TestPool_CallRecordsFailure(t *testing.T) {
	fc := &fakeClient{err: errors.New("boom")}
	ep := upstream.NewEndpoint("a", fc)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)

	_, err := pool.Call(context.Background(), "get_head", nil)
	require.Error(t, err)
	assert.False(t, ep.Health().Healthy)
	assert.Equal(t, 1, ep.Health().ErrorCount)
}

func TestPool_FailoverPrefersHealthy(t *testing.T) {
	bad := upstream.NewEndpoint("bad", &fakeClient{err: errors.New("down")})
	good := upstream.NewEndpoint("good", &fakeClient{result: json.RawMessage(`1`)})
	pool := upstream.NewPool([]*upstream.Endpoint{bad, good}, time.Minute)

	// Force bad to fail first so it's no longer eligible.
	_, _ = pool.Call(context.Background(), "x", nil) // bad is current, fails
	pool.Failover()

	cur, idx := pool.Current()
	assert.Equal(t, good, cur)
	assert.Equal(t, 1, idx)
}

func TestPool_FailoverKeepsCurrentWhenNoneEligible(t *testing.T) {
	a := upstream.NewEndpoint("a", &fakeClient{err: errors.New("down")})
	b := upstream.NewEndpoint("b", &fakeClient{err: errors.New("down")})
	pool := upstream.NewPool([]*upstream.Endpoint{a, b}, time.Minute)

	_, _ = pool.Call(context.Background(), "x", nil) // a fails
	pool.Failover()                                  // b has not failed yet, so it takes over
	_, _ = pool.Call(context.Background(), "x", nil) // b fails too: neither is eligible now
	_, beforeIdx := pool.Current()

	pool.Failover()
	b.Health() // touch, noop

	_, afterIdx := pool.Current()
	assert.Equal(t, beforeIdx, afterIdx)
}

func TestPool_FailoverRecoversAfterWindow(t *testing.T) {
	a := upstream.NewEndpoint("a", &fakeClient{err: errors.New("down")})
	pool := upstream.NewPool([]*upstream.Endpoint{a}, time.Millisecond)

	_, _ = pool.Call(context.Background(), "x", nil)
	time.Sleep(5 * time.Millisecond)

	pool.Failover()
	cur, _ := pool.Current()
	assert.Equal(t, a, cur)
}

func TestPool_FailoverFiresOnFailoverOnlyWhenIndexChanges(t *testing.T) {
	bad := upstream.NewEndpoint("bad", &fakeClient{err: errors.New("down")})
	good := upstream.NewEndpoint("good", &fakeClient{result: json.RawMessage(`1`)})
	pool := upstream.NewPool([]*upstream.Endpoint{bad, good}, time.Minute)

	var calls int
	pool.OnFailover = func(oldIndex, newIndex int) {
		calls++
		assert.Equal(t, 0, oldIndex)
		assert.Equal(t, 1, newIndex)
	}

	_, _ = pool.Call(context.Background(), "x", nil) // bad is current, fails
	pool.Failover()
	assert.Equal(t, 1, calls)

	// A second failover with no eligible change must not re-fire the hook.
	pool.Failover()
	assert.Equal(t, 1, calls)
}

func TestPool_NoEndpoints(t *testing.T) {
	pool := upstream.NewPool(nil, time.Minute)
	_, err := pool.Call(context.Background(), "x", nil)
	assert.ErrorIs(t, err, upstream.ErrNoEndpoints)
}

func TestCaller_RetriesAndSucceeds(t *testing.T) {
	fc := &fakeClient{err: errors.New("transient")}
	ep := upstream.NewEndpoint("a", fc)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)
	caller := upstream.NewCaller(pool, 3, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(2 * time.Millisecond)
		fc.err = nil
		fc.result = json.RawMessage(`"recovered"`)
	}()

	result, err := caller.Call(context.Background(), "get_head", nil)
	<-done
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"recovered"`), result)
}

func TestCaller_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	fc := &fakeClient{err: errors.New("always fails")}
	ep := upstream.NewEndpoint("a", fc)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)
	caller := upstream.NewCaller(pool, 2, time.Millisecond)

	_, err := caller.Call(context.Background(), "get_head", nil)
	require.Error(t, err)
	assert.Equal(t, int64(2), fc.calls.Load())
}

func TestCaller_ContextCancellation(t *testing.T) {
	fc := &fakeClient{err: errors.New("fails")}
	ep := upstream.NewEndpoint("a", fc)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)
	caller := upstream.NewCaller(pool, 5, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := caller.Call(ctx, "get_head", nil)
	require.Error(t, err)
}

func TestIsNetworkOrTimeout(t *testing.T) {
	assert.True(t, upstream.IsNetworkOrTimeout(context.DeadlineExceeded))
	assert.True(t, upstream.IsNetworkOrTimeout(&net.DNSError{IsTimeout: true}))
	assert.False(t, upstream.IsNetworkOrTimeout(nil))
	assert.False(t, upstream.IsNetworkOrTimeout(errors.New("generic")))
}
