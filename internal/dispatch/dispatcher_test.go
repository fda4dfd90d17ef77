// Package dispatch_test provides behavior tests for the dispatch package.
package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/chain"
	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	responses map[string]json.RawMessage
	err       error
	calls     []string
}

func (s *scriptedClient) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	s.calls = append(s.calls, method)
	if s.err != nil {
		return nil, s.err
	}
	return s.responses[method], nil
}

func newDispatcher(t *testing.T, client upstream.RPCClient) (*dispatch.Dispatcher, *subscribe.Registry) {
	t.Helper()
	ep := upstream.NewEndpoint("primary", client)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)
	caller := upstream.NewCaller(pool, 1, time.Millisecond)
	bundle := cache.NewBundle(10, 10, 10)
	registry := subscribe.NewRegistry()
	return dispatch.New(bundle, caller, pool, registry, nil), registry
}

func frame(method string, params any) dispatch.RawFrame {
	p, _ := json.Marshal(params)
	req := map[string]json.RawMessage{
		"id":     json.RawMessage(`1`),
		"method": json.RawMessage(`"` + method + `"`),
		"params": p,
	}
	b, _ := json.Marshal(req)
	return dispatch.RawFrame(b)
}

func TestDispatcher_InvalidFrame(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	f, _ := d.Handle(context.Background(), session.New("s1", nil), dispatch.RawFrame(`not json`))
	assert.Equal(t, "error", f.Type)
}

func TestDispatcher_MissingMethod(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	raw := dispatch.RawFrame(`{"id":1,"method":"","params":[]}`)
	f, _ := d.Handle(context.Background(), session.New("s1", nil), raw)
	assert.Equal(t, "error", f.Type)
}

func TestDispatcher_UnsupportedMethod(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("not_a_real_method", []any{}))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "Unsupported method: not_a_real_method", f.Error)
}

func TestDispatcher_HeadStateNamespacedMethodsAreEquivalent(t *testing.T) {
	client := &scriptedClient{responses: map[string]json.RawMessage{
		"get_dynamic_global_properties": json.RawMessage(`{"head_block_number":10}`),
	}}
	d, _ := newDispatcher(t, client)

	f1, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_dynamic_global_properties", []any{}))
	f2, _ := d.Handle(context.Background(), session.New("s2", nil), frame("condenser_api.get_dynamic_global_properties", []any{}))

	require.Equal(t, "response", f1.Type)
	require.Equal(t, "response", f2.Type)
	assert.JSONEq(t, string(f1.Result), string(f2.Result))
	assert.Equal(t, 1, len(client.calls), "second call should be served from cache")
}

func TestDispatcher_BlockHeaderRequiresHeight(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_block_header", []any{}))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "Block number is required", f.Error)
}

func TestDispatcher_BlockHeaderCaches(t *testing.T) {
	client := &scriptedClient{responses: map[string]json.RawMessage{
		"get_block_header": json.RawMessage(`{"height":5}`),
	}}
	d, _ := newDispatcher(t, client)

	f1, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_block_header", []any{5}))
	f2, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_block_header", []any{5}))

	require.Equal(t, "response", f1.Type)
	require.Equal(t, "response", f2.Type)
	assert.Equal(t, 1, len(client.calls))
}

func TestDispatcher_OperationsInBlockDefaultsOnlyVirtualFalse(t *testing.T) {
	client := &scriptedClient{responses: map[string]json.RawMessage{
		"get_ops_in_block": json.RawMessage(`[]`),
	}}
	d, _ := newDispatcher(t, client)

	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_ops_in_block", []any{5}))
	require.Equal(t, "response", f.Type)

	_, cached := d.Bundle.Ops.Lookup(chain.OpsKey{Height: 5, OnlyVirtual: false}, time.Minute, nil)
	assert.True(t, cached, "result should be cached under onlyVirtual=false")
}

func TestDispatcher_TransactionIsUncachedPassThrough(t *testing.T) {
	client := &scriptedClient{responses: map[string]json.RawMessage{
		"get_transaction": json.RawMessage(`{"status":"ok"}`),
	}}
	d, _ := newDispatcher(t, client)

	d.Handle(context.Background(), session.New("s1", nil), frame("get_transaction", []any{"txid-1"}))
	d.Handle(context.Background(), session.New("s1", nil), frame("get_transaction", []any{"txid-1"}))
	assert.Equal(t, 2, len(client.calls), "transaction lookups must always go to upstream")
}

func TestDispatcher_TransactionMissingArgument(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_transaction", []any{}))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "Transaction id is required", f.Error)
}

func TestDispatcher_UpstreamFailureReturnsErrorFrame(t *testing.T) {
	client := &scriptedClient{err: errors.New("boom")}
	d, _ := newDispatcher(t, client)

	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("get_dynamic_global_properties", []any{}))
	assert.Equal(t, "error", f.Type)
}

func TestDispatcher_SubscribeAddsToRegistryAndEmitsImmediateUpdateWhenWarm(t *testing.T) {
	client := &scriptedClient{responses: map[string]json.RawMessage{
		"get_dynamic_global_properties": json.RawMessage(`{"head_block_number":99}`),
	}}
	d, registry := newDispatcher(t, client)
	sess := session.New("s1", nil)

	// Warm the slot first via a direct request.
	d.Handle(context.Background(), sess, frame("get_dynamic_global_properties", []any{}))

	f, after := d.Handle(context.Background(), sess, frame("subscribe", []any{"head-state"}))
	require.Equal(t, "response", f.Type)
	assert.Equal(t, 1, registry.MemberCount(session.FeedHeadState))
	assert.JSONEq(t, `{"subscribed":true,"type":"head-state"}`, string(f.Result))

	select {
	case <-sess.Outbound():
		t.Fatal("immediate snapshot must not be delivered before the caller sends the ack")
	default:
	}

	require.NotNil(t, after, "expected a follow-up action since the slot was already warm")
	after()

	select {
	case b := <-sess.Outbound():
		var out map[string]any
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, "subscription_update", out["type"])
	default:
		t.Fatal("expected an immediate subscription_update frame once the follow-up action runs")
	}
}

func TestDispatcher_SubscribeNoFollowUpWhenSlotCold(t *testing.T) {
	d, registry := newDispatcher(t, &scriptedClient{})
	sess := session.New("s1", nil)

	f, after := d.Handle(context.Background(), sess, frame("subscribe", []any{"head-state"}))
	require.Equal(t, "response", f.Type)
	assert.Equal(t, 1, registry.MemberCount(session.FeedHeadState))
	assert.Nil(t, after, "no immediate snapshot is owed when the slot was never populated")
}

func TestDispatcher_SubscribeUnknownFeed(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedClient{})
	f, _ := d.Handle(context.Background(), session.New("s1", nil), frame("subscribe", []any{"not-a-feed"}))
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "Unknown feed: not-a-feed", f.Error)
}

func TestRateLimitErrorFrame_NamesResetInstant(t *testing.T) {
	resetAt := time.Now().Add(45 * time.Second)
	f := dispatch.RateLimitErrorFrame(resetAt)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, resetAt.UnixMilli(), f.RateLimitReset)
}

func TestRateLimitErrorFrame_ZeroResetOmitsField(t *testing.T) {
	f := dispatch.RateLimitErrorFrame(time.Time{})
	assert.Equal(t, int64(0), f.RateLimitReset)
}

func TestDispatcher_UnsubscribeRemovesFromRegistry(t *testing.T) {
	d, registry := newDispatcher(t, &scriptedClient{})
	sess := session.New("s1", nil)
	registry.Add(session.FeedWitnesses, sess)

	f, _ := d.Handle(context.Background(), sess, frame("unsubscribe", []any{"witnesses"}))
	require.Equal(t, "response", f.Type)
	assert.Equal(t, 0, registry.MemberCount(session.FeedWitnesses))
	assert.JSONEq(t, `{"subscribed":false,"type":"witnesses"}`, string(f.Result))
}
