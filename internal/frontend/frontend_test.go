// Package frontend_test provides behavior tests for the frontend package.
package frontend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/frontend"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses map[string]json.RawMessage
}

func (f *fakeClient) Call(ctx context.Context, method string, args []any) (json.RawMessage, error) {
	return f.responses[method], nil
}

func newTestServer(t *testing.T, maxConns int) (*frontend.Server, *httptest.Server) {
	t.Helper()
	client := &fakeClient{responses: map[string]json.RawMessage{
		dispatch.HeadStateMethod: json.RawMessage(`{"head_block_number":1}`),
	}}
	ep := upstream.NewEndpoint("primary", client)
	pool := upstream.NewPool([]*upstream.Endpoint{ep}, time.Minute)
	caller := upstream.NewCaller(pool, 1, time.Millisecond)
	bundle := cache.NewBundle(10, 10, 10)
	registry := subscribe.NewRegistry()
	d := dispatch.New(bundle, caller, pool, registry, nil)

	srv := frontend.NewServer(d, registry, nil)
	srv.MaxConnections = maxConns
	srv.WorkerCount = 2

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.RunWorkers(ctx)

	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_SendsHelloOnConnect(t *testing.T) {
	_, ts := newTestServer(t, 10)
	conn := dial(t, ts)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var hello map[string]any
	require.NoError(t, json.Unmarshal(raw, &hello))
	assert.Equal(t, "connection", hello["type"])
	assert.Equal(t, "connected", hello["status"])
	assert.NotEmpty(t, hello["availableApis"])
}

func TestServer_DispatchesRequestThroughWorkerPool(t *testing.T) {
	_, ts := newTestServer(t, 10)
	conn := dial(t, ts)
	_, _, _ = conn.ReadMessage() // discard hello

	req := `{"id":1,"method":"get_dynamic_global_properties","params":[]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, "response", reply["type"])
}

func TestServer_RejectsOverCapacityWithTryAgainLater(t *testing.T) {
	srv, ts := newTestServer(t, 1)
	_ = dial(t, ts) // occupies the single slot

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)

	assert.Equal(t, 1, srv.ConnectionCount())
}

func TestServer_SessionRemovedFromRegistryOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t, 10)
	conn := dial(t, ts)
	_, _, _ = conn.ReadMessage() // discard hello

	warm := `{"id":0,"method":"get_dynamic_global_properties","params":[]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(warm)))
	_, _, _ = conn.ReadMessage() // head-state response; the head slot is now warm

	sub := `{"id":1,"method":"subscribe","params":["head-state"]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(sub)))
	_, _, _ = conn.ReadMessage() // subscribe response
	_, _, _ = conn.ReadMessage() // immediate subscription_update (slot warm)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return srv.ConnectionCount() == 0
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return srv.Registry.MemberCount(session.FeedHeadState) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestServer_RateLimitedFrameGetsResetInstant(t *testing.T) {
	srv, ts := newTestServer(t, 10)
	srv.RateLimitCap = 1
	srv.RateLimitWin = time.Minute
	conn := dial(t, ts)
	_, _, _ = conn.ReadMessage() // discard hello

	req := `{"id":1,"method":"get_dynamic_global_properties","params":[]}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	_, _, _ = conn.ReadMessage() // first reply, consumes the single allowed slot

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, "error", reply["type"])
	assert.NotEmpty(t, reply["rateLimitReset"])
}

func TestRateLimiter_CapsWithinWindow(t *testing.T) {
	rl := frontend.NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl := frontend.NewRateLimiter(1, 5*time.Millisecond)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
	time.Sleep(10 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimiter_NilIsAlwaysAllowed(t *testing.T) {
	var rl *frontend.RateLimiter
	assert.True(t, rl.Allow())
}

func TestWorkQueue_RejectsWhenFull(t *testing.T) {
	q := frontend.NewWorkQueue(1)
	sess := session.New("s1", nil)
	assert.True(t, q.TryEnqueue(sess, dispatch.RawFrame(`{}`)))
	assert.False(t, q.TryEnqueue(sess, dispatch.RawFrame(`{}`)))
}
