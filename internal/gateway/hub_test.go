package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"trading-backtestv1/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Data      json.RawMessage `json:"data"`
	TS        string          `json:"ts"`
	Seq       int64           `json:"seq"`
	SymbolSeq int64           `json:"symbol_seq"`
	Initial   bool            `json:"initial"`
}

func decode(t *testing.T, b []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(b, &env), "raw: %s", b)
	return env
}

func testHub(opts Options) (*Hub, *metrics.Metrics) {
	h := NewHub(opts)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h.Metrics = m
	h.Health = metrics.NewHealthStatus(false)
	h.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	return h, m
}

func attach(h *Hub, symbols ...string) *Client {
	c := newClient(h, nil, symbols)
	h.register(c)
	return c
}

func TestBuildEnvelope(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	b := buildEnvelope("NSE:TCS", []byte(`{"kind":"ENTER_LONG"}`), ts, 7, 3, true)

	env := decode(t, b)
	assert.Equal(t, "signal", env.Type)
	assert.Equal(t, "NSE:TCS", env.Symbol)
	assert.JSONEq(t, `{"kind":"ENTER_LONG"}`, string(env.Data))
	assert.Equal(t, "2024-03-01T09:30:00Z", env.TS)
	assert.Equal(t, int64(7), env.Seq)
	assert.Equal(t, int64(3), env.SymbolSeq)
	assert.True(t, env.Initial)
}

func TestBroadcast_FiltersBySubscription(t *testing.T) {
	h, m := testHub(Options{SendBuffer: 4})
	all := attach(h)
	infy := attach(h, "INFY")

	h.Broadcast("TCS", []byte(`{"symbol":"TCS"}`))
	h.Broadcast("INFY", []byte(`{"symbol":"INFY"}`))

	require.Len(t, all.send, 2)
	require.Len(t, infy.send, 1)

	first := decode(t, <-all.send)
	assert.Equal(t, "TCS", first.Symbol)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(1), first.SymbolSeq)

	got := decode(t, <-infy.send)
	assert.Equal(t, "INFY", got.Symbol)
	assert.Equal(t, int64(2), got.Seq)
	assert.Equal(t, int64(1), got.SymbolSeq)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GatewayMessages))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GatewayClients))
}

func TestBroadcast_DropsForSlowClient(t *testing.T) {
	h, m := testHub(Options{SendBuffer: 1})
	slow := attach(h)

	h.Broadcast("TCS", []byte(`{}`))
	h.Broadcast("TCS", []byte(`{}`))

	assert.Len(t, slow.send, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayDrops))
	// The dropped message is still recoverable from the replay buffer.
	assert.Len(t, h.Missed("TCS", 1), 1)
}

func TestSnapshotAndMissed(t *testing.T) {
	h, _ := testHub(Options{ReplaySize: 2})
	h.Broadcast("TCS", []byte(`{"n":1}`))
	h.Broadcast("TCS", []byte(`{"n":2}`))
	h.Broadcast("TCS", []byte(`{"n":3}`))
	h.Broadcast("INFY", []byte(`{"n":9}`))

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.JSONEq(t, `{"n":3}`, string(snap["TCS"]))
	assert.Equal(t, int64(3), h.SymbolSeq("TCS"))

	missed := h.Missed("TCS", 0)
	require.Len(t, missed, 2, "only the last ReplaySize envelopes are kept")
	assert.Equal(t, int64(2), decode(t, missed[0]).SymbolSeq)
	assert.Equal(t, int64(3), decode(t, missed[1]).SymbolSeq)

	assert.Empty(t, h.Missed("TCS", 3))
	assert.Nil(t, h.Missed("WIPRO", 0))
}

func TestSendSnapshot(t *testing.T) {
	h, _ := testHub(Options{})
	h.Broadcast("TCS", []byte(`{"n":1}`))
	h.Broadcast("INFY", []byte(`{"n":2}`))

	c := attach(h, "INFY")
	c.sendSnapshot(time.Time{})
	require.Len(t, c.send, 1)
	env := decode(t, <-c.send)
	assert.Equal(t, "INFY", env.Symbol)
	assert.True(t, env.Initial)

	late := attach(h)
	late.sendSnapshot(h.now())
	assert.Empty(t, late.send, "nothing is newer than the cutoff")
}

func TestUnregister_Twice(t *testing.T) {
	h, m := testHub(Options{})
	c := attach(h)
	require.Equal(t, 1, h.ClientCount())

	h.Unregister(c)
	h.Unregister(c)

	assert.Equal(t, 0, h.ClientCount())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GatewayClients))
	_, open := <-c.send
	assert.False(t, open)

	// Broadcasting after removal must not touch the closed queue.
	h.Broadcast("TCS", []byte(`{}`))
}

func TestClient_Handle(t *testing.T) {
	h, _ := testHub(Options{})
	c := attach(h, "TCS")

	c.handle([]byte(`{"type":"SUBSCRIBE","symbols":["INFY","WIPRO"]}`))
	assert.Equal(t, []string{"INFY", "TCS", "WIPRO"}, c.Symbols())
	<-c.send

	c.handle([]byte(`{"type":"UNSUBSCRIBE","symbols":["TCS"]}`))
	assert.Equal(t, []string{"INFY", "WIPRO"}, c.Symbols())
	assert.False(t, c.Subscribed("TCS"))
	<-c.send

	c.handle([]byte(`{"type":"PING","ping":42}`))
	var pong map[string]any
	require.NoError(t, json.Unmarshal(<-c.send, &pong))
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, 42.0, pong["ping"])

	c.handle([]byte(`not json`))
	assert.Empty(t, c.send)
}

func TestConsume(t *testing.T) {
	h, _ := testHub(Options{})
	c := attach(h)

	ch := make(chan *goredis.Message, 4)
	ch <- &goredis.Message{Channel: "signal:TCS", Payload: `{"kind":"ENTER_LONG"}`}
	ch <- &goredis.Message{Channel: "other:TCS", Payload: `{}`}
	ch <- &goredis.Message{Channel: "signal:INFY", Payload: `not json`}
	close(ch)

	h.Consume(context.Background(), ch)

	require.Len(t, c.send, 1)
	env := decode(t, <-c.send)
	assert.Equal(t, "TCS", env.Symbol)
	assert.JSONEq(t, `{"kind":"ENTER_LONG"}`, string(env.Data))
}

func TestConsume_StopsOnCancel(t *testing.T) {
	h, _ := testHub(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Consume(ctx, make(chan *goredis.Message))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}
