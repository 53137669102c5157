package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "signal:latest:AAPL", LatestKey("AAPL"))
	assert.Equal(t, "signal:history:AAPL", HistoryStream("AAPL"))
	assert.Equal(t, "signal:AAPL", Channel("AAPL"))

	sym, ok := SymbolFromChannel("signal:2330.TW")
	assert.True(t, ok)
	assert.Equal(t, "2330.TW", sym)

	for _, ch := range []string{"signal:", "candle:AAPL", "signal:latest:AAPL"} {
		_, ok := SymbolFromChannel(ch)
		assert.False(t, ok, ch)
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []model.LatestSignal
}

func (f *fakePublisher) PublishSignal(_ context.Context, sig model.LatestSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sig)
	return nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestBufferedPublisher(t *testing.T) {
	pub := &fakePublisher{}
	cb := breaker.New("redis", 1, time.Hour)
	bp := NewBufferedPublisher(pub, cb)

	var buffered int
	bp.OnBuffer = func() { buffered++ }

	ctx := context.Background()
	require.NoError(t, bp.PublishSignal(ctx, model.LatestSignal{Symbol: "A"}))

	down := errors.New("connection refused")
	pub.setErr(down)
	assert.ErrorIs(t, bp.PublishSignal(ctx, model.LatestSignal{Symbol: "B"}), down)
	require.Equal(t, breaker.StateOpen, cb.State())

	// open breaker: held, latest per symbol wins
	require.NoError(t, bp.PublishSignal(ctx, model.LatestSignal{Symbol: "C", Price: 1}))
	require.NoError(t, bp.PublishSignal(ctx, model.LatestSignal{Symbol: "D"}))
	require.NoError(t, bp.PublishSignal(ctx, model.LatestSignal{Symbol: "C", Price: 2}))
	assert.Equal(t, 2, bp.PendingCount())
	assert.Equal(t, 3, buffered)

	// replay failure keeps the signals
	assert.Equal(t, 0, bp.Flush(ctx))
	assert.Equal(t, 2, bp.PendingCount())

	pub.setErr(nil)
	assert.Equal(t, 2, bp.Flush(ctx))
	assert.Equal(t, 0, bp.PendingCount())

	require.Len(t, pub.sent, 3)
	assert.Equal(t, "A", pub.sent[0].Symbol)
	assert.Equal(t, "C", pub.sent[1].Symbol)
	assert.Equal(t, 2.0, pub.sent[1].Price)
	assert.Equal(t, "D", pub.sent[2].Symbol)
}

// Requires a live server: REDIS_ADDR=localhost:6379 go test ./internal/store/redis
func TestWriterReader_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := New(WriterConfig{Addr: addr})
	require.NoError(t, err)
	defer w.Close()
	r, err := NewReader(ReaderConfig{Addr: addr})
	require.NoError(t, err)
	defer r.Close()

	sub := r.Subscribe(ctx)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	symbol := "TEST" + time.Now().Format("150405.000")
	sig := model.LatestSignal{
		Symbol: symbol, Strategy: "turtle", HasSignal: true,
		Kind: model.SignalEnterLong, Price: 101.5, AsOf: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, w.PublishSignal(ctx, sig))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, Channel(symbol), msg.Channel)

	got, ok, err := r.Latest(ctx, symbol)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sig.Price, got.Price)
	assert.Equal(t, sig.Kind, got.Kind)

	all, err := r.LatestAll(ctx, []string{symbol, symbol + "-missing"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	hist, err := r.History(ctx, symbol, 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	_, ok, err = r.Latest(ctx, symbol+"-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
