package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"trading-backtestv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads stored signals and subscribes to live ones.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client, err := dial(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// Latest returns the stored latest signal of symbol. ok is false when none
// is stored or it has expired.
func (r *Reader) Latest(ctx context.Context, symbol string) (sig model.LatestSignal, ok bool, err error) {
	data, err := r.client.Get(ctx, LatestKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return sig, false, nil
	}
	if err != nil {
		return sig, false, fmt.Errorf("redis get %s: %w", LatestKey(symbol), err)
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return sig, false, fmt.Errorf("unmarshal signal: %w", err)
	}
	return sig, true, nil
}

// LatestAll returns the stored signals for symbols, skipping missing ones.
func (r *Reader) LatestAll(ctx context.Context, symbols []string) ([]model.LatestSignal, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = LatestKey(s)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]model.LatestSignal, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var sig model.LatestSignal
		if err := json.Unmarshal([]byte(s), &sig); err != nil {
			log.Printf("[redis-reader] skipping bad payload for %s: %v", symbols[i], err)
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// History returns up to n published signals of symbol, newest first.
func (r *Reader) History(ctx context.Context, symbol string, n int64) ([]model.LatestSignal, error) {
	msgs, err := r.client.XRevRangeN(ctx, HistoryStream(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", HistoryStream(symbol), err)
	}
	out := make([]model.LatestSignal, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var sig model.LatestSignal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// Subscribe pattern-subscribes to every signal channel. The caller must
// close the returned PubSub.
func (r *Reader) Subscribe(ctx context.Context) *goredis.PubSub {
	return r.client.PSubscribe(ctx, ChannelPattern)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}
