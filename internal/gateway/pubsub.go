package gateway

import (
	"context"
	"encoding/json"
	"log"

	sigstore "trading-backtestv1/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
)

// Subscriber opens a pattern subscription to the signal channels.
type Subscriber interface {
	Subscribe(ctx context.Context) *goredis.PubSub
}

// Run subscribes through sub and broadcasts every signal until ctx is
// cancelled or the subscription closes.
func (h *Hub) Run(ctx context.Context, sub Subscriber) error {
	ps := sub.Subscribe(ctx)
	defer ps.Close()

	// Receive once so a dead server fails fast instead of silently idling.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	log.Printf("[signalgw] subscribed to %s", sigstore.ChannelPattern)

	h.Consume(ctx, ps.Channel())
	return ctx.Err()
}

// Consume routes messages from ch to Broadcast. Messages on channels that
// are not signal channels, or whose payload is not JSON, are skipped.
func (h *Hub) Consume(ctx context.Context, ch <-chan *goredis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sym, ok := sigstore.SymbolFromChannel(msg.Channel)
			if !ok {
				continue
			}
			if !json.Valid([]byte(msg.Payload)) {
				log.Printf("[signalgw] %s: skipping non-JSON payload", msg.Channel)
				continue
			}
			h.Broadcast(sym, []byte(msg.Payload))
		}
	}
}
