package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"trading-backtestv1/internal/metrics"

	"github.com/gorilla/websocket"
)

// Options configures a Hub.
type Options struct {
	// SendBuffer is the per-client outbound queue length. A client whose
	// queue is full misses the message.
	SendBuffer int
	// ReplaySize is the number of envelopes kept per symbol for backfill.
	ReplaySize int
}

// Hub fans signal messages out to WebSocket clients. It keeps the newest
// envelope of every symbol so new clients start with a snapshot, and a
// short per-symbol replay buffer for clients that detect a gap.
type Hub struct {
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	opts Options
	now  func() time.Time

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	latest     map[string]latestEntry
	seq        int64
	symbolSeqs map[string]int64
	replay     map[string]*ReplayBuffer
}

type latestEntry struct {
	Data      json.RawMessage
	TS        time.Time
	SymbolSeq int64
}

// NewHub creates a Hub. Zero option values fall back to 64 queued messages
// per client and 200 replay envelopes per symbol.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.ReplaySize <= 0 {
		opts.ReplaySize = 200
	}
	return &Hub{
		opts:       opts,
		now:        time.Now,
		clients:    make(map[*Client]struct{}),
		latest:     make(map[string]latestEntry),
		symbolSeqs: make(map[string]int64),
		replay:     make(map[string]*ReplayBuffer),
	}
}

// ServeClient registers conn, sends it the snapshot of symbols newer than
// since, and starts its pumps. An empty symbols list subscribes to all.
func (h *Hub) ServeClient(conn *websocket.Conn, symbols []string, since time.Time) *Client {
	c := newClient(h, conn, symbols)
	h.register(c)
	c.sendSnapshot(since)

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.recordClients(n)
	log.Printf("[signalgw] client connected (%d total)", n)
}

// Unregister removes c and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.recordClients(n)
	log.Printf("[signalgw] client disconnected (%d total)", n)
}

func (h *Hub) recordClients(n int) {
	if h.Metrics != nil {
		h.Metrics.GatewayClients.Set(float64(n))
	}
	if h.Health != nil {
		h.Health.SetClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Snapshot returns the newest signal payload of every symbol seen so far.
func (h *Hub) Snapshot() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for sym, e := range h.latest {
		out[sym] = e.Data
	}
	return out
}

// SymbolSeq returns the last per-symbol sequence number sent for symbol.
func (h *Hub) SymbolSeq(symbol string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.symbolSeqs[symbol]
}

// Missed returns the buffered envelopes of symbol with a per-symbol
// sequence greater than after, oldest first.
func (h *Hub) Missed(symbol string, after int64) [][]byte {
	h.mu.RLock()
	rb := h.replay[symbol]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	entries := rb.Since(after)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}
