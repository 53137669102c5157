package gateway

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client is one WebSocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	symbols map[string]bool
}

// controlMsg is what clients send: SUBSCRIBE / UNSUBSCRIBE with a symbol
// list, or PING.
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		symbols: make(map[string]bool),
	}
	c.subscribe(symbols)
	return c
}

// Subscribed reports whether the client wants messages for symbol. A
// client with no subscriptions receives everything.
func (c *Client) Subscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// Symbols returns the client's subscriptions, sorted.
func (c *Client) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		if s != "" {
			c.symbols[s] = true
		}
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	c.mu.Unlock()
}

// sendSnapshot queues the newest envelope of every subscribed symbol
// updated after since.
func (c *Client) sendSnapshot(since time.Time) {
	h := c.hub
	h.mu.RLock()
	defer h.mu.RUnlock()

	syms := make([]string, 0, len(h.latest))
	for sym := range h.latest {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	for _, sym := range syms {
		e := h.latest[sym]
		if !since.IsZero() && !e.TS.After(since) {
			continue
		}
		if !c.Subscribed(sym) {
			continue
		}
		env := buildEnvelope(sym, e.Data, e.TS, h.seq, e.SymbolSeq, true)
		select {
		case c.send <- env:
		default:
		}
	}
}

// handle applies one control message.
func (c *Client) handle(raw []byte) {
	var msg controlMsg
	if json.Unmarshal(raw, &msg) != nil {
		return
	}
	switch msg.Type {
	case "SUBSCRIBE":
		c.subscribe(msg.Symbols)
		c.reply(map[string]any{"type": "subscribed", "symbols": c.Symbols()})
	case "UNSUBSCRIBE":
		c.unsubscribe(msg.Symbols)
		c.reply(map[string]any{"type": "subscribed", "symbols": c.Symbols()})
	case "PING":
		c.reply(map[string]any{
			"type":      "pong",
			"ping":      msg.Ping,
			"server_ts": c.hub.now().UnixMilli(),
		})
	}
}

func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(msg)
	}
}
