package gateway

import (
	"log"
	"strconv"
	"time"
)

// Broadcast records payload as the newest signal of symbol and queues an
// envelope to every client subscribed to it. Clients with a full queue
// miss the message and are counted as drops.
func (h *Hub) Broadcast(symbol string, payload []byte) {
	now := h.now().UTC()
	data := make([]byte, len(payload))
	copy(data, payload)

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.symbolSeqs[symbol]++
	symSeq := h.symbolSeqs[symbol]
	h.latest[symbol] = latestEntry{Data: data, TS: now, SymbolSeq: symSeq}
	rb, ok := h.replay[symbol]
	if !ok {
		rb = NewReplayBuffer(h.opts.ReplaySize)
		h.replay[symbol] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(symbol, data, now, seq, symSeq, false)
	rb.Push(symSeq, env)

	if h.Metrics != nil {
		h.Metrics.GatewayMessages.Inc()
	}
	if h.Health != nil {
		h.Health.SetLastSignal(now)
	}

	drops := 0
	h.mu.RLock()
	for c := range h.clients {
		if !c.Subscribed(symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
			drops++
		}
	}
	h.mu.RUnlock()

	if drops > 0 {
		if h.Metrics != nil {
			h.Metrics.GatewayDrops.Add(float64(drops))
		}
		log.Printf("[signalgw] %s: dropped for %d slow client(s)", symbol, drops)
	}
}

// buildEnvelope writes
//
//	{"type":"signal","symbol":S,"data":D,"ts":T,"seq":N,"symbol_seq":M}
//
// by hand; data is already JSON.
func buildEnvelope(symbol string, data []byte, ts time.Time, seq, symSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(symbol)+len(data)+128)
	buf = append(buf, `{"type":"signal","symbol":`...)
	buf = strconv.AppendQuote(buf, symbol)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"symbol_seq":`...)
	buf = strconv.AppendInt(buf, symSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
