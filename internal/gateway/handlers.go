package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-backtestv1/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HistoryReader returns stored signals of a symbol, newest first.
type HistoryReader interface {
	History(ctx context.Context, symbol string, n int64) ([]model.LatestSignal, error)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes mounts the gateway endpoints on mux:
//
//	/ws                      WebSocket; ?symbols=A,B&last_ts=RFC3339
//	/api/signals/latest      newest signal per symbol
//	/api/signals/missed      ?symbol=A&after=N replay by symbol_seq
//	/api/signals/history     ?symbol=A&n=50 from the signal store
//
// history is optional; without it the history route is not mounted.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, history HistoryReader) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[signalgw] ws upgrade error: %v", err)
			return
		}
		var since time.Time
		if s := r.URL.Query().Get("last_ts"); s != "" {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				since = t
			}
		}
		hub.ServeClient(conn, splitSymbols(r.URL.Query().Get("symbols")), since)
	})

	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Snapshot())
	})

	mux.HandleFunc("/api/signals/missed", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
			return
		}
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		raw := hub.Missed(symbol, after)
		out := make([]json.RawMessage, len(raw))
		for i, b := range raw {
			out[i] = b
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"symbol":     symbol,
			"symbol_seq": hub.SymbolSeq(symbol),
			"messages":   out,
		})
	})

	if history == nil {
		return
	}
	mux.HandleFunc("/api/signals/history", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
			return
		}
		n := int64(50)
		if v, err := strconv.ParseInt(r.URL.Query().Get("n"), 10, 64); err == nil && v > 0 && v <= 500 {
			n = v
		}
		sigs, err := history.History(r.Context(), symbol, n)
		if err != nil {
			log.Printf("[signalgw] history %s: %v", symbol, err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "history unavailable"})
			return
		}
		if sigs == nil {
			sigs = []model.LatestSignal{}
		}
		writeJSON(w, http.StatusOK, sigs)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
