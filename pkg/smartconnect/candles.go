package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SmartAPI expects exchange-local timestamps in this layout.
const candleTimeLayout = "2006-01-02 15:04"

// IST is the exchange timezone of NSE/BSE.
var IST = time.FixedZone("IST", 5*3600+1800)

// CandleRequest selects one getCandleData page.
type CandleRequest struct {
	Exchange    string // NSE, BSE, NFO, MCX
	SymbolToken string
	Interval    string // OneDay etc.
	From        time.Time
	To          time.Time
}

// Candle is one OHLCV row from the history API.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MaxDays is the largest range getCandleData serves per request, by interval.
var MaxDays = map[string]int{
	OneMinute:     30,
	FiveMinute:    100,
	FifteenMinute: 200,
	OneHour:       400,
	OneDay:        2000,
}

// GetCandleData fetches one page of candles. Callers split long ranges
// using MaxDays.
func (c *Client) GetCandleData(ctx context.Context, req CandleRequest) ([]Candle, error) {
	var rows [][]json.RawMessage
	err := c.call(ctx, routeCandles, map[string]any{
		"exchange":    req.Exchange,
		"symboltoken": req.SymbolToken,
		"interval":    req.Interval,
		"fromdate":    req.From.In(IST).Format(candleTimeLayout),
		"todate":      req.To.In(IST).Format(candleTimeLayout),
	}, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]Candle, 0, len(rows))
	for i, row := range rows {
		cd, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("smartconnect: candle %d: %w", i, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

// parseCandle decodes ["2024-01-02T00:00:00+05:30", o, h, l, c, v].
func parseCandle(row []json.RawMessage) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("want 6 fields, got %d", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Candle{}, err
	}
	vals := make([]float64, 5)
	for i := range vals {
		if vals[i], err = strconv.ParseFloat(string(row[i+1]), 64); err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return Candle{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}
