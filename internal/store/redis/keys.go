package redis

import "strings"

// Key layout:
//
//	signal:latest:{symbol}   STRING  latest LatestSignal JSON (TTL)
//	signal:history:{symbol}  STREAM  every published LatestSignal
//	signal:{symbol}          PUBSUB  live notifications
const (
	latestPrefix  = "signal:latest:"
	historyPrefix = "signal:history:"
	channelPrefix = "signal:"

	// ChannelPattern matches every per-symbol signal channel.
	ChannelPattern = channelPrefix + "*"
)

// LatestKey returns the key holding the newest signal of symbol.
func LatestKey(symbol string) string { return latestPrefix + symbol }

// HistoryStream returns the stream key recording published signals.
func HistoryStream(symbol string) string { return historyPrefix + symbol }

// Channel returns the pub/sub channel of symbol.
func Channel(symbol string) string { return channelPrefix + symbol }

// SymbolFromChannel extracts the symbol from a signal channel name.
func SymbolFromChannel(ch string) (string, bool) {
	if !strings.HasPrefix(ch, channelPrefix) {
		return "", false
	}
	sym := ch[len(channelPrefix):]
	if sym == "" || strings.HasPrefix(ch, latestPrefix) || strings.HasPrefix(ch, historyPrefix) {
		return "", false
	}
	return sym, true
}
