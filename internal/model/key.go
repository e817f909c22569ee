package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey is returned when a symbol or interval cannot be used.
var ErrInvalidKey = errors.New("invalid symbol/interval")

// intervals lists the kline intervals accepted by the exchange.
// Month is approximated as 30 days; it is only used for close-time checks.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// Key identifies one candle series: a trading symbol at a kline interval.
type Key struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// ParseSymbol normalises a trading pair to upper case and checks that it
// is alphanumeric.
func ParseSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidKey)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: symbol %q", ErrInvalidKey, symbol)
		}
	}
	return symbol, nil
}

// ParseKey normalises the symbol to upper case and validates both parts.
func ParseKey(symbol, interval string) (Key, error) {
	symbol, err := ParseSymbol(symbol)
	if err != nil {
		return Key{}, err
	}
	interval = strings.TrimSpace(interval)
	if _, ok := intervals[interval]; !ok {
		return Key{}, fmt.Errorf("%w: interval %q", ErrInvalidKey, interval)
	}
	return Key{Symbol: symbol, Interval: interval}, nil
}

// String returns "SYMBOL:interval".
func (k Key) String() string {
	return k.Symbol + ":" + k.Interval
}

// StreamName returns the exchange stream name, e.g. "btcusdt@kline_1m".
func (k Key) StreamName() string {
	return strings.ToLower(k.Symbol) + "@kline_" + k.Interval
}

// Duration returns the interval length, or 0 for an unknown interval.
func (k Key) Duration() time.Duration {
	return intervals[k.Interval]
}

// ParseStreamName is the inverse of StreamName.
func ParseStreamName(name string) (Key, error) {
	sym, interval, ok := strings.Cut(name, "@kline_")
	if !ok {
		return Key{}, fmt.Errorf("%w: stream %q", ErrInvalidKey, name)
	}
	return ParseKey(sym, interval)
}

// Row returns the candle in the exchange history row layout accepted by
// CandleFromRow.
func (k Key) Row(c Candle) []any {
	open := c.Time.UnixMilli()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []any{open, f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume), open + k.Duration().Milliseconds() - 1}
}
