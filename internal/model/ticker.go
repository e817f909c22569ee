package model

import (
	"fmt"
	"strconv"
	"time"
)

// Ticker is the rolling 24h price summary shown next to the indicators.
type Ticker struct {
	Symbol             string    `json:"symbol"`
	LastPrice          float64   `json:"last_price"`
	OpenPrice          float64   `json:"open_price"`
	HighPrice          float64   `json:"high_price"`
	LowPrice           float64   `json:"low_price"`
	PriceChange        float64   `json:"price_change"`
	PriceChangePercent float64   `json:"price_change_percent"`
	Volume             float64   `json:"volume"`
	QuoteVolume        float64   `json:"quote_volume"`
	CloseTime          time.Time `json:"close_time"`
}

// tickerFields maps the exchange's field names onto t.
func (t *Ticker) tickerFields() []struct {
	name string
	dst  *float64
} {
	return []struct {
		name string
		dst  *float64
	}{
		{"lastPrice", &t.LastPrice},
		{"openPrice", &t.OpenPrice},
		{"highPrice", &t.HighPrice},
		{"lowPrice", &t.LowPrice},
		{"priceChange", &t.PriceChange},
		{"priceChangePercent", &t.PriceChangePercent},
		{"volume", &t.Volume},
		{"quoteVolume", &t.QuoteVolume},
	}
}

// TickerFromMap decodes a /api/v3/ticker/24hr object. Prices may be strings
// or numbers; a missing or non-numeric price fails the whole ticker.
func TickerFromMap(m map[string]any) (Ticker, error) {
	raw, _ := m["symbol"].(string)
	sym, err := ParseSymbol(raw)
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: ticker symbol: %v", ErrMalformedTick, err)
	}
	t := Ticker{Symbol: sym}
	for _, f := range t.tickerFields() {
		v, err := toFloat(m[f.name])
		if err != nil {
			return Ticker{}, fmt.Errorf("%w: ticker %s: %v", ErrMalformedTick, f.name, err)
		}
		*f.dst = v
	}
	ms, err := toInt64(m["closeTime"])
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: ticker closeTime: %v", ErrMalformedTick, err)
	}
	t.CloseTime = time.UnixMilli(ms).UTC()
	return t, nil
}

// Map renders t in the exchange layout accepted by TickerFromMap.
func (t Ticker) Map() map[string]any {
	m := map[string]any{
		"symbol":    t.Symbol,
		"closeTime": t.CloseTime.UnixMilli(),
	}
	for _, f := range t.tickerFields() {
		m[f.name] = strconv.FormatFloat(*f.dst, 'f', -1, 64)
	}
	return m
}

// TickerFromCandles summarises candles, oldest first, the way the exchange
// builds its 24h ticker. It returns false for an empty slice.
func TickerFromCandles(symbol string, candles []Candle, closeTime time.Time) (Ticker, bool) {
	if len(candles) == 0 {
		return Ticker{}, false
	}
	first, lastC := candles[0], candles[len(candles)-1]
	t := Ticker{
		Symbol:      symbol,
		OpenPrice:   first.Open,
		LastPrice:   lastC.Close,
		HighPrice:   first.High,
		LowPrice:    first.Low,
		PriceChange: lastC.Close - first.Open,
		CloseTime:   closeTime.UTC().Truncate(time.Millisecond),
	}
	for _, c := range candles {
		if c.High > t.HighPrice {
			t.HighPrice = c.High
		}
		if c.Low < t.LowPrice {
			t.LowPrice = c.Low
		}
		t.Volume += c.Volume
		t.QuoteVolume += c.Close * c.Volume
	}
	if first.Open != 0 {
		t.PriceChangePercent = t.PriceChange / first.Open * 100
	}
	return t, true
}
