package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerFromMap(t *testing.T) {
	m := map[string]any{
		"symbol": "ethusdt", "lastPrice": "2010.5", "openPrice": "2000",
		"highPrice": "2050", "lowPrice": "1990.25", "priceChange": "10.5",
		"priceChangePercent": "0.525", "volume": "321.5", "quoteVolume": "646000",
		"closeTime": int64(1700000000123),
	}
	tk, err := TickerFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tk.Symbol)
	assert.Equal(t, 2010.5, tk.LastPrice)
	assert.Equal(t, 1990.25, tk.LowPrice)
	assert.Equal(t, 0.525, tk.PriceChangePercent)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), tk.CloseTime)

	again, err := TickerFromMap(tk.Map())
	require.NoError(t, err)
	assert.Equal(t, tk, again)

	for name, mut := range map[string]func(m map[string]any){
		"bad symbol":    func(m map[string]any) { m["symbol"] = "ETH/USDT" },
		"missing price": func(m map[string]any) { delete(m, "lastPrice") },
		"non numeric":   func(m map[string]any) { m["volume"] = "lots" },
		"bad time":      func(m map[string]any) { m["closeTime"] = 1.5 },
	} {
		bad := tk.Map()
		mut(bad)
		_, err := TickerFromMap(bad)
		assert.True(t, errors.Is(err, ErrMalformedTick), name)
	}
}

func TestTickerFromCandles(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{Time: at, Open: 100, High: 104, Low: 98, Close: 103, Volume: 2, Final: true},
		{Time: at.Add(time.Hour), Open: 103, High: 110, Low: 101, Close: 108, Volume: 3, Final: true},
		{Time: at.Add(2 * time.Hour), Open: 108, High: 109, Low: 95, Close: 105, Volume: 1},
	}
	tk, ok := TickerFromCandles("BTCUSDT", candles, at.Add(150*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 100.0, tk.OpenPrice)
	assert.Equal(t, 105.0, tk.LastPrice)
	assert.Equal(t, 110.0, tk.HighPrice)
	assert.Equal(t, 95.0, tk.LowPrice)
	assert.Equal(t, 5.0, tk.PriceChange)
	assert.InDelta(t, 5.0, tk.PriceChangePercent, 1e-12)
	assert.Equal(t, 6.0, tk.Volume)
	assert.Equal(t, 103*2+108*3+105*1.0, tk.QuoteVolume)
	assert.Equal(t, at.Add(150*time.Minute), tk.CloseTime)

	_, ok = TickerFromCandles("BTCUSDT", nil, at)
	assert.False(t, ok)
}
