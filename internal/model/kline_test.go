package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlineEventDecode(t *testing.T) {
	raw := `{"e":"kline","E":1700000000123,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m","o":"100.5","h":"101","l":"99.25","c":"100.75","v":"12.5","x":false}}`

	var ev KlineEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	c, err := ev.Kline.Candle()
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), c.Time)
	assert.Equal(t, 100.5, c.Open)
	assert.Equal(t, 101.0, c.High)
	assert.Equal(t, 99.25, c.Low)
	assert.Equal(t, 100.75, c.Close)
	assert.Equal(t, 12.5, c.Volume)
	assert.False(t, c.Final)
}

func TestKlineTickRejectsMalformed(t *testing.T) {
	base := KlineTick{OpenTime: 1, Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "3"}

	cases := map[string]func(k *KlineTick){
		"missing close":   func(k *KlineTick) { k.Close = nil },
		"non numeric":     func(k *KlineTick) { k.High = "abc" },
		"nan":             func(k *KlineTick) { k.Low = "NaN" },
		"infinite":        func(k *KlineTick) { k.Open = "+Inf" },
		"negative volume": func(k *KlineTick) { k.Volume = "-1" },
		"zero open time":  func(k *KlineTick) { k.OpenTime = 0 },
		"wrong type":      func(k *KlineTick) { k.Open = []int{1} },
	}
	for name, mutate := range cases {
		k := base
		mutate(&k)
		_, err := k.Candle()
		if !errors.Is(err, ErrMalformedTick) {
			t.Errorf("%s: expected ErrMalformedTick, got %v", name, err)
		}
	}

	_, err := base.Candle()
	assert.NoError(t, err)
}

func TestCandleFromRow(t *testing.T) {
	now := time.UnixMilli(2_000_000)

	closed := []any{float64(1_000_000), "10", "12", "9", "11", "100", float64(1_059_999)}
	c, err := CandleFromRow(closed, now)
	require.NoError(t, err)
	assert.True(t, c.Final)
	assert.Equal(t, 11.0, c.Close)

	open := []any{float64(1_990_000), "10", "12", "9", "11", "100", float64(2_049_999)}
	c, err = CandleFromRow(open, now)
	require.NoError(t, err)
	assert.False(t, c.Final)

	_, err = CandleFromRow([]any{float64(1), "1", "2"}, now)
	assert.ErrorIs(t, err, ErrMalformedTick)

	_, err = CandleFromRow([]any{"x", "1", "2", "0", "1", "1"}, now)
	assert.ErrorIs(t, err, ErrMalformedTick)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" btcusdt ", "15m")
	require.NoError(t, err)
	assert.Equal(t, Key{Symbol: "BTCUSDT", Interval: "15m"}, k)
	assert.Equal(t, "BTCUSDT:15m", k.String())
	assert.Equal(t, "btcusdt@kline_15m", k.StreamName())
	assert.Equal(t, 15*time.Minute, k.Duration())

	_, err = ParseKey("", "1m")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseKey("BTC/USDT", "1m")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseKey("BTCUSDT", "7m")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestParseStreamName(t *testing.T) {
	k, err := ParseStreamName("ethusdt@kline_4h")
	require.NoError(t, err)
	assert.Equal(t, Key{Symbol: "ETHUSDT", Interval: "4h"}, k)
	assert.Equal(t, "ethusdt@kline_4h", k.StreamName())

	for _, bad := range []string{"ethusdt", "ethusdt@trade", "@kline_1m", "ethusdt@kline_9m"} {
		_, err := ParseStreamName(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestRowRoundTrip(t *testing.T) {
	k := Key{Symbol: "BTCUSDT", Interval: "1m"}
	c := Candle{Time: time.UnixMilli(1_700_000_040_000).UTC(), Open: 1.5, High: 2.25, Low: 1, Close: 2, Volume: 12.5}

	row := k.Row(c)
	require.Len(t, row, 7)
	assert.Equal(t, int64(1_700_000_099_999), row[6])

	got, err := CandleFromRow(row, c.Time.Add(time.Minute))
	require.NoError(t, err)
	c.Final = true
	assert.Equal(t, c, got)

	got, err = CandleFromRow(row, c.Time.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, got.Final)
}
