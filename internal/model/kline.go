package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrMalformedTick is returned when an inbound kline cannot become a Candle.
var ErrMalformedTick = errors.New("malformed kline")

// KlineEvent is the envelope pushed by the exchange kline stream:
//
//	{"e":"kline","E":1700000000123,"s":"BTCUSDT","k":{...}}
type KlineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     KlineTick `json:"k"`
}

// KlineTick is the raw kline payload. Prices arrive as JSON strings on the
// exchange feed but numbers are accepted as well.
type KlineTick struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      any    `json:"o"`
	High      any    `json:"h"`
	Low       any    `json:"l"`
	Close     any    `json:"c"`
	Volume    any    `json:"v"`
	Final     bool   `json:"x"`
}

// Candle validates the tick and converts it. Every OHLCV field must be a
// finite number and volume must not be negative.
func (k KlineTick) Candle() (Candle, error) {
	if k.OpenTime <= 0 {
		return Candle{}, fmt.Errorf("%w: open time %d", ErrMalformedTick, k.OpenTime)
	}
	var c Candle
	fields := []struct {
		name string
		raw  any
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := toFloat(f.raw)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: %s: %v", ErrMalformedTick, f.name, err)
		}
		*f.dst = v
	}
	if c.Volume < 0 {
		return Candle{}, fmt.Errorf("%w: negative volume %g", ErrMalformedTick, c.Volume)
	}
	c.Time = time.UnixMilli(k.OpenTime).UTC()
	c.Final = k.Final
	return c, nil
}

// CandleFromRow converts one REST kline row:
//
//	[openTime, "open", "high", "low", "close", "volume", closeTime, ...]
//
// The candle is final when its close time lies before now.
func CandleFromRow(row []any, now time.Time) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("%w: row has %d fields", ErrMalformedTick, len(row))
	}
	openTime, err := toInt64(row[0])
	if err != nil {
		return Candle{}, fmt.Errorf("%w: open time: %v", ErrMalformedTick, err)
	}
	k := KlineTick{
		OpenTime: openTime,
		Open:     row[1],
		High:     row[2],
		Low:      row[3],
		Close:    row[4],
		Volume:   row[5],
	}
	if len(row) > 6 {
		closeTime, err := toInt64(row[6])
		if err != nil {
			return Candle{}, fmt.Errorf("%w: close time: %v", ErrMalformedTick, err)
		}
		k.Final = closeTime < now.UnixMilli()
	}
	return k.Candle()
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, err
		}
		f = n
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("fractional value %v", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
