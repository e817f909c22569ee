package model

import "time"

// Candle is a single OHLCV bar for one symbol/interval.
// Time is the bar open time (UTC). Final marks a closed bar; an open bar
// is still receiving updates from the stream.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Final  bool      `json:"final"`
}
