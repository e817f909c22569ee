package indicator

import (
	"encoding/json"
	"time"
)

// Field is one labelled component of a Result.
type Field struct {
	Label string `json:"label"`
	Value Value  `json:"value"`
}

// Result is the output of one indicator: a scalar (one field) or a tuple.
type Result struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Value returns the first field, which is the headline value.
func (r Result) Value() Value {
	if len(r.Fields) == 0 {
		return NotAvailable
	}
	return r.Fields[0].Value
}

// Field returns the value labelled label, or NotAvailable.
func (r Result) Field(label string) Value {
	for _, f := range r.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return NotAvailable
}

// ResultSet is a full computation for one symbol/interval snapshot.
type ResultSet struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	ComputedAt time.Time `json:"computed_at"`
	Candles    int       `json:"candles"`
	Version    uint64    `json:"version"`
	Source     string    `json:"source"` // "live" or "fallback"
	Results    []Result  `json:"results"`
}

// Get returns the named result.
func (rs *ResultSet) Get(name string) (Result, bool) {
	for _, r := range rs.Results {
		if r.Name == name {
			return r, true
		}
	}
	return Result{}, false
}

// StreamKey returns the Redis key for the latest set: "ind:latest:{symbol}:{interval}".
func (rs *ResultSet) StreamKey() string {
	return "ind:latest:" + rs.Symbol + ":" + rs.Interval
}

// JSON returns the JSON-encoded result set.
func (rs *ResultSet) JSON() []byte {
	b, _ := json.Marshal(rs)
	return b
}
