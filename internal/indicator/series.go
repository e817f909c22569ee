package indicator

import (
	"math"

	"signalbot/internal/model"
)

// Series holds the candle columns an indicator reads. All slices have the
// same length, oldest first.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// NewSeries extracts columns from candles.
func NewSeries(candles []model.Candle) Series {
	n := len(candles)
	s := Series{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, c := range candles {
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

// Len returns the number of candles.
func (s Series) Len() int { return len(s.Close) }

// trueRange of candle i against the previous close. Candle 0 uses high-low.
func (s Series) trueRange(i int) float64 {
	hl := s.High[i] - s.Low[i]
	if i == 0 {
		return hl
	}
	return math.Max(hl, math.Max(math.Abs(s.High[i]-s.Close[i-1]), math.Abs(s.Low[i]-s.Close[i-1])))
}

func last(xs []float64) float64 {
	return xs[len(xs)-1]
}

func tail(xs []float64, n int) []float64 {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

func highest(xs []float64) float64 {
	h := math.Inf(-1)
	for _, x := range xs {
		if x > h {
			h = x
		}
	}
	return h
}

func lowest(xs []float64) float64 {
	l := math.Inf(1)
	for _, x := range xs {
		if x < l {
			l = x
		}
	}
	return l
}

// ratio returns num/den, or NotAvailable when den is zero.
func ratio(num, den float64) Value {
	if den == 0 {
		return NotAvailable
	}
	return Scalar(num / den)
}

// midpoint of the highest high and lowest low over the last n candles.
func (s Series) midpoint(n int) Value {
	if n <= 0 || s.Len() < n {
		return NotAvailable
	}
	return Scalar((highest(tail(s.High, n)) + lowest(tail(s.Low, n))) / 2)
}
