package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Trend directions reported alongside SuperTrend and SAR values.
const (
	Uptrend   = 1.0
	Downtrend = -1.0
)

// SuperTrend follows price with an ATR band that only ratchets toward it.
//
// The first period entries of the line are the candle midpoints (H+L)/2 and
// both bands start at the first candle's midpoint. From candle period on:
//
//	upper = (curUpper < upper || close[i-1] > upper) ? curUpper : upper
//	lower = (curLower > lower || close[i-1] < lower) ? curLower : lower
//
// where cur* = hl2 ± mult·ATR[i]. The line rides the lower band while the
// previous close is above the previous line, else the upper band.
func SuperTrend(s Series, period int, mult float64) (line, direction Value) {
	atr := atrSeries(s, period)
	if atr == nil {
		return NotAvailable, NotAvailable
	}

	n := s.Len()
	st := make([]float64, n)
	upper := (s.High[0] + s.Low[0]) / 2
	lower := upper
	dir := Uptrend

	for i := 0; i < n; i++ {
		hl2 := (s.High[i] + s.Low[i]) / 2
		if i < period {
			st[i] = hl2
			continue
		}

		curUpper := hl2 + mult*atr[i]
		curLower := hl2 - mult*atr[i]
		if curUpper < upper || s.Close[i-1] > upper {
			upper = curUpper
		}
		if curLower > lower || s.Close[i-1] < lower {
			lower = curLower
		}

		if s.Close[i-1] > st[i-1] {
			st[i] = math.Max(lower, st[i-1])
			dir = Uptrend
		} else {
			st[i] = math.Min(upper, st[i-1])
			dir = Downtrend
		}
	}
	return Scalar(st[n-1]), Scalar(dir)
}

// Ichimoku returns conversion (9), base (26), leading span A and leading
// span B (52). Every field is NotAvailable below spanB candles.
func Ichimoku(s Series, conv, base, spanB int) (conversion, baseline, leadA, leadB Value) {
	if s.Len() < spanB || s.Len() < base || s.Len() < conv {
		return NotAvailable, NotAvailable, NotAvailable, NotAvailable
	}
	conversion = s.midpoint(conv)
	baseline = s.midpoint(base)
	c, _ := conversion.Float()
	b, _ := baseline.Float()
	return conversion, baseline, Scalar((c + b) / 2), s.midpoint(spanB)
}

// Donchian returns the highest high, midpoint and lowest low of the last
// period candles.
func Donchian(s Series, period int) (upper, middle, lower Value) {
	if period <= 0 || s.Len() < period {
		return NotAvailable, NotAvailable, NotAvailable
	}
	hi := highest(tail(s.High, period))
	lo := lowest(tail(s.Low, period))
	return Scalar(hi), Scalar((hi + lo) / 2), Scalar(lo)
}

// TRIX is the one-candle percent change of a triple-smoothed EMA of closes.
// The signal is the SMA of the last signalPeriod TRIX values.
func TRIX(xs []float64, period, signalPeriod int) (trix, signal Value) {
	if period < 2 || signalPeriod < 1 {
		return NotAvailable, NotAvailable
	}

	smoothed := xs
	for pass := 0; pass < 3; pass++ {
		if len(smoothed) < period {
			return NotAvailable, NotAvailable
		}
		smoothed = talib.Ema(smoothed, period)[period-1:]
	}

	line := make([]float64, 0, len(smoothed))
	for i := 1; i < len(smoothed); i++ {
		if smoothed[i-1] == 0 {
			continue
		}
		line = append(line, (smoothed[i]-smoothed[i-1])/smoothed[i-1]*100)
	}
	if len(line) == 0 {
		return NotAvailable, NotAvailable
	}

	trix = Scalar(last(line))
	if len(line) < signalPeriod {
		return trix, NotAvailable
	}
	return trix, Scalar(sum(tail(line, signalPeriod)) / float64(signalPeriod))
}
