package indicator

import "math"

// KDJ is a stochastic oscillator over an rsvPeriod window.
//
// RSV = (close - lowest low) / (highest high - lowest low) · 100. K and D
// start at 50 and, from the second RSV on, move a third of the way toward
// RSV and K respectively (the smoothing constants are fixed at 3). A window
// with zero range leaves K and D unchanged. J = 3K - 2D.
func KDJ(s Series, rsvPeriod int) (k, d, j Value) {
	n := s.Len()
	if rsvPeriod <= 0 || n < rsvPeriod {
		return NotAvailable, NotAvailable, NotAvailable
	}

	kv, dv := 50.0, 50.0
	for i := rsvPeriod; i < n; i++ {
		hh := highest(s.High[i-rsvPeriod+1 : i+1])
		ll := lowest(s.Low[i-rsvPeriod+1 : i+1])
		if hh == ll {
			continue
		}
		rsv := (s.Close[i] - ll) / (hh - ll) * 100
		kv = 2.0/3.0*kv + 1.0/3.0*rsv
		dv = 2.0/3.0*dv + 1.0/3.0*kv
	}
	return Scalar(kv), Scalar(dv), Scalar(3*kv - 2*dv)
}

// UltimateOscillator weighs buying pressure against true range over three
// windows: 100·(4·avg(short) + 2·avg(mid) + avg(long)) / 7. Pressure and
// range are measured against the previous close, so the first candle only
// contributes its close. A window whose range sums to zero averages to 0.
func UltimateOscillator(s Series, short, mid, long int) Value {
	n := s.Len()
	if short <= 0 || mid <= 0 || long <= 0 || n < long {
		return NotAvailable
	}

	bp := make([]float64, 0, n-1)
	tr := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		trueLow := math.Min(s.Low[i], s.Close[i-1])
		trueHigh := math.Max(s.High[i], s.Close[i-1])
		bp = append(bp, s.Close[i]-trueLow)
		tr = append(tr, trueHigh-trueLow)
	}

	avg := func(period int) float64 {
		r := sum(tail(tr, period))
		if r == 0 {
			return 0
		}
		return sum(tail(bp, period)) / r
	}
	return Scalar(100 * (4*avg(short) + 2*avg(mid) + avg(long)) / 7)
}

// ADOSC is the Chaikin oscillator: EMA(fast) - EMA(slow) of the
// accumulation/distribution line. Both EMAs are seeded with the first
// line value. A candle with high == low adds nothing to the line.
func ADOSC(s Series, fast, slow int) Value {
	n := s.Len()
	if fast <= 0 || slow <= 0 || n < slow || n < fast {
		return NotAvailable
	}

	fe, se := newEMA(fast), newEMA(slow)
	var adl float64
	for i := 0; i < n; i++ {
		if hl := s.High[i] - s.Low[i]; hl != 0 {
			clv := ((s.Close[i] - s.Low[i]) - (s.High[i] - s.Close[i])) / hl
			adl += clv * s.Volume[i]
		}
		fe.Update(adl)
		se.Update(adl)
	}
	return Scalar(fe.Value() - se.Value())
}

// Choppiness measures how sideways the last period candles are, from 0
// (trending) to 100 (choppy): 100·log10(ΣTR / (max high - min low)) /
// log10(period), clamped to [0, 100].
func Choppiness(s Series, period int) Value {
	n := s.Len()
	if period < 2 || n < period+1 {
		return NotAvailable
	}

	var trSum float64
	for i := n - period; i < n; i++ {
		trSum += s.trueRange(i)
	}
	rng := highest(tail(s.High, period)) - lowest(tail(s.Low, period))
	r := ratio(trSum, rng)
	v, ok := r.Float()
	if !ok {
		return NotAvailable
	}
	if v <= 0 {
		return Scalar(0)
	}
	ci := 100 * math.Log10(v) / math.Log10(float64(period))
	return Scalar(math.Min(100, math.Max(0, ci)))
}

// Momentum is close[last] - close[last-period].
func Momentum(xs []float64, period int) Value {
	if period <= 0 || len(xs) < period+1 {
		return NotAvailable
	}
	return Scalar(last(xs) - xs[len(xs)-1-period])
}
