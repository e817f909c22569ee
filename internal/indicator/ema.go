package indicator

// ema is an exponential moving average seeded with its first input.
// O(1) per update.
type ema struct {
	multiplier float64
	current    float64
	count      int
}

func newEMA(period int) *ema {
	return &ema{multiplier: 2.0 / float64(period+1)}
}

// Update feeds x and returns the new average.
func (e *ema) Update(x float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = x
		return x
	}
	e.current = x*e.multiplier + e.current*(1-e.multiplier)
	return e.current
}

func (e *ema) Value() float64 { return e.current }
func (e *ema) Ready() bool    { return e.count > 0 }

// emaLast runs a first-value-seeded EMA over xs and returns the final value.
func emaLast(xs []float64, period int) Value {
	if len(xs) == 0 || period <= 0 {
		return NotAvailable
	}
	e := newEMA(period)
	for _, x := range xs {
		e.Update(x)
	}
	return Scalar(e.Value())
}
