package indicator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"signalbot/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

// bars builds candles with close c, high c+1, low c-1 and volume 10.
func bars(closes ...float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Time:   time.Unix(int64(i)*60, 0).UTC(),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
			Final:  true,
		}
	}
	return out
}

func series(closes ...float64) Series {
	return NewSeries(bars(closes...))
}

func ramp(from float64, n int, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

func assertClose(t *testing.T, label string, got Value, want, tol float64) {
	t.Helper()
	v, ok := got.Float()
	if !ok {
		t.Errorf("%s: got N/A, want %.6f", label, want)
		return
	}
	if math.Abs(v-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, v, want, tol, math.Abs(v-want))
	}
}

func assertNA(t *testing.T, label string, got Value) {
	t.Helper()
	if got.Available() {
		t.Errorf("%s: expected N/A, got %s", label, got)
	}
}

// ────────────────────────────────────────────────────────────
// Value
// ────────────────────────────────────────────────────────────

func TestValue_Sentinel(t *testing.T) {
	assertNA(t, "NaN", Scalar(math.NaN()))
	assertNA(t, "+Inf", Scalar(math.Inf(1)))

	zero := Scalar(0)
	if !zero.Available() {
		t.Fatal("zero must be distinct from N/A")
	}
	if NotAvailable.String() != "N/A" || zero.String() != "0.00" {
		t.Fatalf("unexpected strings: %q %q", NotAvailable.String(), zero.String())
	}

	b, _ := json.Marshal([]Value{Scalar(1.5), NotAvailable})
	if string(b) != "[1.5,null]" {
		t.Fatalf("unexpected JSON %s", b)
	}

	var back []Value
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back[0].Available() || back[1].Available() {
		t.Fatalf("unexpected decode %+v", back)
	}
}

func TestFormatNum(t *testing.T) {
	if got := FormatNum(Scalar(64250.1), 2); got != "64,250.10" {
		t.Fatalf("got %q", got)
	}
	if got := FormatNum(NotAvailable, 2); got != "N/A" {
		t.Fatalf("got %q", got)
	}
}

// ────────────────────────────────────────────────────────────
// Library-backed
// ────────────────────────────────────────────────────────────

func TestMovingAverages(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}

	assertClose(t, "SMA(3)", SMA(xs, 3), 4, 1e-9)
	// SMA seed (1+2+3)/3=2, then k=0.5: 3, 4
	assertClose(t, "EMA(3)", EMA(xs, 3), 4, 1e-9)
	// (3*1 + 4*2 + 5*3) / 6
	assertClose(t, "WMA(3)", WMA(xs, 3), 26.0/6.0, 1e-9)

	assertNA(t, "SMA short", SMA(xs, 6))
	assertNA(t, "EMA short", EMA(xs, 6))
	assertNA(t, "WMA short", WMA(xs, 6))
}

func TestRSI_Extremes(t *testing.T) {
	assertClose(t, "RSI all up", RSI(ramp(10, 20, 1), 14), 100, 1e-9)
	assertClose(t, "RSI all down", RSI(ramp(40, 20, -1), 14), 0, 1e-9)
	assertNA(t, "RSI short", RSI(ramp(10, 14, 1), 14))
}

func TestLibraryGuards(t *testing.T) {
	s := series(ramp(100, 10, 1)...)

	m, sig, h := MACD(s.Close, 3, 10, 16)
	assertNA(t, "MACD", m)
	assertNA(t, "MACD signal", sig)
	assertNA(t, "MACD hist", h)

	u, _, _ := Bollinger(s.Close, 20, 2)
	assertNA(t, "BB", u)

	assertNA(t, "ATR", ATR(s, 14))
	assertNA(t, "MFI", MFI(s, 14))
	assertNA(t, "WILLR", WilliamsR(s, 14))
	assertNA(t, "CCI", CCI(s, 20))
	assertNA(t, "ROC", ROC(s.Close, 14))

	k, d := StochRSI(s.Close, 14, 14, 3, 3)
	assertNA(t, "StochRSI k", k)
	assertNA(t, "StochRSI d", d)

	r, _, _, _, _ := TDI(s.Close, 13, 34, 2, 7)
	assertNA(t, "TDI", r)
}

func TestADX_PartialHistory(t *testing.T) {
	s := series(ramp(100, 20, 1)...)
	adx, pdi, mdi := ADX(s, 14)
	assertNA(t, "ADX below 2*period", adx)
	if !pdi.Available() || !mdi.Available() {
		t.Fatalf("DI lines should be available: %s %s", pdi, mdi)
	}
}

func TestBollinger_Flat(t *testing.T) {
	xs := make([]float64, 25)
	for i := range xs {
		xs[i] = 50
	}
	u, m, l := Bollinger(xs, 20, 2)
	assertClose(t, "BB upper", u, 50, 1e-9)
	assertClose(t, "BB middle", m, 50, 1e-9)
	assertClose(t, "BB lower", l, 50, 1e-9)
}

func TestKeltner(t *testing.T) {
	// constant true range of 2 and a linear close
	s := series(ramp(100, 40, 1)...)
	u, m, l := Keltner(s, 20, 14, 2)
	mid, _ := m.Float()
	assertClose(t, "Keltner upper", u, mid+4, 1e-9)
	assertClose(t, "Keltner lower", l, mid-4, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Hand-rolled
// ────────────────────────────────────────────────────────────

func TestMomentum(t *testing.T) {
	xs := ramp(10, 11, 1) // 10..20
	v := Momentum(xs, 7)
	assertClose(t, "MTM(7)", v, 7, 1e-9)
	if v.String() != "7.00" {
		t.Fatalf("expected 7.00, got %s", v)
	}
	assertNA(t, "MTM short", Momentum(xs, 11))
}

func TestKDJ_Flat(t *testing.T) {
	flat := make([]model.Candle, 12)
	for i := range flat {
		flat[i] = model.Candle{Open: 5, High: 5, Low: 5, Close: 5}
	}
	k, d, j := KDJ(NewSeries(flat), 9)
	assertClose(t, "K", k, 50, 1e-9)
	assertClose(t, "D", d, 50, 1e-9)
	assertClose(t, "J", j, 50, 1e-9)
}

func TestKDJ_Values(t *testing.T) {
	s := series(10, 11, 12, 11, 13, 14, 13, 15, 16, 15, 17, 18)
	k, d, j := KDJ(s, 9)
	assertClose(t, "K", k, 74.470899, 1e-5)
	assertClose(t, "D", d, 63.051146, 1e-5)
	assertClose(t, "J", j, 97.310406, 1e-5)

	k, _, _ = KDJ(series(1, 2, 3, 4, 5, 6, 7, 8), 9)
	assertNA(t, "K short", k)
}

func TestUltimateOscillator(t *testing.T) {
	up := make([]model.Candle, 28)
	down := make([]model.Candle, 28)
	for i := range up {
		c := 100 + float64(i)
		up[i] = model.Candle{Open: c - 1, High: c, Low: c - 2, Close: c}
		d := 200 - float64(i)
		down[i] = model.Candle{Open: d + 1, High: d + 2, Low: d, Close: d}
	}
	// closing on the high every bar: buying pressure equals true range
	assertClose(t, "UO up", UltimateOscillator(NewSeries(up), 7, 14, 28), 100, 1e-9)
	assertClose(t, "UO down", UltimateOscillator(NewSeries(down), 7, 14, 28), 0, 1e-9)
	assertNA(t, "UO short", UltimateOscillator(NewSeries(up[:27]), 7, 14, 28))

	v, _ := UltimateOscillator(series(10, 12, 11, 13, 12, 14, 13, 15, 14, 16, 15, 17, 16, 18,
		17, 19, 18, 20, 19, 21, 20, 22, 21, 23, 22, 24, 23, 25), 7, 14, 28).Float()
	if v < 0 || v > 100 {
		t.Fatalf("UO out of range: %f", v)
	}
}

func TestADOSC(t *testing.T) {
	flat := make([]model.Candle, 12)
	for i := range flat {
		flat[i] = model.Candle{Open: 5, High: 5, Low: 5, Close: 5, Volume: 100}
	}
	assertClose(t, "ADOSC zero range", ADOSC(NewSeries(flat), 3, 10), 0, 1e-12)
	assertNA(t, "ADOSC short", ADOSC(NewSeries(flat[:9]), 3, 10))

	// closes on the high accumulate, so the fast average leads
	acc := make([]model.Candle, 15)
	for i := range acc {
		acc[i] = model.Candle{High: 10, Low: 8, Close: 10, Volume: 5}
	}
	v, _ := ADOSC(NewSeries(acc), 3, 10).Float()
	if v <= 0 {
		t.Fatalf("expected positive ADOSC, got %f", v)
	}
}

func TestChoppiness(t *testing.T) {
	assertClose(t, "CHOP trend", Choppiness(series(ramp(100, 30, 1)...), 14), 23.650654, 1e-5)
	assertNA(t, "CHOP short", Choppiness(series(ramp(100, 14, 1)...), 14))

	flat := make([]model.Candle, 20)
	for i := range flat {
		flat[i] = model.Candle{Open: 5, High: 5, Low: 5, Close: 5}
	}
	assertNA(t, "CHOP zero range", Choppiness(NewSeries(flat), 14))
}

func TestIchimoku(t *testing.T) {
	s := series(ramp(0, 60, 1)...) // closes 0..59, high c+1, low c-1
	c, b, a, sb := Ichimoku(s, 9, 26, 52)
	assertClose(t, "conversion", c, (60+50)/2.0, 1e-9)
	assertClose(t, "base", b, (60+33)/2.0, 1e-9)
	assertClose(t, "span A", a, (55+46.5)/2.0, 1e-9)
	assertClose(t, "span B", sb, (60+7)/2.0, 1e-9)

	c, b, a, sb = Ichimoku(series(ramp(0, 51, 1)...), 9, 26, 52)
	for _, v := range []Value{c, b, a, sb} {
		assertNA(t, "ichimoku short", v)
	}
}

func TestSuperTrend_Rising(t *testing.T) {
	// close = hl2 and true range is a constant 2, so ATR(10) = 2
	s := series(ramp(100, 60, 1)...)
	line, dir := SuperTrend(s, 10, 3)
	assertClose(t, "line on lower band", line, 159-6, 1e-9)
	assertClose(t, "direction", dir, Uptrend, 0)

	// The lower band only ratchets up, so the line never steps back down.
	closes := ramp(100, 60, 1)
	prev := math.Inf(-1)
	for k := 11; k <= len(closes); k++ {
		line, _ := SuperTrend(series(closes[:k]...), 10, 3)
		v, ok := line.Float()
		if !ok {
			t.Fatalf("prefix %d: line N/A", k)
		}
		if v < prev {
			t.Fatalf("prefix %d: line fell from %f to %f", k, prev, v)
		}
		if k >= 17 && v != closes[k-1]-6 {
			t.Fatalf("prefix %d: line %f off the lower band %f", k, v, closes[k-1]-6)
		}
		prev = v
	}
}

func TestSuperTrend_Falling(t *testing.T) {
	s := series(ramp(200, 60, -1)...)
	line, dir := SuperTrend(s, 10, 3)
	assertClose(t, "line on upper band", line, 141+6, 1e-9)
	assertClose(t, "direction", dir, Downtrend, 0)
}

func TestSuperTrend_Short(t *testing.T) {
	line, dir := SuperTrend(series(ramp(100, 10, 1)...), 10, 3)
	assertNA(t, "line", line)
	assertNA(t, "direction", dir)
}

func TestParabolicSAR(t *testing.T) {
	sar, dir := ParabolicSAR(series(ramp(100, 30, 1)...), 0.02, 0.2)
	assertClose(t, "SAR rising", sar, 124.978907695828, 1e-9)
	assertClose(t, "direction up", dir, Uptrend, 0)

	sar, dir = ParabolicSAR(series(ramp(200, 30, -1)...), 0.02, 0.2)
	assertClose(t, "SAR falling", sar, 175.021092304172, 1e-9)
	assertClose(t, "direction down", dir, Downtrend, 0)

	// 15 rising closes then 7 falling by 2: the SAR flips above price at
	// candle 17 and accelerates down from there.
	closes := append(ramp(100, 15, 1), ramp(112, 7, -2)...)
	want := map[int]float64{15: 109.400521, 16: 110.520417, 17: 115, 19: 114.5648, 22: 111.900475}
	for k, w := range want {
		sar, _ := ParabolicSAR(series(closes[:k]...), 0.02, 0.2)
		assertClose(t, "SAR reversal", sar, w, 1e-6)
	}
	_, dir = ParabolicSAR(series(closes...), 0.02, 0.2)
	assertClose(t, "direction after reversal", dir, Downtrend, 0)

	sar, dir = ParabolicSAR(series(100, 101), 0.02, 0.2)
	assertClose(t, "SAR two candles", sar, 99, 1e-12)
	assertClose(t, "direction two candles", dir, Uptrend, 0)

	sar, _ = ParabolicSAR(series(1), 0.02, 0.2)
	assertNA(t, "SAR short", sar)
}

func TestTRIX(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 7
	}
	v, sig := TRIX(flat, 9, 1)
	assertClose(t, "TRIX flat", v, 0, 1e-12)
	assertClose(t, "TRIX signal", sig, 0, 1e-12)

	v, sig = TRIX(ramp(100, 40, 1), 9, 1)
	if x, _ := v.Float(); x <= 0 {
		t.Fatalf("TRIX of a rising series should be positive, got %s", v)
	}
	if v != sig {
		t.Fatalf("signal(1) should equal TRIX: %s vs %s", v, sig)
	}

	v, _ = TRIX(ramp(100, 25, 1), 9, 1)
	assertNA(t, "TRIX short", v)

	_, sig = TRIX(ramp(100, 27, 1), 9, 5)
	assertNA(t, "TRIX signal short", sig)
}

func TestDonchian(t *testing.T) {
	s := series(ramp(100, 25, 1)...)
	u, m, l := Donchian(s, 20)
	assertClose(t, "upper", u, 125, 1e-9)
	assertClose(t, "lower", l, 104, 1e-9)
	assertClose(t, "middle", m, 114.5, 1e-9)

	u, _, _ = Donchian(series(1, 2, 3), 20)
	assertNA(t, "short", u)
}

func TestVWAP(t *testing.T) {
	s := series(10, 20, 30, 40, 50)
	assertClose(t, "VWAP(1)", VWAP(s, 1), 50, 1e-9)
	assertClose(t, "VWAP(5)", VWAP(s, 5), 30, 1e-9)
	assertNA(t, "VWAP short", VWAP(s, 6))

	s.Volume = make([]float64, 5)
	assertNA(t, "VWAP zero volume", VWAP(s, 5))
}

func TestHeikinAshi(t *testing.T) {
	candles := []model.Candle{
		{Open: 10, High: 12, Low: 9, Close: 11},
		{Open: 11, High: 13, Low: 10, Close: 12},
		{Open: 12, High: 14, Low: 11, Close: 13},
	}
	o, c := HeikinAshi(NewSeries(candles))
	assertClose(t, "HA open", o, 10.875, 1e-9)
	assertClose(t, "HA close", c, 12.5, 1e-9)

	o, c = HeikinAshi(NewSeries(candles[:1]))
	assertNA(t, "HA open short", o)
	assertNA(t, "HA close short", c)
}
