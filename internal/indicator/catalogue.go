package indicator

import (
	"strconv"
	"strings"
)

// indName builds names like "SMA_20" or "MACD_3_10_16".
func indName(base string, params ...int) string {
	var b strings.Builder
	b.WriteString(base)
	for _, p := range params {
		b.WriteByte('_')
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

func scalar(name string, f func(Series) Value) Definition {
	return Definition{
		Name:    name,
		Labels:  []string{"value"},
		Compute: func(s Series) []Value { return []Value{f(s)} },
	}
}

func tuple(name string, labels []string, f func(Series) []Value) Definition {
	return Definition{Name: name, Labels: labels, Compute: f}
}

// DefaultCatalogue is the full indicator battery reported per request.
func DefaultCatalogue() []Definition {
	var defs []Definition

	for _, p := range []int{5, 13, 21, 50, 100, 200} {
		p := p
		defs = append(defs, scalar(indName("SMA", p), func(s Series) Value { return SMA(s.Close, p) }))
	}
	for _, p := range []int{5, 13, 21, 50, 100, 200} {
		p := p
		defs = append(defs, scalar(indName("EMA", p), func(s Series) Value { return EMA(s.Close, p) }))
	}
	for _, p := range []int{5, 13, 21, 50, 100} {
		p := p
		defs = append(defs, scalar(indName("WMA", p), func(s Series) Value { return WMA(s.Close, p) }))
	}

	defs = append(defs,
		tuple(indName("MACD", 3, 10, 16), []string{"macd", "signal", "histogram"}, func(s Series) []Value {
			m, sig, h := MACD(s.Close, 3, 10, 16)
			return []Value{m, sig, h}
		}),
		tuple(indName("BB", 20, 2), []string{"upper", "middle", "lower"}, func(s Series) []Value {
			u, m, l := Bollinger(s.Close, 20, 2)
			return []Value{u, m, l}
		}),
		scalar(indName("RSI", 5), func(s Series) Value { return RSI(s.Close, 5) }),
		scalar(indName("RSI", 14), func(s Series) Value { return RSI(s.Close, 14) }),
		scalar(indName("ATR", 14), func(s Series) Value { return ATR(s, 14) }),
		scalar(indName("MFI", 14), func(s Series) Value { return MFI(s, 14) }),
		scalar(indName("MFI", 20), func(s Series) Value { return MFI(s, 20) }),
		scalar(indName("WILLR", 14), func(s Series) Value { return WilliamsR(s, 14) }),
		tuple(indName("ADX", 14), []string{"adx", "pdi", "mdi"}, func(s Series) []Value {
			a, p, m := ADX(s, 14)
			return []Value{a, p, m}
		}),
		tuple(indName("STOCHRSI", 14, 14, 3, 3), []string{"k", "d"}, func(s Series) []Value {
			k, d := StochRSI(s.Close, 14, 14, 3, 3)
			return []Value{k, d}
		}),
		scalar(indName("VWAP", 1), func(s Series) Value { return VWAP(s, 1) }),
		scalar(indName("VWAP", 5), func(s Series) Value { return VWAP(s, 5) }),
		tuple(indName("KDJ", 9, 3, 3), []string{"k", "d", "j"}, func(s Series) []Value {
			k, d, j := KDJ(s, 9)
			return []Value{k, d, j}
		}),
	)

	for _, p := range []int{7, 10, 20} {
		p := p
		defs = append(defs, scalar(indName("CCI", p), func(s Series) Value { return CCI(s, p) }))
	}

	defs = append(defs,
		scalar(indName("ROC", 14), func(s Series) Value { return ROC(s.Close, 14) }),
		scalar(indName("UO", 7, 14, 28), func(s Series) Value { return UltimateOscillator(s, 7, 14, 28) }),
	)

	for _, p := range []int{7, 14, 20} {
		p := p
		defs = append(defs, scalar(indName("MTM", p), func(s Series) Value { return Momentum(s.Close, p) }))
	}

	defs = append(defs,
		tuple(indName("KELTNER", 20, 14, 2), []string{"upper", "middle", "lower"}, func(s Series) []Value {
			u, m, l := Keltner(s, 20, 14, 2)
			return []Value{u, m, l}
		}),
		scalar(indName("ADOSC", 3, 10), func(s Series) Value { return ADOSC(s, 3, 10) }),
		tuple(indName("ICHIMOKU", 9, 26, 52), []string{"conversion", "base", "span_a", "span_b"}, func(s Series) []Value {
			c, b, a, bb := Ichimoku(s, 9, 26, 52)
			return []Value{c, b, a, bb}
		}),
		tuple(indName("SUPERTREND", 10, 3), []string{"value", "direction"}, func(s Series) []Value {
			v, d := SuperTrend(s, 10, 3)
			return []Value{v, d}
		}),
		tuple(indName("TDI", 13, 34, 7), []string{"rsi", "upper", "middle", "lower", "signal"}, func(s Series) []Value {
			r, u, m, l, sig := TDI(s.Close, 13, 34, 2, 7)
			return []Value{r, u, m, l, sig}
		}),
		tuple("HEIKINASHI", []string{"close", "open"}, func(s Series) []Value {
			o, c := HeikinAshi(s)
			return []Value{c, o}
		}),
		scalar(indName("CHOP", 14), func(s Series) Value { return Choppiness(s, 14) }),
		tuple("PSAR", []string{"value", "direction"}, func(s Series) []Value {
			v, d := ParabolicSAR(s, 0.02, 0.2)
			return []Value{v, d}
		}),
		tuple(indName("TRIX", 9, 1), []string{"value", "signal"}, func(s Series) []Value {
			t, sig := TRIX(s.Close, 9, 1)
			return []Value{t, sig}
		}),
		tuple(indName("DONCHIAN", 20), []string{"upper", "middle", "lower"}, func(s Series) []Value {
			u, m, l := Donchian(s, 20)
			return []Value{u, m, l}
		}),
	)
	return defs
}
