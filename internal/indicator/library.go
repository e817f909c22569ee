package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// The go-talib functions return slices as long as their input with the
// warm-up region zero-filled, and index out of range on short input. Every
// wrapper checks the minimum length first and reads only the last element.

// SMA returns the simple moving average of the last period values.
func SMA(xs []float64, period int) Value {
	if period < 2 || len(xs) < period {
		return NotAvailable
	}
	return Scalar(last(talib.Sma(xs, period)))
}

// EMA returns the SMA-seeded exponential moving average.
func EMA(xs []float64, period int) Value {
	if period < 2 || len(xs) < period {
		return NotAvailable
	}
	return Scalar(last(talib.Ema(xs, period)))
}

// WMA returns the linearly weighted moving average.
func WMA(xs []float64, period int) Value {
	if period < 2 || len(xs) < period {
		return NotAvailable
	}
	return Scalar(last(talib.Wma(xs, period)))
}

// RSI returns Wilder's relative strength index.
func RSI(xs []float64, period int) Value {
	if period < 2 || len(xs) < period+1 {
		return NotAvailable
	}
	return Scalar(last(talib.Rsi(xs, period)))
}

// rsiSeries returns only the computed part of the RSI series.
func rsiSeries(xs []float64, period int) []float64 {
	if period < 2 || len(xs) < period+1 {
		return nil
	}
	return talib.Rsi(xs, period)[period:]
}

// MACD returns the MACD line, its signal and the histogram.
func MACD(xs []float64, fast, slow, signal int) (macd, sig, hist Value) {
	if fast < 2 || slow <= fast || signal < 2 || len(xs) < slow+signal-1 {
		return NotAvailable, NotAvailable, NotAvailable
	}
	m, s, h := talib.Macd(xs, fast, slow, signal)
	return Scalar(last(m)), Scalar(last(s)), Scalar(last(h))
}

// Bollinger returns the upper, middle and lower bands of an SMA(period)
// envelope at dev standard deviations.
func Bollinger(xs []float64, period int, dev float64) (upper, middle, lower Value) {
	if period < 2 || len(xs) < period {
		return NotAvailable, NotAvailable, NotAvailable
	}
	u, m, l := talib.BBands(xs, period, dev, dev, talib.SMA)
	return Scalar(last(u)), Scalar(last(m)), Scalar(last(l))
}

// ATR returns the Wilder-smoothed average true range.
func ATR(s Series, period int) Value {
	if period < 2 || s.Len() < period+1 {
		return NotAvailable
	}
	return Scalar(last(talib.Atr(s.High, s.Low, s.Close, period)))
}

// atrSeries returns an ATR series aligned with the candles; entries before
// index period are not valid.
func atrSeries(s Series, period int) []float64 {
	if period < 2 || s.Len() < period+1 {
		return nil
	}
	return talib.Atr(s.High, s.Low, s.Close, period)
}

// ADX returns the average directional index with the +DI and -DI lines.
func ADX(s Series, period int) (adx, pdi, mdi Value) {
	if period < 2 || s.Len() < period+1 {
		return NotAvailable, NotAvailable, NotAvailable
	}
	pdi = Scalar(last(talib.PlusDI(s.High, s.Low, s.Close, period)))
	mdi = Scalar(last(talib.MinusDI(s.High, s.Low, s.Close, period)))
	adx = NotAvailable
	if s.Len() >= 2*period {
		adx = Scalar(last(talib.Adx(s.High, s.Low, s.Close, period)))
	}
	return adx, pdi, mdi
}

// MFI returns the money flow index.
func MFI(s Series, period int) Value {
	if period < 2 || s.Len() < period+1 {
		return NotAvailable
	}
	return Scalar(last(talib.Mfi(s.High, s.Low, s.Close, s.Volume, period)))
}

// WilliamsR returns Williams %R in [-100, 0].
func WilliamsR(s Series, period int) Value {
	if period < 2 || s.Len() < period {
		return NotAvailable
	}
	return Scalar(last(talib.WillR(s.High, s.Low, s.Close, period)))
}

// CCI returns the commodity channel index.
func CCI(s Series, period int) Value {
	if period < 2 || s.Len() < period {
		return NotAvailable
	}
	return Scalar(last(talib.Cci(s.High, s.Low, s.Close, period)))
}

// ROC returns the percentage rate of change over period candles.
func ROC(xs []float64, period int) Value {
	if period < 1 || len(xs) < period+1 {
		return NotAvailable
	}
	return Scalar(last(talib.Roc(xs, period)))
}

// StochRSI applies a slow stochastic to the RSI series: %K is the
// kPeriod SMA of the raw stochastic and %D the dPeriod SMA of %K.
func StochRSI(xs []float64, rsiPeriod, stochPeriod, kPeriod, dPeriod int) (k, d Value) {
	rsi := rsiSeries(xs, rsiPeriod)
	if stochPeriod < 1 || kPeriod < 1 || dPeriod < 1 || len(rsi) < stochPeriod+kPeriod+dPeriod-2 {
		return NotAvailable, NotAvailable
	}
	sk, sd := talib.Stoch(rsi, rsi, rsi, stochPeriod, kPeriod, talib.SMA, dPeriod, talib.SMA)
	return Scalar(last(sk)), Scalar(last(sd))
}

// ParabolicSAR returns the stop-and-reverse level for the latest candle and
// the trend it implies: up while the SAR sits below the close.
func ParabolicSAR(s Series, step, maxAccel float64) (sar, direction Value) {
	if s.Len() < 2 || step <= 0 || maxAccel < step {
		return NotAvailable, NotAvailable
	}
	v := last(talib.Sar(s.High, s.Low, step, maxAccel))
	if v < last(s.Close) {
		return Scalar(v), Scalar(Uptrend)
	}
	return Scalar(v), Scalar(Downtrend)
}

// Keltner returns an EMA(emaPeriod) midline with bands at mult × ATR(atrPeriod).
func Keltner(s Series, emaPeriod, atrPeriod int, mult float64) (upper, middle, lower Value) {
	mid := EMA(s.Close, emaPeriod)
	atr := ATR(s, atrPeriod)
	m, ok1 := mid.Float()
	a, ok2 := atr.Float()
	if !ok1 || !ok2 {
		return NotAvailable, NotAvailable, NotAvailable
	}
	return Scalar(m + mult*a), mid, Scalar(m - mult*a)
}

// TDI is the traders dynamic index: an RSI line, Bollinger bands drawn on
// the RSI, and an SMA signal of the RSI.
func TDI(xs []float64, rsiPeriod, bandPeriod int, dev float64, signalPeriod int) (rsi, upper, middle, lower, signal Value) {
	line := rsiSeries(xs, rsiPeriod)
	if len(line) < bandPeriod || len(line) < signalPeriod {
		return NotAvailable, NotAvailable, NotAvailable, NotAvailable, NotAvailable
	}
	upper, middle, lower = Bollinger(line, bandPeriod, dev)
	return Scalar(last(line)), upper, middle, lower, SMA(line, signalPeriod)
}
