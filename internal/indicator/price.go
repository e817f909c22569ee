package indicator

// VWAP returns the volume-weighted typical price (H+L+C)/3 of the last
// window candles. Zero total volume gives NotAvailable.
func VWAP(s Series, window int) Value {
	n := s.Len()
	if window <= 0 || n < window {
		return NotAvailable
	}
	var pv, vol float64
	for i := n - window; i < n; i++ {
		tp := (s.High[i] + s.Low[i] + s.Close[i]) / 3
		pv += tp * s.Volume[i]
		vol += s.Volume[i]
	}
	return ratio(pv, vol)
}

// HeikinAshi returns the synthetic open and close of the newest candle.
// The close is the OHLC average; the open averages the previous synthetic
// open and close, starting from the first real open.
func HeikinAshi(s Series) (open, close Value) {
	n := s.Len()
	if n < 2 {
		return NotAvailable, NotAvailable
	}
	haOpen := s.Open[0]
	haClose := (s.Open[0] + s.High[0] + s.Low[0] + s.Close[0]) / 4
	for i := 1; i < n; i++ {
		haOpen = (haOpen + haClose) / 2
		haClose = (s.Open[i] + s.High[i] + s.Low[i] + s.Close[i]) / 4
	}
	return Scalar(haOpen), Scalar(haClose)
}
