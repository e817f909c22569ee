// Package indicator computes technical indicators over a candle window.
//
// Every indicator is a pure function of a Series. Results that cannot be
// computed (short history, degenerate arithmetic) are NotAvailable, which
// is distinct from zero and never NaN or Inf.
package indicator

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Value is a finite float or NotAvailable.
type Value struct {
	v  float64
	ok bool
}

// NotAvailable marks a value that could not be computed.
var NotAvailable = Value{}

// Scalar wraps f. NaN and ±Inf become NotAvailable.
func Scalar(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NotAvailable
	}
	return Value{v: f, ok: true}
}

// Float returns the number and whether it is available.
func (v Value) Float() (float64, bool) { return v.v, v.ok }

// Available reports whether v holds a number.
func (v Value) Available() bool { return v.ok }

// String renders "N/A" or the value with two decimals.
func (v Value) String() string {
	if !v.ok {
		return "N/A"
	}
	return strconv.FormatFloat(v.v, 'f', 2, 64)
}

// MarshalJSON encodes NotAvailable as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = NotAvailable
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Scalar(f)
	return nil
}

var printer = message.NewPrinter(language.English)

// FormatNum renders v with thousands grouping and the given decimals,
// e.g. "64,250.10". NotAvailable renders as "N/A".
func FormatNum(v Value, decimals int) string {
	if !v.ok {
		return "N/A"
	}
	return printer.Sprintf("%."+strconv.Itoa(decimals)+"f", v.v)
}
