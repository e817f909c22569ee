package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/model"
)

var engineKey = model.Key{Symbol: "BTCUSDT", Interval: "1h"}

// wave produces n candles with an oscillating close and varying volume.
func wave(n int) []model.Candle {
	out := bars(make([]float64, n)...)
	for i := range out {
		c := 100 + 10*math.Sin(float64(i)/5) + float64(i)*0.1
		out[i].Open = c - 0.5
		out[i].Close = c
		out[i].High = c + 1 + math.Abs(math.Cos(float64(i)))
		out[i].Low = c - 1 - math.Abs(math.Sin(float64(i)))
		out[i].Volume = 50 + float64(i%7)*10
	}
	return out
}

func TestEngine_FullCatalogueAvailable(t *testing.T) {
	e := NewEngine(DefaultCatalogue(), nil)
	rs := e.Compute(engineKey, wave(200))

	assert.Equal(t, "BTCUSDT", rs.Symbol)
	assert.Equal(t, "1h", rs.Interval)
	assert.Equal(t, 200, rs.Candles)
	assert.NotEmpty(t, rs.ID)
	require.Len(t, rs.Results, len(e.Names()))

	for _, r := range rs.Results {
		for _, f := range r.Fields {
			assert.Truef(t, f.Value.Available(), "%s.%s should be available with 200 candles", r.Name, f.Label)
		}
	}
}

func TestEngine_ShortHistoryNeverPanics(t *testing.T) {
	e := NewEngine(DefaultCatalogue(), nil)
	for _, n := range []int{0, 1, 2, 9, 27, 51} {
		rs := e.Compute(engineKey, wave(n))
		require.Len(t, rs.Results, len(e.Names()))
		for _, r := range rs.Results {
			for _, f := range r.Fields {
				if v, ok := f.Value.Float(); ok {
					assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s non-finite at n=%d", r.Name, n)
				}
			}
		}
	}

	rs := e.Compute(engineKey, wave(51))
	ichi, ok := rs.Get("ICHIMOKU_9_26_52")
	require.True(t, ok)
	for _, f := range ichi.Fields {
		assert.False(t, f.Value.Available(), "ichimoku %s should be N/A below 52 candles", f.Label)
	}
	sma5, _ := rs.Get("SMA_5")
	assert.True(t, sma5.Value().Available())
}

func TestEngine_IsolatesFailures(t *testing.T) {
	defs := []Definition{
		scalar("BOOM", func(Series) Value { panic("boom") }),
		tuple("ARITY", []string{"a", "b"}, func(Series) []Value { return []Value{Scalar(1)} }),
		scalar("MTM_1", func(s Series) Value { return Momentum(s.Close, 1) }),
	}
	rs := NewEngine(defs, nil).Compute(engineKey, bars(1, 2, 4))

	boom, _ := rs.Get("BOOM")
	assert.False(t, boom.Value().Available())

	arity, _ := rs.Get("ARITY")
	require.Len(t, arity.Fields, 2)
	assert.False(t, arity.Field("a").Available())
	assert.False(t, arity.Field("b").Available())

	mtm, _ := rs.Get("MTM_1")
	got, ok := mtm.Value().Float()
	assert.True(t, ok)
	assert.Equal(t, 2.0, got)
}

func TestDefaultCatalogue_UniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range DefaultCatalogue() {
		assert.False(t, seen[d.Name], "duplicate indicator %s", d.Name)
		seen[d.Name] = true
		assert.NotEmpty(t, d.Labels, d.Name)
	}
	assert.True(t, seen["SUPERTREND_10_3"])
	assert.True(t, seen["STOCHRSI_14_14_3_3"])
}

func TestResultSet_JSON(t *testing.T) {
	rs := NewEngine(DefaultCatalogue(), nil).Compute(engineKey, wave(10))
	assert.Equal(t, "ind:latest:BTCUSDT:1h", rs.StreamKey())
	assert.Contains(t, string(rs.JSON()), `"name":"SMA_200","fields":[{"label":"value","value":null}]`)
}
