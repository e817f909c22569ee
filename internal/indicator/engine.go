package indicator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"signalbot/internal/model"
)

// Definition is one entry of the catalogue. Compute must return one value
// per label, in label order.
type Definition struct {
	Name    string
	Labels  []string
	Compute func(Series) []Value
}

// Engine runs a catalogue of definitions over a candle window. It holds no
// per-series state and is safe for concurrent use.
type Engine struct {
	defs []Definition
	log  *slog.Logger
	now  func() time.Time
}

// NewEngine creates an engine over defs. A nil logger uses slog.Default().
func NewEngine(defs []Definition, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		defs: defs,
		log:  log.With(slog.String("component", "indicator")),
		now:  time.Now,
	}
}

// Names returns the indicator names in catalogue order.
func (e *Engine) Names() []string {
	names := make([]string, len(e.defs))
	for i, d := range e.defs {
		names[i] = d.Name
	}
	return names
}

// Compute evaluates every definition over candles. One failing indicator
// yields NotAvailable fields for that indicator only.
func (e *Engine) Compute(key model.Key, candles []model.Candle) *ResultSet {
	s := NewSeries(candles)
	rs := &ResultSet{
		ID:         ulid.Make().String(),
		Symbol:     key.Symbol,
		Interval:   key.Interval,
		ComputedAt: e.now().UTC(),
		Candles:    s.Len(),
		Results:    make([]Result, 0, len(e.defs)),
	}
	for _, d := range e.defs {
		rs.Results = append(rs.Results, e.run(d, s))
	}
	return rs
}

func (e *Engine) run(d Definition, s Series) (res Result) {
	res = Result{Name: d.Name, Fields: make([]Field, len(d.Labels))}
	for i, l := range d.Labels {
		res.Fields[i] = Field{Label: l, Value: NotAvailable}
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("indicator panicked",
				slog.String("indicator", d.Name),
				slog.Int("candles", s.Len()),
				slog.String("panic", fmt.Sprint(r)))
			for i := range res.Fields {
				res.Fields[i].Value = NotAvailable
			}
		}
	}()

	vals := d.Compute(s)
	if len(vals) != len(d.Labels) {
		e.log.Error("indicator returned wrong arity",
			slog.String("indicator", d.Name),
			slog.Int("want", len(d.Labels)),
			slog.Int("got", len(vals)))
		return res
	}
	for i, v := range vals {
		res.Fields[i].Value = v
	}
	return res
}
