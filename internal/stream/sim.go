package stream

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"signalbot/internal/model"
)

// SimConfig configures the synthetic kline generator.
type SimConfig struct {
	StartPrice     float64       // defaults to 100
	TicksPerCandle int           // updates per candle before it closes; defaults to 10
	TickInterval   time.Duration // pacing of SimFeed; defaults to 100ms
	Seed           int64         // 0 seeds from the clock
}

func (c *SimConfig) defaults() {
	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}
	if c.TicksPerCandle <= 0 {
		c.TicksPerCandle = 10
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Generator produces exchange-shaped kline events as a random walk. Each
// candle receives TicksPerCandle updates; the last one is final and the
// next event opens a new candle one interval later.
type Generator struct {
	key   model.Key
	cfg   SimConfig
	rng   *rand.Rand
	price float64

	cur   model.Candle
	ticks int
}

// NewGenerator starts a walk for key with the first candle opening at start.
func NewGenerator(key model.Key, cfg SimConfig, start time.Time) *Generator {
	cfg.defaults()
	g := &Generator{
		key:   key,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		price: cfg.StartPrice,
	}
	g.openCandle(start.Truncate(time.Millisecond))
	return g
}

// walkPrice applies a small random move of at most ±0.1%.
func (g *Generator) walkPrice() float64 {
	pct := (g.rng.Float64()*0.2 - 0.1) / 100.0
	g.price += g.price * pct
	if g.price < 0.01 {
		g.price = 0.01
	}
	return g.price
}

func (g *Generator) openCandle(t time.Time) {
	g.cur = model.Candle{Time: t, Open: g.price, High: g.price, Low: g.price, Close: g.price}
	g.ticks = 0
}

// Next returns the next event.
func (g *Generator) Next() model.KlineEvent {
	if g.cur.Final {
		g.openCandle(g.cur.Time.Add(g.key.Duration()))
	}

	p := g.walkPrice()
	if p > g.cur.High {
		g.cur.High = p
	}
	if p < g.cur.Low {
		g.cur.Low = p
	}
	g.cur.Close = p
	g.cur.Volume += float64(g.rng.Intn(100) + 1)
	g.ticks++
	g.cur.Final = g.ticks >= g.cfg.TicksPerCandle

	openMs := g.cur.Time.UnixMilli()
	return model.KlineEvent{
		EventType: "kline",
		EventTime: openMs + int64(g.ticks),
		Symbol:    g.key.Symbol,
		Kline: model.KlineTick{
			OpenTime:  openMs,
			CloseTime: openMs + g.key.Duration().Milliseconds() - 1,
			Symbol:    g.key.Symbol,
			Interval:  g.key.Interval,
			Open:      formatPrice(g.cur.Open),
			High:      formatPrice(g.cur.High),
			Low:       formatPrice(g.cur.Low),
			Close:     formatPrice(g.cur.Close),
			Volume:    formatPrice(g.cur.Volume),
			Final:     g.cur.Final,
		},
	}
}

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', 8, 64)
}

// SimFeed emits generated klines in-process, for offline runs and tests.
type SimFeed struct {
	cfg SimConfig
	now func() time.Time
}

// NewSimFeed creates a simulated feed.
func NewSimFeed(cfg SimConfig) *SimFeed {
	cfg.defaults()
	return &SimFeed{cfg: cfg, now: time.Now}
}

// Run emits one kline every TickInterval until ctx is cancelled.
func (f *SimFeed) Run(ctx context.Context, key model.Key, emit func(model.KlineTick)) error {
	start := f.now().UTC()
	if d := key.Duration(); d > 0 {
		start = start.Truncate(d)
	}
	g := NewGenerator(key, f.cfg, start)

	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			emit(g.Next().Kline)
		}
	}
}

// History generates limit candles for key ending with the candle open at
// end. Every candle but the last is final.
func History(key model.Key, cfg SimConfig, end time.Time, limit int) []model.Candle {
	d := key.Duration()
	if limit <= 0 || d <= 0 {
		return nil
	}
	cfg.defaults()
	start := end.UTC().Truncate(d).Add(-time.Duration(limit-1) * d)
	g := NewGenerator(key, cfg, start)

	out := make([]model.Candle, 0, limit)
	for len(out) < limit-1 {
		g.Next()
		if g.cur.Final {
			out = append(out, g.cur)
		}
	}
	for i := 0; i < cfg.TicksPerCandle/2+1 && i < cfg.TicksPerCandle-1; i++ {
		g.Next()
	}
	if g.cur.Final {
		g.Next()
	}
	return append(out, g.cur)
}

// FetchKlines serves generated history so the sim feed also covers the
// fallback path.
func (f *SimFeed) FetchKlines(_ context.Context, key model.Key, limit int) ([]model.Candle, error) {
	return History(key, f.cfg, f.now(), limit), nil
}

// SimTicker summarises the last 24 generated hourly candles for symbol.
func SimTicker(symbol string, cfg SimConfig, now time.Time) model.Ticker {
	candles := History(model.Key{Symbol: symbol, Interval: "1h"}, cfg, now, 24)
	t, _ := model.TickerFromCandles(symbol, candles, now)
	return t
}

// Ticker serves the generated 24h summary.
func (f *SimFeed) Ticker(_ context.Context, symbol string) (model.Ticker, error) {
	return SimTicker(symbol, f.cfg, f.now()), nil
}
