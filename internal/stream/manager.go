// Package stream owns the live candle subscription. At most one stream runs
// at a time: subscribing to a key tears down whatever ran before, and the
// superseded stream can no longer write to any buffer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"signalbot/internal/candlebuf"
	"signalbot/internal/metrics"
	"signalbot/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrFallback wraps every failure of the REST history path.
	ErrFallback = errors.New("history fallback failed")
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("stream manager closed")
	// ErrNoFeed is returned by Subscribe when no live feed is configured.
	ErrNoFeed = errors.New("no live feed configured")
)

// Fetcher loads historical candles, oldest first.
type Fetcher interface {
	FetchKlines(ctx context.Context, key model.Key, limit int) ([]model.Candle, error)
}

// subscription is one run of the feed for one key. closed is flipped under
// mu, and every buffer write checks it under the same lock.
type subscription struct {
	key    model.Key
	buf    *candlebuf.Buffer
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	backfilled bool
	err        error
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *subscription) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Manager runs the single live subscription and serves buffer snapshots.
type Manager struct {
	feed  Feed
	fetch Fetcher
	reg   *candlebuf.Registry
	met   *metrics.Metrics
	log   *slog.Logger

	// OnTick, if set, is called after every accepted tick.
	OnTick func(key model.Key, c model.Candle)
	// OnStreamEnd, if set, is called when a subscription stops for any reason.
	OnStreamEnd func(key model.Key, err error)

	root       context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	active *subscription
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a manager. A nil met gets a private registry.
func NewManager(feed Feed, fetch Fetcher, reg *candlebuf.Registry, met *metrics.Metrics, log *slog.Logger) *Manager {
	if reg == nil {
		reg = candlebuf.NewRegistry(candlebuf.Capacity)
	}
	if met == nil {
		met = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		feed:       feed,
		fetch:      fetch,
		reg:        reg,
		met:        met,
		log:        log.With(slog.String("component", "stream")),
		root:       root,
		rootCancel: cancel,
	}
}

// Subscribe makes key the live stream. Any previous subscription (for this
// or another key) is stopped first, and key gets a fresh empty buffer.
func (m *Manager) Subscribe(key model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.feed == nil {
		return ErrNoFeed
	}
	if old := m.active; old != nil {
		old.stop()
		m.log.Info("subscription replaced", slog.String("old", old.key.String()), slog.String("new", key.String()))
	}

	ctx, cancel := context.WithCancel(m.root)
	sub := &subscription{
		key:    key,
		buf:    m.reg.Replace(key),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active = sub
	m.met.Subscriptions.Inc()
	m.met.StreamActive.Set(1)
	m.met.BufferLen.WithLabelValues(key.Symbol, key.Interval).Set(0)

	m.wg.Add(1)
	go m.run(ctx, sub)
	return nil
}

// Unsubscribe stops the live stream, if any. Its buffer stays readable.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.stop()
		m.active = nil
	}
}

// Active returns the key of the running subscription.
func (m *Manager) Active() (model.Key, bool) {
	m.mu.Lock()
	sub := m.active
	m.mu.Unlock()
	if sub == nil || !sub.alive() {
		return model.Key{}, false
	}
	return sub.key, true
}

// IsActive reports whether key is the running subscription.
func (m *Manager) IsActive(key model.Key) bool {
	k, ok := m.Active()
	return ok && k == key
}

// Close stops the live stream and waits for its goroutine to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.active != nil {
		m.active.stop()
		m.active = nil
	}
	m.mu.Unlock()

	m.rootCancel()
	m.wg.Wait()
}

// Snapshot returns a consistent copy of key's buffer. ok is false when the
// key has never been subscribed or seeded.
func (m *Manager) Snapshot(key model.Key) (candlebuf.Snapshot, bool) {
	buf, ok := m.reg.Get(key)
	if !ok {
		return candlebuf.Snapshot{Key: key}, false
	}
	return buf.Snapshot(), true
}

// Keys lists every key with a buffer.
func (m *Manager) Keys() []model.Key {
	return m.reg.Keys()
}

// NeedsHistory reports whether key is the running subscription and its
// buffer has not yet had REST history put behind the live ticks.
func (m *Manager) NeedsHistory(key model.Key) bool {
	m.mu.Lock()
	sub := m.active
	m.mu.Unlock()
	if sub == nil || sub.key != key {
		return false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return !sub.closed && !sub.backfilled && sub.buf.Len() < sub.buf.Cap()
}

// liveSub returns the running subscription writing to buf, or nil.
func (m *Manager) liveSub(key model.Key, buf *candlebuf.Buffer) *subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub := m.active; sub != nil && sub.key == key && sub.buf == buf {
		return sub
	}
	return nil
}

// SnapshotFallback pulls up to limit candles over REST. An empty buffer is
// seeded with them. The live subscription's buffer gets the history that
// predates its first tick put behind it, so ticks that arrived before the
// fetch returned are kept. Any other buffer is left alone and the fetched
// window answers this read only. Errors wrap ErrFallback; no partial
// history is returned.
func (m *Manager) SnapshotFallback(ctx context.Context, key model.Key, limit int) (candlebuf.Snapshot, error) {
	if limit <= 0 || limit > candlebuf.Capacity {
		limit = candlebuf.Capacity
	}
	if m.fetch == nil {
		return candlebuf.Snapshot{}, fmt.Errorf("%w: %s: no fetcher configured", ErrFallback, key)
	}

	start := time.Now()
	candles, err := m.fetch.FetchKlines(ctx, key, limit)
	m.met.FetchDur.Observe(time.Since(start).Seconds())
	if err != nil {
		m.met.FallbackFetches.WithLabelValues("error").Inc()
		return candlebuf.Snapshot{}, fmt.Errorf("%w: %s: %w", ErrFallback, key, err)
	}
	if len(candles) == 0 {
		m.met.FallbackFetches.WithLabelValues("error").Inc()
		return candlebuf.Snapshot{}, fmt.Errorf("%w: %s: no history returned", ErrFallback, key)
	}

	buf := m.reg.GetOrCreate(key)
	sub := m.liveSub(key, buf)
	result := "seeded"
	switch {
	case buf.SeedIfEmpty(candles):
	case sub != nil:
		added, ok := buf.Backfill(candles)
		if !ok {
			m.met.FallbackFetches.WithLabelValues("error").Inc()
			return candlebuf.Snapshot{}, fmt.Errorf("%w: %s: history out of order", ErrFallback, key)
		}
		result = "backfilled"
		m.log.Info("history put behind live ticks", slog.String("key", key.String()), slog.Int("added", added))
	default:
		oneOff := candlebuf.New(key, limit)
		if !oneOff.SeedIfEmpty(candles) {
			m.met.FallbackFetches.WithLabelValues("error").Inc()
			return candlebuf.Snapshot{}, fmt.Errorf("%w: %s: history out of order", ErrFallback, key)
		}
		m.met.FallbackFetches.WithLabelValues("oneoff").Inc()
		return oneOff.Snapshot(), nil
	}

	if sub != nil {
		sub.mu.Lock()
		sub.backfilled = true
		sub.mu.Unlock()
	}
	m.met.FallbackFetches.WithLabelValues(result).Inc()
	m.met.BufferLen.WithLabelValues(key.Symbol, key.Interval).Set(float64(buf.Len()))
	if result == "seeded" {
		m.log.Info("buffer seeded from history", slog.String("key", key.String()), slog.Int("candles", buf.Len()))
	}
	return buf.Snapshot(), nil
}

func (m *Manager) run(ctx context.Context, sub *subscription) {
	defer m.wg.Done()
	defer close(sub.done)

	m.log.Info("subscription started", slog.String("key", sub.key.String()))
	err := m.feed.Run(ctx, sub.key, func(t model.KlineTick) { m.apply(sub, t) })

	sub.mu.Lock()
	sub.closed = true
	sub.err = err
	sub.mu.Unlock()

	m.mu.Lock()
	if m.active == sub {
		m.met.StreamActive.Set(0)
	}
	m.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		// No automatic retry; the next Subscribe starts a new stream.
		m.met.StreamErrors.Inc()
		m.log.Error("stream failed", slog.String("key", sub.key.String()), slog.String("error", err.Error()))
	} else {
		m.log.Info("subscription stopped", slog.String("key", sub.key.String()))
	}
	if m.OnStreamEnd != nil {
		m.OnStreamEnd(sub.key, err)
	}
}

// apply validates one tick and writes it to the subscription's buffer.
func (m *Manager) apply(sub *subscription, t model.KlineTick) {
	if (t.Symbol != "" && !strings.EqualFold(t.Symbol, sub.key.Symbol)) ||
		(t.Interval != "" && t.Interval != sub.key.Interval) {
		m.met.RejectedTicks.WithLabelValues("mismatched").Inc()
		return
	}
	c, err := t.Candle()
	if err != nil {
		m.met.RejectedTicks.WithLabelValues("malformed").Inc()
		m.log.Warn("tick rejected", slog.String("key", sub.key.String()), slog.String("error", err.Error()))
		return
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		m.met.RejectedTicks.WithLabelValues("superseded").Inc()
		return
	}
	outcome := sub.buf.AppendOrUpdate(c)
	n := sub.buf.Len()
	sub.mu.Unlock()

	m.met.TicksTotal.WithLabelValues(outcome.String()).Inc()
	m.met.BufferLen.WithLabelValues(sub.key.Symbol, sub.key.Interval).Set(float64(n))
	if outcome != candlebuf.Stale && m.OnTick != nil {
		m.OnTick(sub.key, c)
	}
}
