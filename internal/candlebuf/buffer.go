// Package candlebuf keeps a bounded, time-ordered window of candles per
// symbol/interval. A Buffer is a fixed-size circular array guarded by an
// RWMutex: the stream goroutine mutates it, request handlers take copies.
package candlebuf

import (
	"sort"
	"sync"

	"signalbot/internal/model"
)

// Capacity is the default number of candles retained per series.
const Capacity = 200

// Outcome reports what AppendOrUpdate did with a candle.
type Outcome int

const (
	// Appended means a new candle was added (possibly evicting the oldest).
	Appended Outcome = iota
	// Updated means the open candle was overwritten in place.
	Updated
	// Finalized means the open candle was overwritten and closed.
	Finalized
	// Stale means the candle was older than the window tail and ignored.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Updated:
		return "updated"
	case Finalized:
		return "finalized"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of a buffer at one version.
type Snapshot struct {
	Key     model.Key      `json:"key"`
	Candles []model.Candle `json:"candles"`
	Version uint64         `json:"version"`
}

// Len returns the number of candles in the snapshot.
func (s Snapshot) Len() int { return len(s.Candles) }

// Last returns the newest candle.
func (s Snapshot) Last() (model.Candle, bool) {
	if len(s.Candles) == 0 {
		return model.Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// ClosedOnly returns a snapshot without a trailing open candle.
func (s Snapshot) ClosedOnly() Snapshot {
	if last, ok := s.Last(); ok && !last.Final {
		s.Candles = s.Candles[:len(s.Candles)-1]
	}
	return s
}

// Buffer is a rolling candle window for one key.
//
// Invariants: candles are strictly ascending by open time, at most one
// candle is open and it is always the last, and a final candle is never
// modified again.
type Buffer struct {
	key model.Key

	mu      sync.RWMutex
	buf     []model.Candle
	head    int // index of the oldest candle
	n       int
	version uint64
	evicted uint64
}

// New creates a buffer for key. capacity <= 0 selects Capacity.
func New(key model.Key, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Buffer{
		key: key,
		buf: make([]model.Candle, capacity),
	}
}

// Key returns the series this buffer belongs to.
func (b *Buffer) Key() model.Key { return b.key }

// AppendOrUpdate applies one candle from the stream.
//
// A candle with the same open time as an open tail overwrites it (and
// closes it when c.Final). A newer candle closes any open tail with its
// last known values, then is appended. Anything older than the tail, or
// equal to a closed tail, is Stale.
func (b *Buffer) AppendOrUpdate(c model.Candle) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n == 0 {
		b.push(c)
		return Appended
	}

	last := &b.buf[b.index(b.n-1)]
	switch {
	case c.Time.Before(last.Time):
		return Stale
	case c.Time.Equal(last.Time):
		if last.Final {
			return Stale
		}
		*last = c
		b.version++
		if c.Final {
			return Finalized
		}
		return Updated
	default:
		last.Final = true
		b.push(c)
		return Appended
	}
}

// SeedIfEmpty bulk-loads history into an empty buffer. It keeps the newest
// Cap() candles and marks every candle but the last as final. It returns
// false, leaving the buffer untouched, when the buffer already holds data
// or the input is empty or not strictly ascending.
func (b *Buffer) SeedIfEmpty(candles []model.Candle) bool {
	if len(candles) == 0 || !ascending(candles) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n != 0 {
		return false
	}
	b.seed(candles)
	return true
}

// Backfill puts history behind the live data. Only candles strictly older
// than the oldest buffered candle are taken, all marked final, and only as
// many as fit: buffered candles are never changed or evicted. An empty
// buffer is seeded as SeedIfEmpty does. It returns how many candles were
// added; ok is false when the input is empty or not strictly ascending.
func (b *Buffer) Backfill(candles []model.Candle) (added int, ok bool) {
	if len(candles) == 0 || !ascending(candles) {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n == 0 {
		return b.seed(candles), true
	}
	oldest := b.buf[b.head].Time
	k := sort.Search(len(candles), func(i int) bool { return !candles[i].Time.Before(oldest) })
	older := candles[:k]
	if room := len(b.buf) - b.n; len(older) > room {
		older = older[len(older)-room:]
	}
	if len(older) == 0 {
		return 0, true
	}

	merged := make([]model.Candle, 0, len(older)+b.n)
	merged = append(merged, older...)
	for i := range merged {
		merged[i].Final = true
	}
	for i := 0; i < b.n; i++ {
		merged = append(merged, b.buf[b.index(i)])
	}
	b.head = 0
	b.n = copy(b.buf, merged)
	b.version++
	return len(older), true
}

// seed loads ascending candles into the empty buffer. Caller holds mu.
func (b *Buffer) seed(candles []model.Candle) int {
	if len(candles) > len(b.buf) {
		candles = candles[len(candles)-len(b.buf):]
	}
	b.head = 0
	b.n = copy(b.buf, candles)
	for i := 0; i < b.n-1; i++ {
		b.buf[i].Final = true
	}
	b.version++
	return b.n
}

// Snapshot returns a consistent copy of the window, oldest first.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Candle, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.buf[b.index(i)]
	}
	return Snapshot{Key: b.key, Candles: out, Version: b.version}
}

// Len returns the current number of candles.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Version increments on every accepted mutation.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Evicted returns how many candles were dropped off the front.
func (b *Buffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}

// push appends c, evicting the oldest candle when full. Caller holds mu.
func (b *Buffer) push(c model.Candle) {
	if b.n < len(b.buf) {
		b.buf[b.index(b.n)] = c
		b.n++
	} else {
		b.buf[b.head] = c
		b.head = (b.head + 1) % len(b.buf)
		b.evicted++
	}
	b.version++
}

func (b *Buffer) index(i int) int {
	return (b.head + i) % len(b.buf)
}

func ascending(candles []model.Candle) bool {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return false
		}
	}
	return true
}
