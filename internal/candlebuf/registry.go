package candlebuf

import (
	"sort"
	"sync"

	"signalbot/internal/model"
)

// Registry owns one Buffer per key. Buffers of keys that are no longer
// streamed stay readable until replaced.
type Registry struct {
	capacity int

	mu   sync.RWMutex
	bufs map[model.Key]*Buffer
}

// NewRegistry creates an empty registry whose buffers hold capacity candles.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		bufs:     make(map[model.Key]*Buffer),
	}
}

// Get returns the buffer for key, if any.
func (r *Registry) Get(key model.Key) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bufs[key]
	return b, ok
}

// GetOrCreate returns the buffer for key, creating an empty one if needed.
func (r *Registry) GetOrCreate(key model.Key) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bufs[key]
	if !ok {
		b = New(key, r.capacity)
		r.bufs[key] = b
	}
	return b
}

// Replace installs a fresh empty buffer for key and returns it. Holders of
// the previous buffer keep a valid but detached window.
func (r *Registry) Replace(key model.Key) *Buffer {
	b := New(key, r.capacity)
	r.mu.Lock()
	r.bufs[key] = b
	r.mu.Unlock()
	return b
}

// Keys returns all known keys in a stable order.
func (r *Registry) Keys() []model.Key {
	r.mu.RLock()
	keys := make([]model.Key, 0, len(r.bufs))
	for k := range r.bufs {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
