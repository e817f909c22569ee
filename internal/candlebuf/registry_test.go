package candlebuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/model"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(10)

	_, ok := r.Get(testKey)
	assert.False(t, ok)

	b := r.GetOrCreate(testKey)
	require.NotNil(t, b)
	assert.Same(t, b, r.GetOrCreate(testKey))
	assert.Equal(t, 10, b.Cap())

	b.AppendOrUpdate(at(1, 1, true))
	fresh := r.Replace(testKey)
	assert.NotSame(t, b, fresh)
	assert.Equal(t, 0, fresh.Len())
	assert.Equal(t, 1, b.Len(), "detached buffer stays readable")

	eth := model.Key{Symbol: "ETHUSDT", Interval: "5m"}
	r.GetOrCreate(eth)
	assert.Equal(t, []model.Key{testKey, eth}, r.Keys())
}
