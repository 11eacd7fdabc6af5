package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetMissingReturnsFalse(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "weather", "units")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryPutThenGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "weather", "units", "metric"))

	v, ok, err := m.Get(ctx, "weather", "units")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "metric", v)
}

func TestMemoryIteratePerPlugin(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, "weather", "units", "metric")
	_ = m.Put(ctx, "weather", "interval", "30")
	_ = m.Put(ctx, "clock", "format", "24h")

	seen := map[string]string{}
	require.NoError(t, m.Iterate(ctx, "weather", func(k, v string) bool {
		seen[k] = v
		return true
	}))
	require.Equal(t, map[string]string{"units": "metric", "interval": "30"}, seen)
}

func TestMemoryIterateStopsEarly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, "weather", "a", "1")
	_ = m.Put(ctx, "weather", "b", "2")

	count := 0
	require.NoError(t, m.Iterate(ctx, "weather", func(k, v string) bool {
		count++
		return false
	}))
	require.Equal(t, 1, count)
}

func TestMemoryFlushAndCloseAreNoops(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Flush(context.Background()))
	require.NoError(t, m.Close())
}
