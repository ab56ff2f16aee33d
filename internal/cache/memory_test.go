package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", val)

	require.NoError(t, m.Del(ctx, "k", "missing"))
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now()
	m.now = func() time.Time { return base }

	require.NoError(t, m.Set(ctx, "k", "v", 2*time.Minute))

	base = base.Add(time.Minute)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	base = base.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	on, err := m.GetBit(ctx, "bf", 42)
	require.NoError(t, err)
	require.False(t, on)

	require.NoError(t, m.SetBit(ctx, "bf", 42))
	on, err = m.GetBit(ctx, "bf", 42)
	require.NoError(t, err)
	require.True(t, on)

	on, err = m.GetBit(ctx, "bf", 43)
	require.NoError(t, err)
	require.False(t, on)
}
