package bloom

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"firefly-live/internal/cache"
)

const testKey = "bf:test"

func TestOffsetDeterministic(t *testing.T) {
	f := New(cache.NewMemory(), 0)
	for _, seed := range seeds {
		a := f.offset("4217", seed)
		b := f.offset("4217", seed)
		require.Equal(t, a, b)
		require.GreaterOrEqual(t, a, int64(0))
		require.Less(t, a, f.bitSize)
	}
}

func TestPutThenMightContain(t *testing.T) {
	ctx := context.Background()
	f := New(cache.NewMemory(), 0)

	ok, err := f.MightContain(ctx, testKey, "42")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.Put(ctx, testKey, "42"))

	ok, err = f.MightContain(ctx, testKey, "42")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNoFalseNegatives(t *testing.T) {
	ctx := context.Background()
	f := New(cache.NewMemory(), 0)

	for i := 0; i < 500; i++ {
		require.NoError(t, f.Put(ctx, testKey, fmt.Sprintf("video-%d", i)))
	}
	for i := 0; i < 500; i++ {
		ok, err := f.MightContain(ctx, testKey, fmt.Sprintf("video-%d", i))
		require.NoError(t, err)
		require.True(t, ok, "element video-%d must never be a false negative", i)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := New(cache.NewMemory(), 0)

	require.NoError(t, f.Put(ctx, testKey, "7"))
	require.NoError(t, f.Put(ctx, testKey, "7"))

	ok, err := f.MightContain(ctx, testKey, "7")
	require.NoError(t, err)
	require.True(t, ok)
}
