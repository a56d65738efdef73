package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, time.Minute), mr
}

func TestVersionedFetchJSONCachesLoaderResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key, err := c.BuildKey(ctx, "dashboard")
	require.NoError(t, err)
	require.Equal(t, "payables:reports:dashboard:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"pending": 3}, nil
	}
	var first, second map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 3, second["pending"])
}

func TestVersionedBumpChangesKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	before, err := c.BuildKey(ctx, "aging", "2024-01-31")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, "aging", "2024-01-31")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Equal(t, "payables:reports:aging:2024-01-31:v2", after)
}

func TestVersionedLoaderErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("boom")
	var out map[string]int
	err := c.FetchJSON(ctx, "k", &out, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("k"))
}

func TestVersionedNilClientCallsLoader(t *testing.T) {
	c := NewVersioned(nil, 0)
	var out []string
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	}))
	require.Equal(t, []string{"a"}, out)
	require.NoError(t, c.Bump(context.Background()))
}
