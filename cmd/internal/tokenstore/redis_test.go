package tokenstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, prefix string) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), RedisOptions{
		Addr:   mr.Addr(),
		Prefix: prefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, "teamdash:test:")

	t.Run("LoadEmpty", func(t *testing.T) {
		p, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.True(t, p.Empty())
	})

	t.Run("SaveWritesBothKeys", func(t *testing.T) {
		err := store.Save(ctx, Pair{Access: "A1", Refresh: "R1"})
		require.NoError(t, err)

		access, err := mr.Get("teamdash:test:accessToken")
		require.NoError(t, err)
		assert.Equal(t, "A1", access)

		refresh, err := mr.Get("teamdash:test:refreshToken")
		require.NoError(t, err)
		assert.Equal(t, "R1", refresh)

		p, err := store.Load(ctx)
		assert.NoError(t, err)
		assert.Equal(t, Pair{Access: "A1", Refresh: "R1"}, p)
	})

	t.Run("PartialPairRejected", func(t *testing.T) {
		err := store.Save(ctx, Pair{Refresh: "R2"})
		assert.ErrorIs(t, err, ErrPartialPair)

		p, _ := store.Load(ctx)
		assert.Equal(t, "A1", p.Access)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		assert.False(t, mr.Exists("teamdash:test:accessToken"))
		assert.False(t, mr.Exists("teamdash:test:refreshToken"))
		require.NoError(t, store.Clear(ctx))
	})
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "a:")
	b := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "b:")
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Save(ctx, Pair{Access: "A", Refresh: "R"}))

	p, err := b.Load(ctx)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), RedisOptions{})
	assert.ErrorIs(t, err, ErrConfig)
}
