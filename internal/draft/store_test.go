package draft

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, ttl, zerolog.Nop()), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()
	key := Key{StudentID: 7, QuestionID: 3}

	_, found, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Save(ctx, key, "print(1)"))
	require.NoError(t, store.Save(ctx, key, "print(2)"))

	code, found, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "print(2)", code)
	require.True(t, mr.Exists("draft:7:3"))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, found, err = store.Load(ctx, key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreEmptyDraftIsStillFound(t *testing.T) {
	store, _ := newTestStore(t, 0)
	key := Key{StudentID: 1, QuestionID: 1}

	require.NoError(t, store.Save(context.Background(), key, ""))

	code, found, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, code)
}

func TestRedisStoreExpiresDrafts(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	key := Key{StudentID: 2, QuestionID: 9}

	require.NoError(t, store.Save(context.Background(), key, "x"))
	mr.FastForward(2 * time.Hour)

	_, found, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisStoreRejectsIncompleteKeys(t *testing.T) {
	store, _ := newTestStore(t, 0)

	require.ErrorIs(t, store.Save(context.Background(), Key{QuestionID: 1}, "x"), ErrInvalidKey)
	_, _, err := store.Load(context.Background(), Key{StudentID: 1})
	require.ErrorIs(t, err, ErrInvalidKey)
}
