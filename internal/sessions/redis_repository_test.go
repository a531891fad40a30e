package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_PutGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:")
	ctx := context.Background()

	rec := &Record{
		SessionID:  "sid-1",
		Collection: "users",
		Key:        "a@x.com",
		Password:   "pw1",
		ExpiresAt:  time.Now().UTC().Add(5 * time.Second),
	}
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "sid-1", "users")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "a@x.com", got.Key)
	require.Equal(t, "pw1", got.Password)

	// different collection under the same session id is separate
	none, err := repo.Get(ctx, "sid-1", "admins")
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, repo.Delete(ctx, "sid-1", "users"))
	got2, err := repo.Get(ctx, "sid-1", "users")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:")
	ctx := context.Background()

	rec := &Record{
		SessionID:  "sid-2",
		Collection: "users",
		Key:        "b@x.com",
		Password:   "pw2",
		ExpiresAt:  time.Now().UTC().Add(1 * time.Second),
	}
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "sid-2", "users")
	require.NoError(t, err)
	require.NotNil(t, got)

	m.FastForward(2 * time.Second)

	got2, err := repo.Get(ctx, "sid-2", "users")
	require.NoError(t, err)
	require.Nil(t, got2)
}
