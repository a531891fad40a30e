package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores session records as JSON under
// "<prefix><sessionID>:<collection>" with TTL = expiresAt - now.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(sessionID, collection string) string {
	return r.prefix + sessionID + ":" + collection
}

func (r *RedisRepository) Put(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// never store an already-expired record without a TTL
		ttl = time.Second
	}
	return r.client.Set(ctx, r.key(rec.SessionID, rec.Collection), b, ttl).Err()
}

func (r *RedisRepository) Get(ctx context.Context, sessionID, collection string) (*Record, error) {
	b, err := r.client.Get(ctx, r.key(sessionID, collection)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		_ = r.client.Del(ctx, r.key(sessionID, collection)).Err()
		return nil, nil
	}
	return &rec, nil
}

func (r *RedisRepository) Delete(ctx context.Context, sessionID, collection string) error {
	return r.client.Del(ctx, r.key(sessionID, collection)).Err()
}
