package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in redis. The entry envelope carries its own
// expiry in addition to the redis TTL, so the read-time expiry check still
// holds if the server evicts lazily.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisStoreOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "cache",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = entry.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}
	if err := s.rdb.Set(ctx, s.prefix+":"+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
