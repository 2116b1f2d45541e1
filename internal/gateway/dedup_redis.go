package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupStore tracks fingerprints in redis so parallel instances behind
// the same delivery endpoint share one dedup window. SET NX doubles as the
// check and the record in a single round trip.
type RedisDedupStore struct {
	rdb *redis.Client
}

func NewRedisDedupStore(rdb *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{rdb: rdb}
}

func (s *RedisDedupStore) Seen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	acquired, err := s.rdb.SetNX(ctx, fingerprint, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !acquired, nil
}
