package reverify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const usedKeyPrefix = "reverify:used:"

// RedisUsedStore shares consumed proof ids across instances.
type RedisUsedStore struct {
	cache *redis.Client
}

// NewRedisUsedStore builds a Redis-backed UsedStore.
func NewRedisUsedStore(cache *redis.Client) *RedisUsedStore {
	return &RedisUsedStore{cache: cache}
}

// MarkUsed sets the key only if absent, so exactly one caller wins.
func (s *RedisUsedStore) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return s.cache.SetNX(ctx, usedKeyPrefix+jti, 1, ttl).Result()
}

// MemoryUsedStore is a single-process UsedStore for development and tests.
type MemoryUsedStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

// NewMemoryUsedStore builds an in-memory UsedStore.
func NewMemoryUsedStore() *MemoryUsedStore {
	return &MemoryUsedStore{used: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryUsedStore) MarkUsed(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.used {
		if now.After(exp) {
			delete(s.used, id)
		}
	}
	if _, ok := s.used[jti]; ok {
		return false, nil
	}
	s.used[jti] = now.Add(ttl)
	return true, nil
}
