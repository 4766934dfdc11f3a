package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyTTL is how long a key suppresses duplicates.
const DefaultIdempotencyTTL = 300 * time.Second

// DefaultIdempotencyMaxKeys bounds the in-memory store.
const DefaultIdempotencyMaxKeys = 10_000

// IdempotencyStore deduplicates dispatches. RecordIfNew atomically checks
// and records a key; it returns true exactly once per key per TTL window.
// Keys are namespaced per hook family by the caller.
type IdempotencyStore interface {
	RecordIfNew(ctx context.Context, family, key string) (bool, error)
}

// MemoryIdempotencyStore is a bounded in-process store. When full, the
// oldest key is evicted to make room.
type MemoryIdempotencyStore struct {
	ttl     time.Duration
	maxKeys int

	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryIdempotencyStore creates a store with the given TTL and capacity.
// Non-positive arguments fall back to the defaults.
func NewMemoryIdempotencyStore(ttl time.Duration, maxKeys int) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if maxKeys <= 0 {
		maxKeys = DefaultIdempotencyMaxKeys
	}

	return &MemoryIdempotencyStore{
		ttl:     ttl,
		maxKeys: maxKeys,
		keys:    make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) RecordIfNew(_ context.Context, family, key string) (bool, error) {
	scoped := family + ":" + key
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, seenAt := range s.keys {
		if now.Sub(seenAt) >= s.ttl {
			delete(s.keys, k)
		}
	}

	if _, seen := s.keys[scoped]; seen {
		return false, nil
	}

	if len(s.keys) >= s.maxKeys {
		var oldestKey string
		var oldestAt time.Time
		for k, seenAt := range s.keys {
			if oldestKey == "" || seenAt.Before(oldestAt) {
				oldestKey, oldestAt = k, seenAt
			}
		}
		delete(s.keys, oldestKey)
	}

	s.keys[scoped] = now

	return true, nil
}

// RedisIdempotencyStore backs deduplication with Redis so that multiple
// dispatcher instances share one key space. SET NX gives the atomic
// check-and-record; Redis expiry replaces manual eviction.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed store.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) RecordIfNew(ctx context.Context, family, key string) (bool, error) {
	return s.client.SetNX(ctx, "runbookd:idempotency:"+family+":"+key, "1", s.ttl).Result()
}
