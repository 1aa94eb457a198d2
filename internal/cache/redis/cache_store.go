package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CacheStore implements domain.CacheStore with plain Redis strings.
//
// Key schema (before the client prefix):
//
//	search:{sha256}   - serialized raw search results
//	deal:{id}         - full deal payload
//	deal:basic:{id}   - compact deal projection
//	analysis:{id}     - analysis result
//	market:{type}     - resolved market reference
type CacheStore struct {
	c *Client
}

// NewCacheStore creates a CacheStore backed by the given Client.
func NewCacheStore(c *Client) *CacheStore {
	return &CacheStore{c: c}
}

// Get returns the value stored under key, or domain.ErrNotFound.
func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.c.rdb.Get(ctx, s.c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.c.rdb.Set(ctx, s.c.Key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Expire resets the TTL of an existing key. It returns domain.ErrNotFound
// when the key does not exist.
func (s *CacheStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.c.rdb.Expire(ctx, s.c.Key(key), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: expire %s: %w", key, err)
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if err := s.c.rdb.Del(ctx, s.c.Key(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CacheStore = (*CacheStore)(nil)
