// Package memory implements the domain cache interfaces in process with
// patrickmn/go-cache. It backs single-replica deployments and tests.
package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

const cleanupInterval = time.Minute

// CacheStore implements domain.CacheStore over go-cache.
type CacheStore struct {
	c *cache.Cache
}

// NewCacheStore creates an empty CacheStore.
func NewCacheStore() *CacheStore {
	return &CacheStore{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

// Get returns a copy of the stored value or domain.ErrNotFound.
func (s *CacheStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	b := v.([]byte)
	return append([]byte(nil), b...), nil
}

// Set stores a copy of value under key.
func (s *CacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.c.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// Expire resets the TTL of an existing key.
func (s *CacheStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	v, ok := s.c.Get(key)
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.c.Replace(key, v, expiration(ttl)); err != nil {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes key.
func (s *CacheStore) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

var _ domain.CacheStore = (*CacheStore)(nil)
