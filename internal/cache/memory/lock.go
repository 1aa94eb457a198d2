package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// LockManager implements domain.LockManager within one process. Locks
// expire after their TTL like their Redis counterparts.
type LockManager struct {
	mu    sync.Mutex
	locks *cache.Cache
}

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	if err := lm.locks.Add(key, token, expiration(ttl)); err != nil {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if v, ok := lm.locks.Get(key); ok && v.(string) == token {
				lm.locks.Delete(key)
			}
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
