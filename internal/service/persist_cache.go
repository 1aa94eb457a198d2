package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// Default cache TTLs of persisted deals.
const (
	DefaultDealCacheTTL  = time.Hour
	DefaultBasicCacheTTL = 2 * time.Hour
)

// DealCacheKey is the cache key of a deal's full payload.
func DealCacheKey(id string) string { return "deal:" + id }

// DealBasicCacheKey is the cache key of a deal's compact projection.
func DealBasicCacheKey(id string) string { return "deal:basic:" + id }

// CachingPersister writes persisted deals through to the cache and
// announces new ones on the event bus. Cache and bus failures are logged
// and never fail the persist.
type CachingPersister struct {
	next     Persister
	cache    domain.CacheStore
	bus      domain.EventBus
	dealTTL  time.Duration
	basicTTL time.Duration
	logger   *slog.Logger
}

var _ Persister = (*CachingPersister)(nil)

// NewCachingPersister wraps next. bus may be nil.
func NewCachingPersister(next Persister, cache domain.CacheStore, bus domain.EventBus, dealTTL, basicTTL time.Duration, logger *slog.Logger) *CachingPersister {
	if dealTTL <= 0 {
		dealTTL = DefaultDealCacheTTL
	}
	if basicTTL <= 0 {
		basicTTL = DefaultBasicCacheTTL
	}
	return &CachingPersister{
		next:     next,
		cache:    cache,
		bus:      bus,
		dealTTL:  dealTTL,
		basicTTL: basicTTL,
		logger:   logger,
	}
}

// Persist delegates and then caches the result.
func (c *CachingPersister) Persist(ctx context.Context, cand domain.ScoredCandidate, scope Scope) (PersistResult, error) {
	res, err := c.next.Persist(ctx, cand, scope)
	if err != nil {
		return res, err
	}

	CacheDeal(ctx, c.cache, res.Deal, c.dealTTL, c.basicTTL, c.logger)

	if res.Created && c.bus != nil {
		evt := domain.DealEvent{
			Type:   "discovered",
			Deal:   res.Deal.Basic(),
			UserID: res.Deal.UserID,
			GoalID: res.Deal.GoalKey(),
			At:     res.Deal.FoundAt,
		}
		PublishDealEvent(ctx, c.bus, domain.ChannelDealDiscovered, evt, c.logger)
	}
	return res, nil
}

// CacheDeal writes both cached projections of d.
func CacheDeal(ctx context.Context, cache domain.CacheStore, d domain.Deal, dealTTL, basicTTL time.Duration, logger *slog.Logger) {
	write := func(key string, v any, ttl time.Duration) {
		data, err := json.Marshal(v)
		if err != nil {
			logger.WarnContext(ctx, "deal cache: encode failed", slog.String("key", key), slog.String("error", err.Error()))
			return
		}
		if err := cache.Set(ctx, key, data, ttl); err != nil {
			logger.WarnContext(ctx, "deal cache: set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	write(DealCacheKey(d.ID), d, dealTTL)
	write(DealBasicCacheKey(d.ID), d.Basic(), basicTTL)
}

// PublishDealEvent publishes evt on channel, logging failures.
func PublishDealEvent(ctx context.Context, bus domain.EventBus, channel string, evt domain.DealEvent, logger *slog.Logger) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WarnContext(ctx, "deal event: encode failed", slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "deal event: publish failed",
			slog.String("channel", channel),
			slog.String("deal_id", evt.Deal.ID),
			slog.String("error", err.Error()),
		)
	}
}
