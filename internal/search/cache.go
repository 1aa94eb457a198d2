package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
)

// DefaultSearchTTL is how long a fan-out result stays cached.
const DefaultSearchTTL = 5 * time.Minute

// CachingDispatcher serves repeated plans from the cache store. Cache
// failures degrade to a direct dispatch.
type CachingDispatcher struct {
	next   Dispatcher
	cache  domain.CacheStore
	ttl    time.Duration
	logger *slog.Logger
}

var _ Dispatcher = (*CachingDispatcher)(nil)

// NewCachingDispatcher wraps next with a result cache.
func NewCachingDispatcher(next Dispatcher, cache domain.CacheStore, ttl time.Duration, logger *slog.Logger) *CachingDispatcher {
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &CachingDispatcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "search_cache")),
	}
}

// CacheKey derives the cache key of a plan from its keywords, category,
// price bounds and market restriction.
func CacheKey(plan Plan) string {
	var b strings.Builder
	b.WriteString(strings.Join(plan.Keywords, ","))
	b.WriteByte('|')
	b.WriteString(string(plan.Category))
	b.WriteByte('|')
	writeBound(&b, plan.MinPrice)
	b.WriteByte('|')
	writeBound(&b, plan.MaxPrice)
	b.WriteByte('|')
	markets := make([]string, len(plan.Markets))
	for i, m := range plan.Markets {
		markets[i] = string(m)
	}
	slices.Sort(markets)
	b.WriteString(strings.Join(markets, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return "search:" + hex.EncodeToString(sum[:])
}

func writeBound(b *strings.Builder, v *float64) {
	if v != nil {
		fmt.Fprintf(b, "%.2f", *v)
	}
}

// Dispatch returns the cached result for plan when present. Otherwise it
// dispatches and caches non-empty results from fan-outs where every
// market answered.
func (c *CachingDispatcher) Dispatch(ctx context.Context, plan Plan) Result {
	key := CacheKey(plan)

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var products []domain.RawProduct
		uerr := json.Unmarshal(data, &products)
		if uerr == nil {
			metrics.SearchCacheLookups.WithLabelValues("hit").Inc()
			return resultFromProducts(products)
		}
		c.logger.WarnContext(ctx, "discarding unreadable cached search", slog.String("error", uerr.Error()))
		metrics.SearchCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, domain.ErrNotFound):
		metrics.SearchCacheLookups.WithLabelValues("miss").Inc()
	default:
		c.logger.WarnContext(ctx, "search cache read failed", slog.String("error", err.Error()))
		metrics.SearchCacheLookups.WithLabelValues("error").Inc()
	}

	res := c.next.Dispatch(ctx, plan)
	if res.Empty() || len(res.Failed) > 0 {
		return res
	}

	payload, err := json.Marshal(res.Products)
	if err != nil {
		c.logger.WarnContext(ctx, "encode search result", slog.String("error", err.Error()))
		return res
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "search cache write failed", slog.String("error", err.Error()))
	}
	return res
}

func resultFromProducts(products []domain.RawProduct) Result {
	res := Result{
		Products: products,
		ByMarket: make(map[domain.MarketType][]domain.RawProduct),
		Cached:   true,
	}
	for _, p := range products {
		res.ByMarket[p.Market] = append(res.ByMarket[p.Market], p)
	}
	return res
}
