package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

const marketCacheTTL = 24 * time.Hour

var marketNames = map[domain.MarketType]string{
	domain.MarketAmazon:         "Amazon",
	domain.MarketWalmart:        "Walmart",
	domain.MarketEbay:           "eBay",
	domain.MarketGoogleShopping: "Google Shopping",
}

// MarketService resolves marketplace types to their stored reference rows,
// creating rows on first use.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.CacheStore
	logger  *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(markets domain.MarketStore, cache domain.CacheStore, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

func marketCacheKey(t domain.MarketType) string {
	return "market:" + string(t)
}

// Resolve returns the market row for t. Concurrent first uses converge on
// one row: the loser of the create race re-reads the winner's.
func (s *MarketService) Resolve(ctx context.Context, t domain.MarketType) (domain.Market, error) {
	if !t.Valid() {
		return domain.Market{}, fmt.Errorf("market_service: resolve %q: %w", t, domain.ErrInvalidRequest)
	}

	// Try the cache first.
	if data, err := s.cache.Get(ctx, marketCacheKey(t)); err == nil {
		var m domain.Market
		if json.Unmarshal(data, &m) == nil && m.ID != "" {
			return m, nil
		}
	}

	m, err := s.markets.GetByType(ctx, t)
	if errors.Is(err, domain.ErrNotFound) {
		m, err = s.markets.Create(ctx, domain.Market{Type: t, Name: displayName(t), Active: true})
		if errors.Is(err, domain.ErrAlreadyExists) {
			m, err = s.markets.GetByType(ctx, t)
		}
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %q: %w", t, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if data, merr := json.Marshal(m); merr == nil {
		if cacheErr := s.cache.Set(ctx, marketCacheKey(t), data, marketCacheTTL); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market", string(t)),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListActive returns active markets directly from the persistent store.
func (s *MarketService) ListActive(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

func displayName(t domain.MarketType) string {
	if n, ok := marketNames[t]; ok {
		return n
	}
	return strings.ReplaceAll(string(t), "_", " ")
}
