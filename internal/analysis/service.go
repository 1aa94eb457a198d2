package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
)

// Defaults of the analysis service.
const (
	DefaultCacheTTL = time.Hour
	historyLimit    = 90
	comparableLimit = 50
)

// CacheKey is the cache key of a deal's analysis.
func CacheKey(dealID string) string { return "analysis:" + dealID }

// Service loads a deal's inputs, scores it and caches the result.
type Service struct {
	scorer *Scorer
	deals  domain.DealStore
	prices domain.PriceStore
	goals  domain.GoalStore
	cache  domain.CacheStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an analysis Service. A zero ttl uses DefaultCacheTTL.
func NewService(
	deals domain.DealStore,
	prices domain.PriceStore,
	goals domain.GoalStore,
	cache domain.CacheStore,
	ttl time.Duration,
	logger *slog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		scorer: NewScorer(),
		deals:  deals,
		prices: prices,
		goals:  goals,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "analysis")),
	}
}

// Analyze returns the analysis of a deal, from cache when fresh. Only an
// unknown deal is an error; every other failure degrades the result.
func (s *Service) Analyze(ctx context.Context, dealID string) (domain.AnalysisResult, error) {
	start := time.Now()
	defer func() { metrics.AnalysisDuration.Observe(time.Since(start).Seconds()) }()

	key := CacheKey(dealID)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var cached domain.AnalysisResult
		if json.Unmarshal(data, &cached) == nil && cached.DealID == dealID {
			return cached, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "analysis cache read failed", slog.String("error", err.Error()))
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AnalysisResult{}, fmt.Errorf("analysis: deal %q: %w", dealID, err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "analysis: load deal failed",
			slog.String("deal_id", dealID),
			slog.String("error", err.Error()),
		)
		return Unanalyzable(dealID, s.now(), nil), nil
	}

	res, ok := s.score(ctx, deal)
	if !ok {
		return res, nil
	}

	if res.Score > 0 {
		score := res.Score
		if _, err := s.deals.Update(ctx, deal.ID, domain.DealUpdate{Score: &score}); err != nil {
			s.logger.WarnContext(ctx, "analysis: score write-back failed",
				slog.String("deal_id", deal.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if data, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.WarnContext(ctx, "analysis cache write failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// score reports false when it fell back to an unanalyzable result, which
// must not be cached.
func (s *Service) score(ctx context.Context, deal domain.Deal) (res domain.AnalysisResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "analysis panicked",
				slog.String("deal_id", deal.ID),
				slog.Any("panic", r),
			)
			res, ok = Unanalyzable(deal.ID, s.now(), nil), false
		}
	}()

	history, err := s.prices.History(ctx, deal.ID, historyLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "analysis: price history unavailable",
			slog.String("deal_id", deal.ID),
			slog.String("error", err.Error()),
		)
		history = nil
	}

	comps, err := s.deals.ListComparables(ctx, deal, comparableLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "analysis: comparables unavailable",
			slog.String("deal_id", deal.ID),
			slog.String("error", err.Error()),
		)
		comps = nil
	}

	var goal *domain.Goal
	if deal.GoalID != nil {
		g, err := s.goals.GetByID(ctx, *deal.GoalID)
		if err == nil {
			goal = &g
		} else {
			s.logger.WarnContext(ctx, "analysis: goal unavailable",
				slog.String("goal_id", *deal.GoalID),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.scorer.Score(Input{
		Deal:        deal,
		History:     history,
		Comparables: comps,
		Goal:        goal,
		Now:         s.now(),
	}), true
}
