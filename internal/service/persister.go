package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
	"github.com/alanyoungcy/dealscout/internal/search"
)

// DefaultDealTTL is how long a discovered deal stays active before the
// monitor expires it.
const DefaultDealTTL = 7 * 24 * time.Hour

const (
	defaultCurrency     = "USD"
	defaultAvailability = "in_stock"
)

// Scope is who a candidate is persisted for. A nil GoalID persists an
// ad-hoc search result.
type Scope struct {
	UserID string
	GoalID *string
	// Category is used when the candidate carries none.
	Category domain.Category
}

// PersistResult reports the stored deal and whether this call created it.
type PersistResult struct {
	Deal    domain.Deal
	Created bool
}

// Persister turns scored candidates into stored deals exactly once per
// (url, goal) pair.
type Persister interface {
	Persist(ctx context.Context, cand domain.ScoredCandidate, scope Scope) (PersistResult, error)
}

// DealPersister is the store-backed Persister.
type DealPersister struct {
	deals   domain.DealStore
	prices  domain.PriceStore
	markets *MarketService
	dealTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

var _ Persister = (*DealPersister)(nil)

// NewDealPersister creates a DealPersister. A zero dealTTL uses
// DefaultDealTTL.
func NewDealPersister(
	deals domain.DealStore,
	prices domain.PriceStore,
	markets *MarketService,
	dealTTL time.Duration,
	logger *slog.Logger,
) *DealPersister {
	if dealTTL <= 0 {
		dealTTL = DefaultDealTTL
	}
	return &DealPersister{
		deals:   deals,
		prices:  prices,
		markets: markets,
		dealTTL: dealTTL,
		now:     time.Now,
		logger:  logger,
	}
}

// Persist returns the existing deal for the candidate, or creates it. An
// existing deal is never modified.
func (p *DealPersister) Persist(ctx context.Context, cand domain.ScoredCandidate, scope Scope) (PersistResult, error) {
	res, err := p.persist(ctx, cand, scope)
	switch {
	case err != nil:
		metrics.DealsPersisted.WithLabelValues("error").Inc()
	case res.Created:
		metrics.DealsPersisted.WithLabelValues("created").Inc()
	default:
		metrics.DealsPersisted.WithLabelValues("existing").Inc()
	}
	return res, err
}

func (p *DealPersister) persist(ctx context.Context, cand domain.ScoredCandidate, scope Scope) (PersistResult, error) {
	if cand.URL == "" || cand.Title == "" || cand.Price <= 0 {
		return PersistResult{}, fmt.Errorf("persister: candidate %q: %w", cand.URL, domain.ErrInvalidRequest)
	}

	market, err := p.markets.Resolve(ctx, cand.Market)
	if err != nil {
		return PersistResult{}, fmt.Errorf("persister: %w", err)
	}

	existing, err := p.deals.GetByURLAndGoal(ctx, cand.URL, scope.GoalID)
	if err == nil {
		return PersistResult{Deal: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return PersistResult{}, fmt.Errorf("persister: lookup by url: %w", err)
	}

	if cand.ExternalID != "" {
		existing, err = p.deals.GetByExternalID(ctx, cand.ExternalID, market.ID)
		switch {
		case err == nil && existing.GoalKey() == goalKey(scope.GoalID):
			return PersistResult{Deal: existing}, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return PersistResult{}, fmt.Errorf("persister: lookup by external id: %w", err)
		}
	}

	deal := p.build(cand, scope, market)
	created, err := p.deals.Create(ctx, deal)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost the race to a concurrent discovery of the same listing.
		existing, gerr := p.deals.GetByURLAndGoal(ctx, cand.URL, scope.GoalID)
		if gerr != nil {
			return PersistResult{}, fmt.Errorf("persister: re-fetch after conflict: %w", gerr)
		}
		return PersistResult{Deal: existing}, nil
	}
	if err != nil {
		return PersistResult{}, fmt.Errorf("persister: create: %w", err)
	}

	point := domain.PricePoint{
		ID:        uuid.NewString(),
		DealID:    created.ID,
		Price:     created.Price,
		Currency:  created.Currency,
		Source:    created.Source,
		Timestamp: created.FoundAt,
	}
	if err := p.prices.Append(ctx, point); err != nil {
		p.logger.ErrorContext(ctx, "persister: initial price point failed",
			slog.String("deal_id", created.ID),
			slog.String("error", err.Error()),
		)
	}

	return PersistResult{Deal: created, Created: true}, nil
}

func (p *DealPersister) build(cand domain.ScoredCandidate, scope Scope, market domain.Market) domain.Deal {
	now := p.now().UTC()
	expires := now.Add(p.dealTTL)

	category := scope.Category
	if cand.Category != "" || category == "" {
		category = domain.MapCategory(cand.Category)
	}

	var original *float64
	if cand.OriginalPrice > cand.Price {
		v := cand.OriginalPrice
		original = &v
	}

	seller := domain.SellerInfo{Name: cand.Seller, Rating: cand.Rating, ReviewCount: cand.ReviewCount}
	if seller.Name == "" {
		seller.Name = domain.UnknownSeller
	}

	currency := cand.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	availability := cand.Availability
	if availability == "" {
		availability = defaultAvailability
	}

	meta := make(map[string]any, len(cand.Metadata)+3)
	maps.Copy(meta, cand.Metadata)
	meta["relevance_score"] = cand.RelevanceScore
	if len(cand.ScoreReasons) > 0 {
		meta["score_reasons"] = cand.ScoreReasons
	}
	if cand.Brand != "" {
		meta["brand"] = cand.Brand
	}

	return domain.Deal{
		ID:            uuid.NewString(),
		UserID:        scope.UserID,
		GoalID:        cloneString(scope.GoalID),
		MarketID:      market.ID,
		ExternalID:    cand.ExternalID,
		Title:         cand.Title,
		Description:   cand.Description,
		URL:           cand.URL,
		ImageURL:      cand.ImageURL,
		Price:         cand.Price,
		OriginalPrice: original,
		Currency:      currency,
		Source:        cand.Market,
		Category:      category,
		Seller:        seller,
		Availability:  availability,
		Status:        domain.DealStatusActive,
		FoundAt:       now,
		ExpiresAt:     &expires,
		LastCheckedAt: now,
		Metadata:      meta,
		Score:         math.Round(cand.RelevanceScore/search.MaxRelevance*1000) / 10,
	}
}

// PersistAll persists every candidate in order. Failures are logged and
// skipped so one bad listing cannot fail the batch.
func PersistAll(ctx context.Context, p Persister, cands []domain.ScoredCandidate, scope Scope, logger *slog.Logger) []PersistResult {
	out := make([]PersistResult, 0, len(cands))
	for _, c := range cands {
		res, err := p.Persist(ctx, c, scope)
		if err != nil {
			logger.ErrorContext(ctx, "persist candidate failed",
				slog.String("url", c.URL),
				slog.String("market", string(c.Market)),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, res)
	}
	return out
}

func goalKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
