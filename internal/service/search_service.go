package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/textmatch"
)

// DefaultPageSize applies when a search request carries no limit.
const DefaultPageSize = 20

// SearchConfig tunes the SearchService.
type SearchConfig struct {
	// Realtime enables live marketplace discovery when stored deals cannot
	// fill the requested page.
	Realtime     bool
	MaxResults   int
	DefaultLimit int
	DealTTL      time.Duration
	BasicTTL     time.Duration
}

// SearchService answers ad-hoc deal searches from stored deals, topping up
// with live discovery.
type SearchService struct {
	validate   *validator.Validate
	deals      domain.DealStore
	cache      domain.CacheStore
	planner    *search.Planner
	dispatcher search.Dispatcher
	persister  Persister
	cfg        SearchConfig
	logger     *slog.Logger
}

// NewSearchService creates a SearchService with all required dependencies.
func NewSearchService(
	deals domain.DealStore,
	cache domain.CacheStore,
	planner *search.Planner,
	dispatcher search.Dispatcher,
	persister Persister,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchService {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = search.DefaultMaxResults
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultPageSize
	}
	if cfg.DealTTL <= 0 {
		cfg.DealTTL = DefaultDealCacheTTL
	}
	if cfg.BasicTTL <= 0 {
		cfg.BasicTTL = DefaultBasicCacheTTL
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &SearchService{
		validate:   v,
		deals:      deals,
		cache:      cache,
		planner:    planner,
		dispatcher: dispatcher,
		persister:  persister,
		cfg:        cfg,
		logger:     logger,
	}
}

// Validate normalises defaults on req and reports every rejected field.
func (s *SearchService) Validate(req *domain.SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Limit == 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Sort == "" {
		req.Sort = domain.SortRelevance
	}

	var fields []string
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("search_service: validate: %w", err)
		}
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		fields = append(fields, "min_price: must not exceed max_price")
	}

	var catErr error
	if req.Category != "" {
		if _, catErr = domain.ParseCategory(req.Category); catErr != nil {
			fields = append(fields, "category: unknown")
		}
	}

	if len(fields) == 0 {
		return nil
	}
	verr := &domain.ValidationError{Fields: fields}
	if catErr != nil {
		return fmt.Errorf("%w: %w", verr, catErr)
	}
	return verr
}

// Search runs one ad-hoc search.
func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	if err := s.Validate(&req); err != nil {
		return domain.SearchResponse{}, err
	}

	var category domain.Category
	if req.Category != "" {
		category, _ = domain.ParseCategory(req.Category)
	}
	markets := lo.Map(req.MarketIDs, func(id string, _ int) domain.MarketType { return domain.MarketType(id) })
	want := req.Offset + req.Limit

	stored, total, err := s.deals.Search(ctx, domain.DealQuery{
		Keywords:       textmatch.Keywords(req.Query),
		Category:       category,
		MinPrice:       req.MinPrice,
		MaxPrice:       req.MaxPrice,
		Markets:        markets,
		IncludeExpired: req.IncludeExpired,
		Limit:          want,
	})
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("search_service: stored deals: %w", err)
	}

	plan := s.planner.Plan(search.PlanInput{
		Query:    req.Query,
		Category: req.Category,
		MinPrice: req.MinPrice,
		MaxPrice: req.MaxPrice,
		Brands:   req.Brands,
		Features: req.Features,
		Markets:  markets,
	})
	criteria := search.CriteriaFromPlan(plan)
	criteria.MaxResults = s.cfg.MaxResults

	merged := slices.Clone(stored)
	seen := lo.SliceToMap(stored, func(d domain.Deal) (string, struct{}) { return d.ID, struct{}{} })

	realtime := false
	if s.cfg.Realtime && total < want {
		realtime = true
		res := s.dispatcher.Dispatch(ctx, plan)
		cands := search.Filter(res.Products, criteria)
		for _, r := range PersistAll(ctx, s.persister, cands, Scope{UserID: req.UserID, Category: category}, s.logger) {
			if _, dup := seen[r.Deal.ID]; dup || !visible(r.Deal, req.IncludeExpired) {
				continue
			}
			seen[r.Deal.ID] = struct{}{}
			merged = append(merged, r.Deal)
			if r.Created {
				total++
			}
		}
		s.logger.InfoContext(ctx, "search_service: realtime discovery",
			slog.String("query", req.Query),
			slog.Int("candidates", len(cands)),
			slog.Int("failed_markets", len(res.Failed)),
			slog.Bool("cached", res.Cached),
		)
	}
	total = max(total, len(merged))

	sortDeals(merged, req.Sort, criteria)

	start := min(req.Offset, len(merged))
	end := min(start+req.Limit, len(merged))
	views := lo.Map(merged[start:end], func(d domain.Deal, _ int) domain.DealView { return d.View() })

	return domain.SearchResponse{
		Deals:            views,
		Total:            total,
		Page:             req.Offset/req.Limit + 1,
		HasMore:          req.Offset+len(views) < total,
		FiltersApplied:   filtersApplied(req),
		RealtimeScraping: realtime,
	}, nil
}

// Get returns a deal by id through the deal cache.
func (s *SearchService) Get(ctx context.Context, id string) (domain.Deal, error) {
	// Try the cache first.
	key := DealCacheKey(id)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var d domain.Deal
		if json.Unmarshal(data, &d) == nil && d.ID == id {
			// Keep frequently read deals warm.
			if err := s.cache.Expire(ctx, key, s.cfg.DealTTL); err != nil && !errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "search_service: deal cache refresh failed",
					slog.String("deal_id", id),
					slog.String("error", err.Error()),
				)
			}
			return d, nil
		}
	}

	d, err := s.deals.GetByID(ctx, id)
	if err != nil {
		return domain.Deal{}, fmt.Errorf("search_service: get %q: %w", id, err)
	}
	CacheDeal(ctx, s.cache, d, s.cfg.DealTTL, s.cfg.BasicTTL, s.logger)
	return d, nil
}

// visible applies the stored-search status rule to a persisted result: an
// existing deal comes back unchanged even when it is no longer active.
func visible(d domain.Deal, includeExpired bool) bool {
	if d.Status == domain.DealStatusDeleted {
		return false
	}
	return includeExpired || d.Status == domain.DealStatusActive
}

// relevance scores a stored deal the way the filter scores a fresh
// candidate, so stored and live results rank on one scale.
func relevance(d domain.Deal, c search.Criteria) float64 {
	brand, _ := d.Metadata["brand"].(string)
	raw := domain.RawProduct{
		Title:       d.Title,
		Description: d.Description,
		Price:       d.Price,
		Brand:       brand,
		Rating:      d.Seller.Rating,
		ReviewCount: d.Seller.ReviewCount,
	}
	if d.OriginalPrice != nil {
		raw.OriginalPrice = *d.OriginalPrice
	}
	score, _ := search.Score(raw, c)
	return score
}

func sortDeals(deals []domain.Deal, order domain.SortOrder, c search.Criteria) {
	var scores map[string]float64
	if order == domain.SortRelevance {
		scores = make(map[string]float64, len(deals))
		for _, d := range deals {
			scores[d.ID] = relevance(d, c)
		}
	}

	slices.SortStableFunc(deals, func(a, b domain.Deal) int {
		var r int
		switch order {
		case domain.SortPriceAsc:
			r = cmp.Compare(a.Price, b.Price)
		case domain.SortPriceDesc:
			r = cmp.Compare(b.Price, a.Price)
		case domain.SortNewest:
			r = b.FoundAt.Compare(a.FoundAt)
		case domain.SortScore:
			r = cmp.Compare(b.Score, a.Score)
		default:
			r = cmp.Compare(scores[b.ID], scores[a.ID])
			if r == 0 {
				r = cmp.Compare(a.Price, b.Price)
			}
		}
		if r != 0 {
			return r
		}
		return cmp.Or(strings.Compare(a.URL, b.URL), strings.Compare(a.ID, b.ID))
	})
}

func filtersApplied(req domain.SearchRequest) map[string]any {
	f := map[string]any{
		"query":           req.Query,
		"sort":            string(req.Sort),
		"include_expired": req.IncludeExpired,
	}
	if req.Category != "" {
		f["category"] = req.Category
	}
	if req.MinPrice != nil {
		f["min_price"] = *req.MinPrice
	}
	if req.MaxPrice != nil {
		f["max_price"] = *req.MaxPrice
	}
	if len(req.MarketIDs) > 0 {
		f["market_ids"] = req.MarketIDs
	}
	if len(req.Brands) > 0 {
		f["brands"] = req.Brands
	}
	return f
}
