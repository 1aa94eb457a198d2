package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/dealscout/internal/cache/memory"
	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/service"
	storemem "github.com/alanyoungcy/dealscout/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	deals     *storemem.DealStore
	prices    *storemem.PriceStore
	markets   *service.MarketService
	cache     *cachemem.CacheStore
	bus       *cachemem.EventBus
	persister *service.DealPersister
}

func newFixture() fixture {
	logger := discardLogger()
	cache := cachemem.NewCacheStore()
	deals := storemem.NewDealStore()
	prices := storemem.NewPriceStore()
	markets := service.NewMarketService(storemem.NewMarketStore(), cache, logger)
	return fixture{
		deals:     deals,
		prices:    prices,
		markets:   markets,
		cache:     cache,
		bus:       cachemem.NewEventBus(),
		persister: service.NewDealPersister(deals, prices, markets, 0, logger),
	}
}

func candidate(url string) domain.ScoredCandidate {
	return domain.ScoredCandidate{
		RawProduct: domain.RawProduct{
			ExternalID: "ext-" + url,
			Title:      "Gaming Laptop RTX",
			URL:        url,
			Price:      1200,
			Market:     domain.MarketAmazon,
			Category:   "Laptops",
		},
		RelevanceScore: 0.4,
	}
}

func TestPersistIdempotent(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()
	scope := service.Scope{UserID: "u1", GoalID: ptr("g1")}

	first, err := f.persister.Persist(ctx, candidate("https://shop/a"), scope)
	rq.NoError(err)
	rq.True(first.Created)

	changed := candidate("https://shop/a")
	changed.Price = 999
	changed.Title = "Renamed"
	second, err := f.persister.Persist(ctx, changed, scope)
	rq.NoError(err)
	rq.False(second.Created)
	rq.Equal(first.Deal.ID, second.Deal.ID)
	rq.Equal(1200.0, second.Deal.Price)
	rq.Equal("Gaming Laptop RTX", second.Deal.Title)

	history, err := f.prices.History(ctx, first.Deal.ID, 10)
	rq.NoError(err)
	rq.Len(history, 1)

	// A different goal owns its own copy of the listing.
	other, err := f.persister.Persist(ctx, candidate("https://shop/a"), service.Scope{UserID: "u1", GoalID: ptr("g2")})
	rq.NoError(err)
	rq.True(other.Created)
	rq.NotEqual(first.Deal.ID, other.Deal.ID)
}

func TestPersistDefaults(t *testing.T) {
	rq := require.New(t)
	f := newFixture()

	cand := candidate("https://shop/b")
	cand.OriginalPrice = 1000
	res, err := f.persister.Persist(context.Background(), cand, service.Scope{UserID: "u1"})
	rq.NoError(err)

	d := res.Deal
	rq.Nil(d.GoalID)
	rq.Equal(domain.UnknownSeller, d.Seller.Name)
	rq.Equal("USD", d.Currency)
	rq.Equal("in_stock", d.Availability)
	rq.Equal(domain.DealStatusActive, d.Status)
	rq.Equal(domain.CategoryComputers, d.Category)
	rq.Nil(d.OriginalPrice)
	rq.NotEmpty(d.MarketID)
	rq.NotNil(d.ExpiresAt)
	rq.WithinDuration(time.Now().Add(service.DefaultDealTTL), *d.ExpiresAt, time.Minute)
	rq.InDelta(0.4/search.MaxRelevance*100, d.Score, 0.1)

	_, err = f.persister.Persist(context.Background(), domain.ScoredCandidate{
		RawProduct: domain.RawProduct{Title: "x", URL: "https://shop/c", Market: domain.MarketAmazon},
	}, service.Scope{})
	rq.ErrorIs(err, domain.ErrInvalidRequest)
}

func TestPersistExternalIDMatchesSameGoalOnly(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()

	first, err := f.persister.Persist(ctx, candidate("https://shop/item?ref=1"), service.Scope{GoalID: ptr("g1")})
	rq.NoError(err)

	moved := candidate("https://shop/item?ref=1")
	moved.URL = "https://shop/item?ref=2"
	again, err := f.persister.Persist(ctx, moved, service.Scope{GoalID: ptr("g1")})
	rq.NoError(err)
	rq.False(again.Created)
	rq.Equal(first.Deal.ID, again.Deal.ID)

	adhoc, err := f.persister.Persist(ctx, moved, service.Scope{})
	rq.NoError(err)
	rq.True(adhoc.Created)
}

func TestPersistConcurrentSameURLAndGoal(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()
	scope := service.Scope{UserID: "u1", GoalID: ptr("g1")}

	const workers = 32
	var created atomic.Int32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.persister.Persist(ctx, candidate("https://shop/race"), scope)
			if err != nil {
				return
			}
			if res.Created {
				created.Add(1)
			}
			ids[i] = res.Deal.ID
		}()
	}
	wg.Wait()

	rq.Equal(int32(1), created.Load())
	for _, id := range ids {
		rq.Equal(ids[0], id)
	}
	got, total, err := f.deals.Search(ctx, domain.DealQuery{Limit: 10})
	rq.NoError(err)
	rq.Equal(1, total)
	rq.Len(got, 1)
}

func TestMarketServiceResolve(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := f.markets.Resolve(ctx, domain.MarketEbay)
			if err == nil {
				ids[i] = m.ID
			}
		}()
	}
	wg.Wait()
	for _, id := range ids {
		rq.NotEmpty(id)
		rq.Equal(ids[0], id)
	}

	m, err := f.markets.Resolve(ctx, domain.MarketEbay)
	rq.NoError(err)
	rq.Equal("eBay", m.Name)

	_, err = f.markets.Resolve(ctx, domain.MarketType("etsy"))
	rq.ErrorIs(err, domain.ErrInvalidRequest)
}

func TestCachingPersister(t *testing.T) {
	rq := require.New(t)
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.bus.Subscribe(ctx, "deals.*")
	rq.NoError(err)

	p := service.NewCachingPersister(f.persister, f.cache, f.bus, 0, 0, discardLogger())
	res, err := p.Persist(ctx, candidate("https://shop/cached"), service.Scope{UserID: "u1"})
	rq.NoError(err)
	rq.True(res.Created)

	data, err := f.cache.Get(ctx, service.DealCacheKey(res.Deal.ID))
	rq.NoError(err)
	var cached domain.Deal
	rq.NoError(json.Unmarshal(data, &cached))
	rq.Equal(res.Deal.URL, cached.URL)

	data, err = f.cache.Get(ctx, service.DealBasicCacheKey(res.Deal.ID))
	rq.NoError(err)
	var basic domain.DealBasic
	rq.NoError(json.Unmarshal(data, &basic))
	rq.Equal(res.Deal.ID, basic.ID)

	select {
	case msg := <-events:
		var evt domain.DealEvent
		rq.NoError(json.Unmarshal(msg, &evt))
		rq.Equal("discovered", evt.Type)
		rq.Equal(res.Deal.ID, evt.Deal.ID)
	case <-time.After(time.Second):
		rq.Fail("no discovered event")
	}

	again, err := p.Persist(ctx, candidate("https://shop/cached"), service.Scope{UserID: "u1"})
	rq.NoError(err)
	rq.False(again.Created)
	select {
	case <-events:
		rq.Fail("existing deal must not be announced")
	case <-time.After(50 * time.Millisecond):
	}
}

type stubDispatcher struct {
	products []domain.RawProduct
	calls    atomic.Int32
}

func (s *stubDispatcher) Dispatch(context.Context, search.Plan) search.Result {
	s.calls.Add(1)
	return search.Result{Products: s.products}
}

func newSearchService(f fixture, d search.Dispatcher, realtime bool) *service.SearchService {
	return service.NewSearchService(
		f.deals, f.cache, search.NewPlanner(nil), d, f.persister,
		service.SearchConfig{Realtime: realtime}, discardLogger(),
	)
}

func TestSearchValidation(t *testing.T) {
	svc := newSearchService(newFixture(), &stubDispatcher{}, false)

	cases := []struct {
		name    string
		req     domain.SearchRequest
		wantErr error
	}{
		{name: "ok", req: domain.SearchRequest{Query: "laptop"}},
		{name: "empty query", req: domain.SearchRequest{Query: "   "}, wantErr: domain.ErrInvalidRequest},
		{name: "inverted bounds", req: domain.SearchRequest{Query: "tv", MinPrice: ptr(500.0), MaxPrice: ptr(100.0)}, wantErr: domain.ErrInvalidRequest},
		{name: "negative price", req: domain.SearchRequest{Query: "tv", MinPrice: ptr(-1.0)}, wantErr: domain.ErrInvalidRequest},
		{name: "limit too big", req: domain.SearchRequest{Query: "tv", Limit: 500}, wantErr: domain.ErrInvalidRequest},
		{name: "bad sort", req: domain.SearchRequest{Query: "tv", Sort: "random"}, wantErr: domain.ErrInvalidRequest},
		{name: "bad market", req: domain.SearchRequest{Query: "tv", MarketIDs: []string{"etsy"}}, wantErr: domain.ErrInvalidRequest},
		{name: "unknown category", req: domain.SearchRequest{Query: "tv", Category: "spaceships"}, wantErr: domain.ErrInvalidCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			err := svc.Validate(&tc.req)
			if tc.wantErr == nil {
				rq.NoError(err)
				rq.Equal(service.DefaultPageSize, tc.req.Limit)
				rq.Equal(domain.SortRelevance, tc.req.Sort)
				return
			}
			rq.ErrorIs(err, tc.wantErr)
			rq.ErrorIs(err, domain.ErrInvalidRequest)
		})
	}
}

func TestSearchMergesRealtimeResults(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()

	stored, err := f.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: domain.RawProduct{
		Title: "Desk lamp LED", URL: "https://shop/stored", Price: 30, Market: domain.MarketWalmart,
	}}, service.Scope{UserID: "u1"})
	rq.NoError(err)

	d := &stubDispatcher{products: []domain.RawProduct{
		{Title: "Desk lamp", URL: "https://shop/live-1", Price: 25, Market: domain.MarketAmazon},
		{Title: "Desk lamp", URL: "https://shop/live-2", Price: 45, Market: domain.MarketEbay},
		{Title: "Desk lamp", URL: "https://shop/stored", Price: 30, Market: domain.MarketWalmart},
		{Title: "Floor fan", URL: "https://shop/too-pricey", Price: 900, Market: domain.MarketEbay},
	}}
	svc := newSearchService(f, d, true)

	resp, err := svc.Search(ctx, domain.SearchRequest{
		UserID:   "u1",
		Query:    "desk lamp",
		MaxPrice: ptr(100.0),
		Sort:     domain.SortPriceAsc,
		Limit:    2,
	})
	rq.NoError(err)
	rq.True(resp.RealtimeScraping)
	rq.Equal(3, resp.Total)
	rq.Equal(1, resp.Page)
	rq.True(resp.HasMore)
	rq.Len(resp.Deals, 2)
	rq.Equal(25.0, resp.Deals[0].Price)
	rq.Equal(stored.Deal.ID, resp.Deals[1].ID)
	rq.Equal(100.0, resp.FiltersApplied["max_price"])

	next, err := svc.Search(ctx, domain.SearchRequest{UserID: "u1", Query: "desk lamp", MaxPrice: ptr(100.0), Sort: domain.SortPriceAsc, Offset: 2, Limit: 2})
	rq.NoError(err)
	rq.Equal(2, next.Page)
	rq.Len(next.Deals, 1)
	rq.False(next.HasMore)
}

func TestSearchSkipsRealtimeWhenStoredFillsPage(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()

	for i := range 3 {
		_, err := f.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: domain.RawProduct{
			Title: "usb hub", URL: fmt.Sprintf("https://shop/hub-%d", i), Price: float64(10 + i), Market: domain.MarketAmazon,
		}}, service.Scope{})
		rq.NoError(err)
	}

	d := &stubDispatcher{}
	resp, err := newSearchService(f, d, true).Search(ctx, domain.SearchRequest{Query: "usb hub", Limit: 2})
	rq.NoError(err)
	rq.False(resp.RealtimeScraping)
	rq.Zero(d.calls.Load())
	rq.Equal(3, resp.Total)
	rq.Len(resp.Deals, 2)
}

func TestSearchHidesInactiveRediscoveredDeals(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name           string
		status         domain.DealStatus
		includeExpired bool
		wantShown      bool
	}{
		{name: "expired hidden", status: domain.DealStatusExpired},
		{name: "sold out hidden", status: domain.DealStatusSoldOut},
		{name: "expired included on request", status: domain.DealStatusExpired, includeExpired: true, wantShown: true},
		{name: "deleted always hidden", status: domain.DealStatusDeleted, includeExpired: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			f := newFixture()

			res, err := f.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: domain.RawProduct{
				Title: "Desk lamp", URL: "https://shop/old", Price: 30, Market: domain.MarketWalmart,
			}}, service.Scope{})
			rq.NoError(err)
			_, err = f.deals.Update(ctx, res.Deal.ID, domain.DealUpdate{Status: ptr(tc.status)})
			rq.NoError(err)

			d := &stubDispatcher{products: []domain.RawProduct{
				{Title: "Desk lamp", URL: "https://shop/old", Price: 30, Market: domain.MarketWalmart},
			}}
			resp, err := newSearchService(f, d, true).Search(ctx, domain.SearchRequest{
				Query: "desk lamp", IncludeExpired: tc.includeExpired,
			})
			rq.NoError(err)
			rq.True(resp.RealtimeScraping)
			rq.Equal(int32(1), d.calls.Load())
			if !tc.wantShown {
				rq.Empty(resp.Deals)
				rq.Zero(resp.Total)
				return
			}
			rq.Len(resp.Deals, 1)
			rq.Equal(res.Deal.ID, resp.Deals[0].ID)
		})
	}
}

func TestSearchServiceGet(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()
	svc := newSearchService(f, &stubDispatcher{}, false)

	res, err := f.persister.Persist(ctx, candidate("https://shop/get"), service.Scope{})
	rq.NoError(err)

	got, err := svc.Get(ctx, res.Deal.ID)
	rq.NoError(err)
	rq.Equal(res.Deal.URL, got.URL)

	_, err = f.cache.Get(ctx, service.DealCacheKey(res.Deal.ID))
	rq.NoError(err)

	_, err = svc.Get(ctx, "missing")
	rq.ErrorIs(err, domain.ErrNotFound)
}

func TestSearchServiceGetExtendsCachedDeal(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newFixture()
	svc := newSearchService(f, &stubDispatcher{}, false)

	cached := domain.Deal{ID: "cached-only", Title: "Kettle", URL: "https://shop/kettle", Price: 20}
	data, err := json.Marshal(cached)
	rq.NoError(err)
	rq.NoError(f.cache.Set(ctx, service.DealCacheKey(cached.ID), data, 100*time.Millisecond))

	got, err := svc.Get(ctx, cached.ID)
	rq.NoError(err)
	rq.Equal(cached.URL, got.URL)

	time.Sleep(200 * time.Millisecond)
	_, err = f.cache.Get(ctx, service.DealCacheKey(cached.ID))
	rq.NoError(err)
}
