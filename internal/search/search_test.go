package search_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/cache/memory"
	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/provider"
	"github.com/alanyoungcy/dealscout/internal/search"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

type fakeAdapter struct {
	market   domain.MarketType
	products []domain.RawProduct
	err      error
	delay    time.Duration
	hang     bool
	panics   bool
	calls    atomic.Int32
	query    atomic.Value
}

func (f *fakeAdapter) Market() domain.MarketType { return f.market }

func (f *fakeAdapter) Search(ctx context.Context, query string, _ int) ([]domain.RawProduct, error) {
	f.calls.Add(1)
	f.query.Store(query)
	if f.panics {
		panic("adapter exploded")
	}
	if f.hang {
		// Ignores ctx on purpose.
		time.Sleep(time.Hour)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.products, f.err
}

func TestPlannerPriceInference(t *testing.T) {
	p := search.NewPlanner(nil)

	cases := []struct {
		name     string
		in       search.PlanInput
		min, max *float64
		keywords []string
	}{
		{
			name:     "under",
			in:       search.PlanInput{Query: "gaming laptop under $1,500"},
			max:      ptr(1500),
			keywords: []string{"gaming", "laptop"},
		},
		{
			name:     "between",
			in:       search.PlanInput{Query: "standing desk between 200 and 350"},
			min:      ptr(200),
			max:      ptr(350),
			keywords: []string{"standing", "desk"},
		},
		{
			name:     "dollar range",
			in:       search.PlanInput{Query: "headphones $50-$120"},
			min:      ptr(50),
			max:      ptr(120),
			keywords: []string{"headphones"},
		},
		{
			name:     "over",
			in:       search.PlanInput{Query: "espresso machine over 300"},
			min:      ptr(300),
			keywords: []string{"espresso", "machine"},
		},
		{
			name:     "explicit bounds win",
			in:       search.PlanInput{Query: "monitor under 400", MinPrice: ptr(100), MaxPrice: ptr(250)},
			min:      ptr(100),
			max:      ptr(250),
			keywords: []string{"monitor"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			plan := p.Plan(tc.in)
			rq.Equal(tc.min, plan.MinPrice)
			rq.Equal(tc.max, plan.MaxPrice)
			rq.Equal(tc.keywords, plan.Keywords)
		})
	}
}

func TestPlannerGoalPrecedence(t *testing.T) {
	rq := require.New(t)
	p := search.NewPlanner(nil)

	goal := domain.Goal{
		ID:       "g1",
		Title:    "Sony noise cancelling headphones under 500",
		Keywords: []string{"wireless"},
		MaxPrice: ptr(300),
		Category: domain.CategoryAudio,
	}
	plan := p.PlanGoal(goal, nil)
	rq.Equal(ptr(300), plan.MaxPrice)
	rq.Equal(domain.CategoryAudio, plan.Category)
	rq.Contains(plan.Keywords, "wireless")
	rq.Contains(plan.Brands, "sony")
	rq.False(plan.StrictBrands)
	rq.NotNil(plan.GoalID)
	rq.Equal("g1", *plan.GoalID)
	rq.Len(plan.Queries, len(domain.MarketTypes))
}

func TestPlannerFormattingFallsBack(t *testing.T) {
	rq := require.New(t)
	p := search.NewPlanner(nil)

	long := "The ultralight carbon fiber trekking poles, collapsible adjustable anti shock with cork grips"
	plan := p.Plan(search.PlanInput{Query: long})
	// Too long for eBay only; the raw query is used there.
	rq.Equal(long, plan.Queries[domain.MarketEbay])
	rq.NotEqual(long, plan.Queries[domain.MarketAmazon])

	empty := p.Plan(search.PlanInput{Query: "the best of"})
	rq.Empty(empty.Keywords)
	for _, q := range empty.Queries {
		rq.Equal("the best of", q)
	}
}

func TestOrchestratorDeadlineBound(t *testing.T) {
	rq := require.New(t)

	ok := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{
		{Title: "a", URL: "https://a", Price: 10},
	}}
	stuck := &fakeAdapter{market: domain.MarketWalmart, hang: true}
	broken := &fakeAdapter{market: domain.MarketEbay, panics: true}

	o := search.NewOrchestrator([]provider.Adapter{ok, stuck, broken}, search.OrchestratorConfig{
		GlobalTimeout:  300 * time.Millisecond,
		MarketTimeouts: map[domain.MarketType]time.Duration{domain.MarketWalmart: time.Minute},
	}, discardLogger())

	plan := search.NewPlanner(nil).Plan(search.PlanInput{Query: "anything"})
	start := time.Now()
	res := o.Dispatch(context.Background(), plan)
	elapsed := time.Since(start)

	rq.Less(elapsed, 2*time.Second)
	rq.GreaterOrEqual(elapsed, 250*time.Millisecond)
	rq.Len(res.Products, 1)
	rq.Equal(domain.MarketAmazon, res.Products[0].Market)
	rq.ElementsMatch([]domain.MarketType{domain.MarketWalmart, domain.MarketEbay}, res.Failed)
}

func TestOrchestratorPerMarketTimeout(t *testing.T) {
	rq := require.New(t)

	slow := &fakeAdapter{market: domain.MarketGoogleShopping, delay: time.Minute}
	fast := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{{Title: "x", URL: "https://x", Price: 1}}}
	o := search.NewOrchestrator([]provider.Adapter{fast, slow}, search.OrchestratorConfig{
		GlobalTimeout:  5 * time.Second,
		MarketTimeouts: map[domain.MarketType]time.Duration{domain.MarketGoogleShopping: 50 * time.Millisecond},
	}, discardLogger())

	start := time.Now()
	res := o.Dispatch(context.Background(), search.NewPlanner(nil).Plan(search.PlanInput{Query: "x ray"}))
	rq.Less(time.Since(start), time.Second)
	rq.Equal([]domain.MarketType{domain.MarketGoogleShopping}, res.Failed)
	rq.Len(res.ByMarket[domain.MarketAmazon], 1)
}

func TestOrchestratorMarketRestrictionAndOrder(t *testing.T) {
	rq := require.New(t)

	a := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{{Title: "a", URL: "https://a", Price: 1}}}
	w := &fakeAdapter{market: domain.MarketWalmart, products: []domain.RawProduct{{Title: "w", URL: "https://w", Price: 1}}}
	e := &fakeAdapter{market: domain.MarketEbay, products: []domain.RawProduct{{Title: "e", URL: "https://e", Price: 1}}, delay: 20 * time.Millisecond}
	o := search.NewOrchestrator([]provider.Adapter{a, w, e}, search.OrchestratorConfig{}, discardLogger())

	all := o.Dispatch(context.Background(), search.NewPlanner(nil).Plan(search.PlanInput{Query: "lamp"}))
	rq.Equal([]string{"a", "w", "e"}, titles(all.Products))

	plan := search.NewPlanner(nil).Plan(search.PlanInput{
		Query:   "lamp",
		Markets: []domain.MarketType{domain.MarketEbay, domain.MarketAmazon},
	})
	some := o.Dispatch(context.Background(), plan)
	rq.Equal([]string{"a", "e"}, titles(some.Products))
	rq.Equal(int32(1), w.calls.Load())
	rq.Equal("lamp", a.query.Load())
}

func titles(ps []domain.RawProduct) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func TestCachingDispatcher(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	cache := memory.NewCacheStore()

	a := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{{Title: "desk lamp", URL: "https://lamp", Price: 20}}}
	o := search.NewOrchestrator([]provider.Adapter{a}, search.OrchestratorConfig{}, discardLogger())
	d := search.NewCachingDispatcher(o, cache, time.Minute, discardLogger())

	plan := search.NewPlanner(nil).Plan(search.PlanInput{Query: "desk lamp"})
	first := d.Dispatch(ctx, plan)
	rq.False(first.Cached)
	second := d.Dispatch(ctx, plan)
	rq.True(second.Cached)
	rq.Equal(first.Products, second.Products)
	rq.Equal(int32(1), a.calls.Load())

	other := search.NewPlanner(nil).Plan(search.PlanInput{Query: "desk lamp", MaxPrice: ptr(15)})
	rq.NotEqual(search.CacheKey(plan), search.CacheKey(other))
}

func TestCachingDispatcherSkipsEmptyAndPartial(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	cache := memory.NewCacheStore()

	empty := &fakeAdapter{market: domain.MarketAmazon}
	failing := &fakeAdapter{market: domain.MarketWalmart, err: errors.New("boom")}
	o := search.NewOrchestrator([]provider.Adapter{empty, failing}, search.OrchestratorConfig{}, discardLogger())
	d := search.NewCachingDispatcher(o, cache, time.Minute, discardLogger())

	plan := search.NewPlanner(nil).Plan(search.PlanInput{Query: "rare thing"})
	d.Dispatch(ctx, plan)
	_, err := cache.Get(ctx, search.CacheKey(plan))
	rq.ErrorIs(err, domain.ErrNotFound)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenCache) Expire(context.Context, string, time.Duration) error { return errors.New("down") }
func (brokenCache) Delete(context.Context, string) error                { return errors.New("down") }

func TestCachingDispatcherCacheDown(t *testing.T) {
	rq := require.New(t)
	a := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{{Title: "t", URL: "https://t", Price: 1}}}
	o := search.NewOrchestrator([]provider.Adapter{a}, search.OrchestratorConfig{}, discardLogger())
	d := search.NewCachingDispatcher(o, brokenCache{}, time.Minute, discardLogger())

	res := d.Dispatch(context.Background(), search.NewPlanner(nil).Plan(search.PlanInput{Query: "thing"}))
	rq.Len(res.Products, 1)
}

func TestGamingLaptopScenario(t *testing.T) {
	rq := require.New(t)

	a := &fakeAdapter{market: domain.MarketAmazon, products: []domain.RawProduct{
		{Title: "Gaming Laptop RTX", URL: "https://a/laptop", Price: 1200},
	}}
	b := &fakeAdapter{market: domain.MarketWalmart, delay: time.Minute}
	o := search.NewOrchestrator([]provider.Adapter{a, b}, search.OrchestratorConfig{
		MarketTimeouts: map[domain.MarketType]time.Duration{domain.MarketWalmart: 50 * time.Millisecond},
	}, discardLogger())

	plan := search.NewPlanner(nil).Plan(search.PlanInput{
		Query:    "gaming laptop",
		MinPrice: ptr(800),
		MaxPrice: ptr(1500),
	})
	res := o.Dispatch(context.Background(), plan)
	rq.Equal([]domain.MarketType{domain.MarketWalmart}, res.Failed)

	got := search.Filter(res.Products, search.CriteriaFromPlan(plan))
	rq.Len(got, 1)
	rq.InDelta(0.4, got[0].RelevanceScore, 1e-9)
	rq.Equal("https://a/laptop", got[0].URL)
}

func TestFilterCorrectness(t *testing.T) {
	rq := require.New(t)

	products := []domain.RawProduct{
		{Title: "cheap", URL: "https://1", Price: 5},
		{Title: "low edge", URL: "https://2", Price: 10},
		{Title: "high edge", URL: "https://3", Price: 100},
		{Title: "pricey", URL: "https://4", Price: 101},
		{Title: "", URL: "https://5", Price: 50},
		{Title: "free", URL: "https://6", Price: 0},
	}
	got := search.Filter(products, search.Criteria{MinPrice: ptr(10), MaxPrice: ptr(100)})
	rq.Len(got, 2)
	for _, c := range got {
		rq.GreaterOrEqual(c.Price, 10.0)
		rq.LessOrEqual(c.Price, 100.0)
	}
}

func TestFilterOrderingAndTruncation(t *testing.T) {
	rq := require.New(t)

	var products []domain.RawProduct
	for i := range 20 {
		products = append(products, domain.RawProduct{
			Title: "usb cable",
			URL:   "https://x/" + string(rune('a'+i)),
			Price: float64(20 - i),
		})
	}
	products = append(products, domain.RawProduct{
		Title: "usb cable braided", Description: "usb cable", URL: "https://best", Price: 30,
		OriginalPrice: 60, Rating: 4.8, ReviewCount: 900,
	})
	got := search.Filter(products, search.Criteria{Keywords: []string{"usb", "cable"}})
	rq.Len(got, search.DefaultMaxResults)
	rq.Equal("https://best", got[0].URL)
	rq.NotEmpty(got[0].ScoreReasons)
	// Equal scores fall back to cheapest first.
	rq.Equal(1.0, got[1].Price)
	rq.Equal(2.0, got[2].Price)
}

func TestFilterDuplicateURLs(t *testing.T) {
	rq := require.New(t)
	got := search.Filter([]domain.RawProduct{
		{Title: "phone case", URL: "https://same", Price: 10},
		{Title: "phone case clear", Description: "phone case", URL: "https://same", Price: 10},
	}, search.Criteria{Keywords: []string{"phone", "case"}})
	rq.Len(got, 1)
	rq.Equal("phone case clear", got[0].Title)
}

func TestFilterStrictBrandsAndCategory(t *testing.T) {
	rq := require.New(t)
	products := []domain.RawProduct{
		{Title: "Sony WH-1000XM5", URL: "https://s", Price: 300, Category: "Headphones"},
		{Title: "Bose QC45", URL: "https://b", Price: 280, Brand: "Bose", Category: "Audio"},
		{Title: "Sony Alpha a7 IV", URL: "https://t", Price: 2400, Category: "Camera & Photo"},
	}
	got := search.Filter(products, search.Criteria{
		Brands:       []string{"sony"},
		StrictBrands: true,
		Category:     domain.CategoryAudio,
	})
	rq.Len(got, 1)
	rq.Equal("https://s", got[0].URL)
}

func TestScoreBounds(t *testing.T) {
	rq := require.New(t)
	c := search.Criteria{
		Keywords: []string{"wireless", "mouse"},
		Brands:   []string{"logitech"},
		Features: []string{"bluetooth", "rechargeable"},
	}

	best := domain.RawProduct{
		Title:         "Logitech wireless mouse bluetooth rechargeable",
		Description:   "wireless mouse",
		Brand:         "Logitech",
		Price:         20,
		OriginalPrice: 80,
		Rating:        4.9,
		ReviewCount:   5000,
	}
	score, reasons := search.Score(best, c)
	rq.InDelta(search.MaxRelevance, score, 1e-9)
	rq.NotEmpty(reasons)

	score, reasons = search.Score(domain.RawProduct{Title: "garden hose", Price: 10}, c)
	rq.Zero(score)
	rq.Empty(reasons)

	score, _ = search.Score(domain.RawProduct{Title: "wireless keyboard", Price: 40, OriginalPrice: 50, Rating: 3.6, ReviewCount: 25}, c)
	rq.InDelta(0.2+0.05+0.05, score, 1e-9)
}
