package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/analysis"
	cachemem "github.com/alanyoungcy/dealscout/internal/cache/memory"
	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/monitor"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/service"
	storemem "github.com/alanyoungcy/dealscout/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

type stubDispatcher struct {
	result search.Result
	panics bool
	calls  atomic.Int32
}

func (s *stubDispatcher) Dispatch(context.Context, search.Plan) search.Result {
	s.calls.Add(1)
	if s.panics {
		panic("dispatcher exploded")
	}
	return s.result
}

type stubScraper struct {
	products []domain.RawProduct
	pages    map[string]domain.RawProduct
	searched atomic.Int32
}

func (s *stubScraper) Search(_ context.Context, market domain.MarketType, _ string, _ int) ([]domain.RawProduct, error) {
	s.searched.Add(1)
	var out []domain.RawProduct
	for _, p := range s.products {
		if p.Market == market {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubScraper) Product(_ context.Context, url string) (domain.RawProduct, error) {
	p, ok := s.pages[url]
	if !ok {
		return domain.RawProduct{}, domain.ErrNotFound
	}
	return p, nil
}

type notification struct {
	event   string
	userID  string
	payload map[string]any
}

type recorder struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recorder) Notify(_ context.Context, eventType, userID string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{eventType, userID, payload})
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

type env struct {
	deals     *storemem.DealStore
	prices    *storemem.PriceStore
	goals     *storemem.GoalStore
	cache     *cachemem.CacheStore
	bus       *cachemem.EventBus
	persister service.Persister
	notifier  *recorder
}

func newEnv() env {
	logger := discardLogger()
	cache := cachemem.NewCacheStore()
	deals := storemem.NewDealStore()
	prices := storemem.NewPriceStore()
	markets := service.NewMarketService(storemem.NewMarketStore(), cache, logger)
	return env{
		deals:     deals,
		prices:    prices,
		goals:     storemem.NewGoalStore(),
		cache:     cache,
		bus:       cachemem.NewEventBus(),
		persister: service.NewDealPersister(deals, prices, markets, 0, logger),
		notifier:  &recorder{},
	}
}

func (e env) monitor(d search.Dispatcher, s monitor.Scraper, clock time.Time, locks domain.LockManager) *monitor.Monitor {
	deps := monitor.Deps{
		Goals:      e.goals,
		Deals:      e.deals,
		Prices:     e.prices,
		Planner:    search.NewPlanner(nil),
		Dispatcher: d,
		Persister:  e.persister,
		Notifier:   e.notifier,
		Bus:        e.bus,
		Locks:      locks,
		Cache:      e.cache,
		Clock:      func() time.Time { return clock },
	}
	if s != nil {
		deps.Scraper = s
	}
	return monitor.New(deps, monitor.Config{Interval: time.Hour}, discardLogger())
}

func TestExpireSweep(t *testing.T) {
	rq := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv()
	now := time.Now()

	past := now.Add(-time.Hour)
	d, err := e.deals.Create(ctx, domain.Deal{
		UserID: "u1", Title: "old", URL: "https://shop/old", Price: 10,
		Status: domain.DealStatusActive, ExpiresAt: &past, LastCheckedAt: now,
	})
	rq.NoError(err)
	events, err := e.bus.Subscribe(ctx, domain.ChannelDealExpired)
	rq.NoError(err)

	m := e.monitor(&stubDispatcher{}, nil, now, nil)
	report, err := m.RunOnce(ctx)
	rq.NoError(err)
	rq.Equal(1, report.Expired)

	got, err := e.deals.GetByID(ctx, d.ID)
	rq.NoError(err)
	rq.Equal(domain.DealStatusExpired, got.Status)
	rq.Equal(1, e.notifier.count(domain.EventDealExpired))

	select {
	case <-events:
	case <-time.After(time.Second):
		rq.Fail("no expired event")
	}

	report, err = m.RunOnce(ctx)
	rq.NoError(err)
	rq.Zero(report.Expired)
	rq.Equal(1, e.notifier.count(domain.EventDealExpired))
}

func TestGoalDiscoveryRespectsMaxMatches(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	g, err := e.goals.Create(ctx, domain.Goal{
		UserID: "u1", Title: "espresso machine", MaxPrice: ptr(400.0), MaxMatches: 2,
	})
	rq.NoError(err)

	d := &stubDispatcher{result: search.Result{Products: []domain.RawProduct{
		{Title: "Espresso Machine A", URL: "https://shop/a", Price: 300, Market: domain.MarketAmazon},
		{Title: "Espresso Machine B", URL: "https://shop/b", Price: 250, Market: domain.MarketAmazon},
		{Title: "Espresso Machine C", URL: "https://shop/c", Price: 350, Market: domain.MarketWalmart},
		{Title: "Espresso Machine D", URL: "https://shop/d", Price: 900, Market: domain.MarketWalmart},
	}}}
	report, err := e.monitor(d, nil, time.Now(), nil).RunOnce(ctx)
	rq.NoError(err)
	rq.Equal(1, report.GoalsChecked)
	rq.Equal(2, report.Matches)
	rq.Equal(2, e.notifier.count(domain.EventGoalMatch))

	got, err := e.goals.GetByID(ctx, g.ID)
	rq.NoError(err)
	rq.Equal(2, got.MatchesFound)
	rq.Equal(domain.GoalStatusCompleted, got.Status)

	_, err = e.deals.GetByURLAndGoal(ctx, "https://shop/d", &g.ID)
	rq.ErrorIs(err, domain.ErrNotFound)
}

func TestGoalDeadlineExpires(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()
	now := time.Now()

	g, err := e.goals.Create(ctx, domain.Goal{UserID: "u1", Title: "tent", Deadline: ptr(now.Add(-time.Minute))})
	rq.NoError(err)

	d := &stubDispatcher{}
	report, err := e.monitor(d, nil, now, nil).RunOnce(ctx)
	rq.NoError(err)
	rq.Equal(1, report.GoalsExpired)
	rq.Zero(d.calls.Load())

	got, err := e.goals.GetByID(ctx, g.ID)
	rq.NoError(err)
	rq.Equal(domain.GoalStatusExpired, got.Status)
}

func TestScraperFallbackWhenProvidersFail(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	_, err := e.goals.Create(ctx, domain.Goal{UserID: "u1", Title: "hiking boots"})
	rq.NoError(err)

	d := &stubDispatcher{result: search.Result{Failed: []domain.MarketType{domain.MarketAmazon, domain.MarketEbay}}}
	s := &stubScraper{products: []domain.RawProduct{
		{Title: "Hiking Boots Waterproof", URL: "https://www.ebay.com/itm/1", Price: 80, Market: domain.MarketEbay},
	}}
	report, err := e.monitor(d, s, time.Now(), nil).RunOnce(ctx)
	rq.NoError(err)
	rq.Equal(int32(len(domain.MarketTypes)), s.searched.Load())
	rq.Equal(1, report.Matches)
}

func TestNoFallbackOnPlainEmptyResult(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	_, err := e.goals.Create(ctx, domain.Goal{UserID: "u1", Title: "hiking boots"})
	rq.NoError(err)

	s := &stubScraper{}
	_, err = e.monitor(&stubDispatcher{}, s, time.Now(), nil).RunOnce(ctx)
	rq.NoError(err)
	rq.Zero(s.searched.Load())
}

func TestPriceRefresh(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	res, err := e.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: domain.RawProduct{
		Title: "Air fryer", URL: "https://shop/fryer", Price: 120, Market: domain.MarketWalmart,
	}}, service.Scope{UserID: "u1"})
	rq.NoError(err)

	staleAnalysis := analysis.CacheKey(res.Deal.ID)
	rq.NoError(e.cache.Set(ctx, staleAnalysis, []byte(`{"deal_id":"`+res.Deal.ID+`","score":40}`), time.Hour))

	s := &stubScraper{pages: map[string]domain.RawProduct{
		"https://shop/fryer": {Price: 99, Availability: "in_stock"},
	}}
	later := time.Now().Add(7 * time.Hour)
	report, err := e.monitor(&stubDispatcher{}, s, later, nil).RunOnce(ctx)
	rq.NoError(err)
	_, err = e.cache.Get(ctx, staleAnalysis)
	rq.ErrorIs(err, domain.ErrNotFound)
	_, err = e.cache.Get(ctx, service.DealCacheKey(res.Deal.ID))
	rq.ErrorIs(err, domain.ErrNotFound)
	rq.Equal(1, report.PricesRefreshed)
	rq.Equal(1, report.PriceDrops)
	rq.Equal(1, e.notifier.count(domain.EventPriceDrop))

	got, err := e.deals.GetByID(ctx, res.Deal.ID)
	rq.NoError(err)
	rq.Equal(99.0, got.Price)
	rq.WithinDuration(later, got.LastCheckedAt, time.Second)

	history, err := e.prices.History(ctx, res.Deal.ID, 10)
	rq.NoError(err)
	rq.Len(history, 2)
	rq.Equal(99.0, history[1].Price)
}

func TestPriceRefreshSoldOut(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	res, err := e.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: domain.RawProduct{
		Title: "Blender", URL: "https://shop/blender", Price: 60, Market: domain.MarketAmazon,
	}}, service.Scope{UserID: "u1"})
	rq.NoError(err)

	s := &stubScraper{pages: map[string]domain.RawProduct{
		"https://shop/blender": {Price: 60, Availability: "out_of_stock"},
	}}
	report, err := e.monitor(&stubDispatcher{}, s, time.Now().Add(7*time.Hour), nil).RunOnce(ctx)
	rq.NoError(err)
	rq.Zero(report.PricesRefreshed)

	got, err := e.deals.GetByID(ctx, res.Deal.ID)
	rq.NoError(err)
	rq.Equal(domain.DealStatusSoldOut, got.Status)
}

func TestTickSkippedWhenLockHeld(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	locks := cachemem.NewLockManager()
	unlock, err := locks.Acquire(ctx, monitor.TickLockKey, time.Minute)
	rq.NoError(err)
	defer unlock()

	report, err := e.monitor(&stubDispatcher{}, nil, time.Now(), locks).RunOnce(ctx)
	rq.NoError(err)
	rq.True(report.Skipped)
}

func TestTickRecoversPanic(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	_, err := e.goals.Create(ctx, domain.Goal{UserID: "u1", Title: "anything"})
	rq.NoError(err)

	m := e.monitor(&stubDispatcher{panics: true}, nil, time.Now(), nil)
	rq.NotPanics(func() {
		_, err = m.RunOnce(ctx)
	})
	rq.Error(err)
}

func TestStartTriggerStop(t *testing.T) {
	rq := require.New(t)
	e := newEnv()

	_, err := e.goals.Create(context.Background(), domain.Goal{UserID: "u1", Title: "standing desk"})
	rq.NoError(err)

	d := &stubDispatcher{}
	m := e.monitor(d, nil, time.Now(), nil)
	rq.NoError(m.Start(context.Background()))
	rq.ErrorIs(m.Start(context.Background()), monitor.ErrRunning)

	rq.Eventually(func() bool { return d.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	rq.True(m.Trigger())
	rq.Eventually(func() bool { return d.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	calls := d.calls.Load()
	time.Sleep(20 * time.Millisecond)
	rq.Equal(calls, d.calls.Load())
}

// An ad-hoc search and the monitor discovering the same listing for the
// same goal at the same time leave exactly one deal behind.
func TestConcurrentDiscoveryConverges(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	e := newEnv()

	g, err := e.goals.Create(ctx, domain.Goal{UserID: "u1", Title: "robot vacuum"})
	rq.NoError(err)
	product := domain.RawProduct{Title: "Robot Vacuum", URL: "https://shop/vac", Price: 199, Market: domain.MarketAmazon}

	m := e.monitor(&stubDispatcher{result: search.Result{Products: []domain.RawProduct{product}}}, nil, time.Now(), nil)

	var wg sync.WaitGroup
	var adhocErr, tickErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, adhocErr = e.persister.Persist(ctx, domain.ScoredCandidate{RawProduct: product}, service.Scope{UserID: "u1", GoalID: &g.ID})
	}()
	go func() {
		defer wg.Done()
		_, tickErr = m.RunOnce(ctx)
	}()
	wg.Wait()
	rq.NoError(adhocErr)
	rq.NoError(tickErr)

	_, total, err := e.deals.Search(ctx, domain.DealQuery{Limit: 10})
	rq.NoError(err)
	rq.Equal(1, total)
}

type stubBlob struct {
	mu    sync.Mutex
	deals []domain.Deal
	fail  bool
}

func (s *stubBlob) ArchiveDeals(_ context.Context, deals []domain.Deal, day time.Time) (string, error) {
	if s.fail {
		return "", errors.New("bucket gone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = append(s.deals, deals...)
	return "deals/archive/" + day.Format("2006-01-02") + ".jsonl", nil
}

func TestArchiverRun(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	deals := storemem.NewDealStore()

	longAgo := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	old, err := deals.Create(ctx, domain.Deal{Title: "a", URL: "https://a", Price: 1, Status: domain.DealStatusExpired, ExpiresAt: &longAgo})
	rq.NoError(err)
	fresh, err := deals.Create(ctx, domain.Deal{Title: "b", URL: "https://b", Price: 1, Status: domain.DealStatusExpired, ExpiresAt: &recent})
	rq.NoError(err)

	blob := &stubBlob{}
	a := monitor.NewArchiver(deals, blob, 30*24*time.Hour, 0, discardLogger())
	n, err := a.Run(ctx)
	rq.NoError(err)
	rq.Equal(1, n)
	rq.Len(blob.deals, 1)
	rq.Equal(old.ID, blob.deals[0].ID)

	got, err := deals.GetByID(ctx, old.ID)
	rq.NoError(err)
	rq.Equal(domain.DealStatusDeleted, got.Status)
	got, err = deals.GetByID(ctx, fresh.ID)
	rq.NoError(err)
	rq.Equal(domain.DealStatusExpired, got.Status)

	n, err = a.Run(ctx)
	rq.NoError(err)
	rq.Zero(n)

	failing := monitor.NewArchiver(deals, &stubBlob{fail: true}, 0, 0, discardLogger())
	_, err = failing.Run(ctx)
	rq.Error(err)
	got, err = deals.GetByID(ctx, fresh.ID)
	rq.NoError(err)
	rq.Equal(domain.DealStatusExpired, got.Status)
}
