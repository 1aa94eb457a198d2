package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

func TestDealStoreNaturalKey(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewDealStore()

	d := domain.Deal{URL: "https://example.com/p/1", Title: "Laptop", Price: 999, Status: domain.DealStatusActive}
	created, err := s.Create(ctx, d)
	rq.NoError(err)
	rq.NotEmpty(created.ID)

	_, err = s.Create(ctx, d)
	rq.ErrorIs(err, domain.ErrAlreadyExists)

	d.GoalID = ptr("goal-1")
	scoped, err := s.Create(ctx, d)
	rq.NoError(err)
	rq.NotEqual(created.ID, scoped.ID)

	got, err := s.GetByURLAndGoal(ctx, d.URL, nil)
	rq.NoError(err)
	rq.Equal(created.ID, got.ID)

	got, err = s.GetByURLAndGoal(ctx, d.URL, ptr("goal-1"))
	rq.NoError(err)
	rq.Equal(scoped.ID, got.ID)

	_, err = s.GetByURLAndGoal(ctx, d.URL, ptr("goal-2"))
	rq.ErrorIs(err, domain.ErrNotFound)
}

func TestDealStoreConcurrentCreate(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewDealStore()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, domain.Deal{URL: "https://example.com/x", GoalID: ptr("g"), Price: 1, Status: domain.DealStatusActive})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		rq.ErrorIs(err, domain.ErrAlreadyExists)
	}
	rq.Equal(1, created)

	_, total, err := s.Search(ctx, domain.DealQuery{Limit: 100})
	rq.NoError(err)
	rq.Equal(1, total)
}

func TestDealStoreUpdateAndLists(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewDealStore()
	now := time.Now()

	past := now.Add(-time.Hour)
	d, err := s.Create(ctx, domain.Deal{
		URL: "https://example.com/a", Title: "Headphones", Price: 80, OriginalPrice: ptr(100.0),
		Status: domain.DealStatusActive, Category: domain.CategoryAudio, ExpiresAt: &past, LastCheckedAt: past,
	})
	rq.NoError(err)

	expiring, err := s.ListExpiring(ctx, now, 10)
	rq.NoError(err)
	rq.Len(expiring, 1)

	stale, err := s.ListStale(ctx, now, 10)
	rq.NoError(err)
	rq.Len(stale, 1)

	updated, err := s.Update(ctx, d.ID, domain.DealUpdate{Price: ptr(120.0)})
	rq.NoError(err)
	rq.Nil(updated.OriginalPrice)

	updated, err = s.Update(ctx, d.ID, domain.DealUpdate{Status: ptr(domain.DealStatusExpired)})
	rq.NoError(err)
	rq.Equal(domain.DealStatusExpired, updated.Status)

	expired, err := s.ListExpiredBefore(ctx, now, 10)
	rq.NoError(err)
	rq.Len(expired, 1)

	_, err = s.Update(ctx, "missing", domain.DealUpdate{})
	rq.ErrorIs(err, domain.ErrNotFound)
}

func TestDealStoreSearch(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewDealStore()

	for i, title := range []string{"Gaming Laptop RTX", "Office Laptop", "Gaming Mouse"} {
		_, err := s.Create(ctx, domain.Deal{
			URL: "https://example.com/" + title, Title: title, Price: float64(100 * (i + 1)),
			Status: domain.DealStatusActive, Source: domain.MarketAmazon, Score: float64(i),
		})
		rq.NoError(err)
	}

	deals, total, err := s.Search(ctx, domain.DealQuery{Keywords: []string{"laptop"}, Limit: 10})
	rq.NoError(err)
	rq.Equal(2, total)
	rq.Equal("Office Laptop", deals[0].Title)

	deals, total, err = s.Search(ctx, domain.DealQuery{Keywords: []string{"gaming"}, MaxPrice: ptr(150.0), Limit: 10})
	rq.NoError(err)
	rq.Equal(1, total)
	rq.Equal("Gaming Laptop RTX", deals[0].Title)

	deals, total, err = s.Search(ctx, domain.DealQuery{Limit: 1, Offset: 5})
	rq.NoError(err)
	rq.Equal(3, total)
	rq.Empty(deals)
}

func TestGoalStoreRecordCheckCompletes(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewGoalStore()

	g, err := s.Create(ctx, domain.Goal{Title: "laptop", MaxMatches: 2})
	rq.NoError(err)
	rq.Equal(domain.GoalStatusActive, g.Status)

	rq.NoError(s.RecordCheck(ctx, g.ID, 1, time.Now()))
	active, err := s.ListActive(ctx)
	rq.NoError(err)
	rq.Len(active, 1)

	rq.NoError(s.RecordCheck(ctx, g.ID, 1, time.Now()))
	active, err = s.ListActive(ctx)
	rq.NoError(err)
	rq.Empty(active)

	got, err := s.GetByID(ctx, g.ID)
	rq.NoError(err)
	rq.Equal(domain.GoalStatusCompleted, got.Status)
	rq.NotNil(got.LastCheckedAt)
}

func TestMarketStoreUniqueType(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewMarketStore()

	m, err := s.Create(ctx, domain.Market{Type: domain.MarketEbay, Name: "eBay", Active: true})
	rq.NoError(err)

	_, err = s.Create(ctx, domain.Market{Type: domain.MarketEbay, Name: "eBay"})
	rq.ErrorIs(err, domain.ErrAlreadyExists)

	got, err := s.GetByType(ctx, domain.MarketEbay)
	rq.NoError(err)
	rq.Equal(m.ID, got.ID)
}

func TestPriceStoreHistoryOrder(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewPriceStore()
	base := time.Now()

	rq.NoError(s.Append(ctx, domain.PricePoint{DealID: "d", Price: 3, Timestamp: base.Add(2 * time.Hour)}))
	rq.NoError(s.Append(ctx, domain.PricePoint{DealID: "d", Price: 1, Timestamp: base}))
	rq.NoError(s.Append(ctx, domain.PricePoint{DealID: "d", Price: 2, Timestamp: base.Add(time.Hour)}))

	pts, err := s.History(ctx, "d", 2)
	rq.NoError(err)
	rq.Len(pts, 2)
	rq.InDelta(2.0, pts[0].Price, 1e-9)
	rq.InDelta(3.0, pts[1].Price, 1e-9)
}
