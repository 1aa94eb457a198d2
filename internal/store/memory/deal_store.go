// Package memory implements the domain store interfaces in process. It
// enforces the same natural keys as the PostgreSQL schema and backs tests
// and database-less runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

type urlGoalKey struct {
	url  string
	goal string
}

// DealStore is an in-memory domain.DealStore.
type DealStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Deal
	byKey map[urlGoalKey]string
	now   func() time.Time
}

// NewDealStore creates an empty DealStore.
func NewDealStore() *DealStore {
	return &DealStore{
		byID:  make(map[string]domain.Deal),
		byKey: make(map[urlGoalKey]string),
		now:   time.Now,
	}
}

func keyOf(url string, goalID *string) urlGoalKey {
	k := urlGoalKey{url: url}
	if goalID != nil {
		k.goal = *goalID
	}
	return k
}

func cloneDeal(d domain.Deal) domain.Deal {
	if d.GoalID != nil {
		g := *d.GoalID
		d.GoalID = &g
	}
	if d.OriginalPrice != nil {
		p := *d.OriginalPrice
		d.OriginalPrice = &p
	}
	if d.ExpiresAt != nil {
		e := *d.ExpiresAt
		d.ExpiresAt = &e
	}
	if d.Metadata != nil {
		m := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			m[k] = v
		}
		d.Metadata = m
	}
	return d
}

// Create stores d or returns domain.ErrAlreadyExists.
func (s *DealStore) Create(_ context.Context, d domain.Deal) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(d.URL, d.GoalID)
	if _, taken := s.byKey[k]; taken {
		return domain.Deal{}, domain.ErrAlreadyExists
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, taken := s.byID[d.ID]; taken {
		return domain.Deal{}, domain.ErrAlreadyExists
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}

	s.byID[d.ID] = cloneDeal(d)
	s.byKey[k] = d.ID
	return cloneDeal(d), nil
}

// GetByID returns the deal with id.
func (s *DealStore) GetByID(_ context.Context, id string) (domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.byID[id]
	if !ok {
		return domain.Deal{}, domain.ErrNotFound
	}
	return cloneDeal(d), nil
}

// GetByURLAndGoal returns the deal with the natural key (url, goalID).
func (s *DealStore) GetByURLAndGoal(_ context.Context, url string, goalID *string) (domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[keyOf(url, goalID)]
	if !ok {
		return domain.Deal{}, domain.ErrNotFound
	}
	return cloneDeal(s.byID[id]), nil
}

// GetByExternalID returns the oldest deal with the marketplace id.
func (s *DealStore) GetByExternalID(_ context.Context, externalID, marketID string) (domain.Deal, error) {
	if externalID == "" {
		return domain.Deal{}, domain.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Deal
	for _, d := range s.byID {
		if d.ExternalID != externalID || d.MarketID != marketID {
			continue
		}
		if found == nil || d.CreatedAt.Before(found.CreatedAt) {
			d := d
			found = &d
		}
	}
	if found == nil {
		return domain.Deal{}, domain.ErrNotFound
	}
	return cloneDeal(*found), nil
}

// Update applies the non-nil fields of u.
func (s *DealStore) Update(_ context.Context, id string, u domain.DealUpdate) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byID[id]
	if !ok {
		return domain.Deal{}, domain.ErrNotFound
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.Price != nil {
		d.Price = *u.Price
		if d.OriginalPrice != nil && *d.OriginalPrice <= d.Price {
			d.OriginalPrice = nil
		}
	}
	if u.Score != nil {
		d.Score = *u.Score
	}
	if u.LastCheckedAt != nil {
		d.LastCheckedAt = *u.LastCheckedAt
	}
	if u.Availability != nil {
		d.Availability = *u.Availability
	}
	d.UpdatedAt = s.now()
	s.byID[id] = d
	return cloneDeal(d), nil
}

func matchesQuery(d domain.Deal, q domain.DealQuery) bool {
	if q.IncludeExpired {
		if d.Status == domain.DealStatusDeleted {
			return false
		}
	} else if d.Status != domain.DealStatusActive {
		return false
	}
	text := strings.ToLower(d.Title + " " + d.Description)
	for _, kw := range q.Keywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	if q.Category != "" && d.Category != q.Category {
		return false
	}
	if q.MinPrice != nil && d.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && d.Price > *q.MaxPrice {
		return false
	}
	if len(q.Markets) > 0 {
		ok := false
		for _, m := range q.Markets {
			if d.Source == m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Search returns one page of deals matching q, best score first.
func (s *DealStore) Search(_ context.Context, q domain.DealQuery) ([]domain.Deal, int, error) {
	s.mu.RLock()
	var matched []domain.Deal
	for _, d := range s.byID {
		if matchesQuery(d, q) {
			matched = append(matched, cloneDeal(d))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.FoundAt.Equal(b.FoundAt) {
			return a.FoundAt.After(b.FoundAt)
		}
		return a.ID < b.ID
	})

	total := len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if q.Offset >= total {
		return nil, total, nil
	}
	end := min(q.Offset+limit, total)
	return matched[q.Offset:end], total, nil
}

func (s *DealStore) filter(limit int, keep func(domain.Deal) bool, less func(a, b domain.Deal) bool) []domain.Deal {
	s.mu.RLock()
	var out []domain.Deal
	for _, d := range s.byID {
		if keep(d) {
			out = append(out, cloneDeal(d))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListExpiring returns active deals whose expires_at is before now.
func (s *DealStore) ListExpiring(_ context.Context, now time.Time, limit int) ([]domain.Deal, error) {
	return s.filter(limit,
		func(d domain.Deal) bool {
			return d.Status == domain.DealStatusActive && d.ExpiresAt != nil && d.ExpiresAt.Before(now)
		},
		func(a, b domain.Deal) bool { return a.ExpiresAt.Before(*b.ExpiresAt) },
	), nil
}

// ListStale returns active deals last checked before the cutoff.
func (s *DealStore) ListStale(_ context.Context, checkedBefore time.Time, limit int) ([]domain.Deal, error) {
	return s.filter(limit,
		func(d domain.Deal) bool {
			return d.Status == domain.DealStatusActive && d.LastCheckedAt.Before(checkedBefore)
		},
		func(a, b domain.Deal) bool { return a.LastCheckedAt.Before(b.LastCheckedAt) },
	), nil
}

// ListExpiredBefore returns expired deals whose expires_at is before the cutoff.
func (s *DealStore) ListExpiredBefore(_ context.Context, before time.Time, limit int) ([]domain.Deal, error) {
	return s.filter(limit,
		func(d domain.Deal) bool {
			return d.Status == domain.DealStatusExpired && d.ExpiresAt != nil && d.ExpiresAt.Before(before)
		},
		func(a, b domain.Deal) bool { return a.ExpiresAt.Before(*b.ExpiresAt) },
	), nil
}

// ListComparables returns other active deals in the same category.
func (s *DealStore) ListComparables(_ context.Context, deal domain.Deal, limit int) ([]domain.Deal, error) {
	return s.filter(limit,
		func(d domain.Deal) bool {
			return d.Status == domain.DealStatusActive && d.Category == deal.Category && d.ID != deal.ID
		},
		func(a, b domain.Deal) bool { return a.FoundAt.After(b.FoundAt) },
	), nil
}

var _ domain.DealStore = (*DealStore)(nil)
