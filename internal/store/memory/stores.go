package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// PriceStore is an in-memory, append-only domain.PriceStore.
type PriceStore struct {
	mu     sync.RWMutex
	points map[string][]domain.PricePoint
}

// NewPriceStore creates an empty PriceStore.
func NewPriceStore() *PriceStore {
	return &PriceStore{points: make(map[string][]domain.PricePoint)}
}

// Append records p.
func (s *PriceStore) Append(_ context.Context, p domain.PricePoint) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[p.DealID] = append(s.points[p.DealID], p)
	return nil
}

// History returns up to limit of the latest points, oldest first.
func (s *PriceStore) History(_ context.Context, dealID string, limit int) ([]domain.PricePoint, error) {
	s.mu.RLock()
	pts := append([]domain.PricePoint(nil), s.points[dealID]...)
	s.mu.RUnlock()

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })
	if limit > 0 && len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	return pts, nil
}

// GoalStore is an in-memory domain.GoalStore.
type GoalStore struct {
	mu    sync.RWMutex
	goals map[string]domain.Goal
}

// NewGoalStore creates an empty GoalStore.
func NewGoalStore() *GoalStore {
	return &GoalStore{goals: make(map[string]domain.Goal)}
}

// Create stores g.
func (s *GoalStore) Create(_ context.Context, g domain.Goal) (domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if _, taken := s.goals[g.ID]; taken {
		return domain.Goal{}, domain.ErrAlreadyExists
	}
	if g.Status == "" {
		g.Status = domain.GoalStatusActive
	}
	now := time.Now()
	g.CreatedAt, g.UpdatedAt = now, now
	s.goals[g.ID] = g
	return g, nil
}

// GetByID returns the goal with id.
func (s *GoalStore) GetByID(_ context.Context, id string) (domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return domain.Goal{}, domain.ErrNotFound
	}
	return g, nil
}

// ListActive returns active goals ordered by id.
func (s *GoalStore) ListActive(_ context.Context) ([]domain.Goal, error) {
	s.mu.RLock()
	var out []domain.Goal
	for _, g := range s.goals {
		if g.Status == domain.GoalStatusActive {
			out = append(out, g)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatus sets the goal status.
func (s *GoalStore) UpdateStatus(_ context.Context, id string, status domain.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return domain.ErrNotFound
	}
	g.Status = status
	g.UpdatedAt = time.Now()
	s.goals[id] = g
	return nil
}

// RecordCheck adds matches and completes the goal once it is exhausted.
func (s *GoalStore) RecordCheck(_ context.Context, id string, matches int, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return domain.ErrNotFound
	}
	g.MatchesFound += matches
	g.LastCheckedAt = &checkedAt
	if g.Exhausted() {
		g.Status = domain.GoalStatusCompleted
	}
	g.UpdatedAt = time.Now()
	s.goals[id] = g
	return nil
}

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu     sync.RWMutex
	byID   map[string]domain.Market
	byType map[domain.MarketType]string
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		byID:   make(map[string]domain.Market),
		byType: make(map[domain.MarketType]string),
	}
}

// Create stores m or returns domain.ErrAlreadyExists for a taken type.
func (s *MarketStore) Create(_ context.Context, m domain.Market) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byType[m.Type]; taken {
		return domain.Market{}, domain.ErrAlreadyExists
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.byID[m.ID] = m
	s.byType[m.Type] = m.ID
	return m, nil
}

// GetByID returns the market with id.
func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// GetByType returns the market of type t.
func (s *MarketStore) GetByType(_ context.Context, t domain.MarketType) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byType[t]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return s.byID[id], nil
}

// ListActive returns active markets ordered by type.
func (s *MarketStore) ListActive(_ context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	var out []domain.Market
	for _, m := range s.byID {
		if m.Active {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

var (
	_ domain.PriceStore  = (*PriceStore)(nil)
	_ domain.GoalStore   = (*GoalStore)(nil)
	_ domain.MarketStore = (*MarketStore)(nil)
)
