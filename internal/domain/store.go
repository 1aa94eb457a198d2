package domain

import (
	"context"
	"time"
)

// DealQuery selects stored deals for a search.
type DealQuery struct {
	Keywords       []string
	Category       Category
	MinPrice       *float64
	MaxPrice       *float64
	Markets        []MarketType
	IncludeExpired bool
	Limit          int
	Offset         int
}

// DealStore persists deals. Create returns ErrAlreadyExists when the
// (url, goal_id) natural key is taken.
type DealStore interface {
	Create(ctx context.Context, deal Deal) (Deal, error)
	GetByID(ctx context.Context, id string) (Deal, error)
	GetByURLAndGoal(ctx context.Context, url string, goalID *string) (Deal, error)
	GetByExternalID(ctx context.Context, externalID, marketID string) (Deal, error)
	Update(ctx context.Context, id string, u DealUpdate) (Deal, error)
	// Search returns one page of matching deals and the total match count.
	Search(ctx context.Context, q DealQuery) ([]Deal, int, error)
	// ListExpiring returns active deals whose expires_at is before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]Deal, error)
	// ListStale returns active deals last checked before the cutoff.
	ListStale(ctx context.Context, checkedBefore time.Time, limit int) ([]Deal, error)
	// ListExpiredBefore returns expired deals whose expires_at is before the cutoff.
	ListExpiredBefore(ctx context.Context, before time.Time, limit int) ([]Deal, error)
	// ListComparables returns other active deals in the same category.
	ListComparables(ctx context.Context, deal Deal, limit int) ([]Deal, error)
}

// PriceStore persists the append-only price history.
type PriceStore interface {
	Append(ctx context.Context, p PricePoint) error
	// History returns up to limit points for a deal, oldest first.
	History(ctx context.Context, dealID string, limit int) ([]PricePoint, error)
}

// GoalStore persists standing goals.
type GoalStore interface {
	Create(ctx context.Context, goal Goal) (Goal, error)
	GetByID(ctx context.Context, id string) (Goal, error)
	ListActive(ctx context.Context) ([]Goal, error)
	UpdateStatus(ctx context.Context, id string, status GoalStatus) error
	// RecordCheck adds matches to the goal's counter and stamps last_checked_at.
	RecordCheck(ctx context.Context, id string, matches int, checkedAt time.Time) error
}

// MarketStore persists marketplace reference rows. Create returns
// ErrAlreadyExists when the market type is taken.
type MarketStore interface {
	Create(ctx context.Context, market Market) (Market, error)
	GetByID(ctx context.Context, id string) (Market, error)
	GetByType(ctx context.Context, t MarketType) (Market, error)
	ListActive(ctx context.Context) ([]Market, error)
}
