package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// DealStore implements domain.DealStore using PostgreSQL. The natural key
// (url, COALESCE(goal_id, '')) is enforced by a unique index.
type DealStore struct {
	pool *pgxpool.Pool
}

// NewDealStore creates a new DealStore backed by the given connection pool.
func NewDealStore(pool *pgxpool.Pool) *DealStore {
	return &DealStore{pool: pool}
}

const dealCols = `id, user_id, goal_id, market_id, external_id, title, description,
	url, image_url, price, original_price, currency, source, category, seller,
	availability, status, found_at, expires_at, last_checked_at, metadata, score,
	created_at, updated_at`

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var d domain.Deal
	var source, category, status string
	err := row.Scan(
		&d.ID, &d.UserID, &d.GoalID, &d.MarketID, &d.ExternalID, &d.Title, &d.Description,
		&d.URL, &d.ImageURL, &d.Price, &d.OriginalPrice, &d.Currency, &source, &category, &d.Seller,
		&d.Availability, &status, &d.FoundAt, &d.ExpiresAt, &d.LastCheckedAt, &d.Metadata, &d.Score,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.Deal{}, err
	}
	d.Source = domain.MarketType(source)
	d.Category = domain.Category(category)
	d.Status = domain.DealStatus(status)
	return d, nil
}

func scanDeals(rows pgx.Rows) ([]domain.Deal, error) {
	defer rows.Close()
	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// Create inserts a deal. It returns domain.ErrAlreadyExists when the
// (url, goal_id) pair is already stored.
func (s *DealStore) Create(ctx context.Context, d domain.Deal) (domain.Deal, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO deals (
			id, user_id, goal_id, market_id, external_id, title, description,
			url, image_url, price, original_price, currency, source, category, seller,
			availability, status, found_at, expires_at, last_checked_at, metadata, score
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22
		)
		RETURNING `+dealCols,
		d.ID, d.UserID, d.GoalID, d.MarketID, d.ExternalID, d.Title, d.Description,
		d.URL, d.ImageURL, d.Price, d.OriginalPrice, d.Currency, string(d.Source), string(d.Category), d.Seller,
		d.Availability, string(d.Status), d.FoundAt, d.ExpiresAt, d.LastCheckedAt, d.Metadata, d.Score,
	)
	created, err := scanDeal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Deal{}, domain.ErrAlreadyExists
		}
		return domain.Deal{}, fmt.Errorf("postgres: create deal: %w", err)
	}
	return created, nil
}

func (s *DealStore) getOne(ctx context.Context, op, where string, args ...any) (domain.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx, `SELECT `+dealCols+` FROM deals WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, domain.ErrNotFound
		}
		return domain.Deal{}, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return d, nil
}

// GetByID retrieves a deal by its primary key.
func (s *DealStore) GetByID(ctx context.Context, id string) (domain.Deal, error) {
	return s.getOne(ctx, "get deal "+id, `id = $1`, id)
}

// GetByURLAndGoal retrieves a deal by its natural key. A nil goalID selects
// the ad-hoc scope.
func (s *DealStore) GetByURLAndGoal(ctx context.Context, url string, goalID *string) (domain.Deal, error) {
	goal := ""
	if goalID != nil {
		goal = *goalID
	}
	return s.getOne(ctx, "get deal by url", `url = $1 AND COALESCE(goal_id, '') = $2`, url, goal)
}

// GetByExternalID retrieves a deal by the marketplace's own id.
func (s *DealStore) GetByExternalID(ctx context.Context, externalID, marketID string) (domain.Deal, error) {
	if externalID == "" {
		return domain.Deal{}, domain.ErrNotFound
	}
	return s.getOne(ctx, "get deal by external id",
		`external_id = $1 AND market_id = $2 ORDER BY created_at LIMIT 1`, externalID, marketID)
}

// Update applies the non-nil fields of u and returns the updated deal.
func (s *DealStore) Update(ctx context.Context, id string, u domain.DealUpdate) (domain.Deal, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Price != nil {
		add("price", *u.Price)
		// Keep the original_price > price constraint satisfiable.
		sets = append(sets, fmt.Sprintf(
			"original_price = CASE WHEN original_price > $%d THEN original_price ELSE NULL END", len(args)))
	}
	if u.Score != nil {
		add("score", *u.Score)
	}
	if u.LastCheckedAt != nil {
		add("last_checked_at", *u.LastCheckedAt)
	}
	if u.Availability != nil {
		add("availability", *u.Availability)
	}

	query := `UPDATE deals SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + dealCols
	d, err := scanDeal(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, domain.ErrNotFound
		}
		return domain.Deal{}, fmt.Errorf("postgres: update deal %s: %w", id, err)
	}
	return d, nil
}

// escapeLike escapes LIKE metacharacters in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search returns one page of deals matching q, best score first, and the
// total match count.
func (s *DealStore) Search(ctx context.Context, q domain.DealQuery) ([]domain.Deal, int, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !q.IncludeExpired {
		where = append(where, "status = 'active'")
	} else {
		where = append(where, "status <> 'deleted'")
	}
	for _, kw := range q.Keywords {
		p := arg("%" + escapeLike(kw) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p, p))
	}
	if q.Category != "" {
		where = append(where, "category = "+arg(string(q.Category)))
	}
	if q.MinPrice != nil {
		where = append(where, "price >= "+arg(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		where = append(where, "price <= "+arg(*q.MaxPrice))
	}
	if len(q.Markets) > 0 {
		types := make([]string, len(q.Markets))
		for i, m := range q.Markets {
			types[i] = string(m)
		}
		where = append(where, "source = ANY("+arg(types)+")")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + dealCols + `, COUNT(*) OVER () AS total FROM deals WHERE ` +
		strings.Join(where, " AND ") +
		` ORDER BY score DESC, found_at DESC, id LIMIT ` + arg(limit) + ` OFFSET ` + arg(q.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: search deals: %w", err)
	}
	defer rows.Close()

	var deals []domain.Deal
	total := 0
	for rows.Next() {
		var d domain.Deal
		var source, category, status string
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.GoalID, &d.MarketID, &d.ExternalID, &d.Title, &d.Description,
			&d.URL, &d.ImageURL, &d.Price, &d.OriginalPrice, &d.Currency, &source, &category, &d.Seller,
			&d.Availability, &status, &d.FoundAt, &d.ExpiresAt, &d.LastCheckedAt, &d.Metadata, &d.Score,
			&d.CreatedAt, &d.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres: scan search row: %w", err)
		}
		d.Source = domain.MarketType(source)
		d.Category = domain.Category(category)
		d.Status = domain.DealStatus(status)
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: search deals: %w", err)
	}

	if len(deals) == 0 && q.Offset > 0 {
		var n int
		countQuery := `SELECT COUNT(*) FROM deals WHERE ` + strings.Join(where, " AND ")
		if err := s.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&n); err != nil {
			return nil, 0, fmt.Errorf("postgres: count deals: %w", err)
		}
		total = n
	}
	return deals, total, nil
}

func (s *DealStore) list(ctx context.Context, op, where string, args ...any) ([]domain.Deal, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+dealCols+` FROM deals WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	deals, err := scanDeals(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return deals, nil
}

// ListExpiring returns active deals whose expires_at has passed.
func (s *DealStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]domain.Deal, error) {
	return s.list(ctx, "list expiring deals",
		`status = 'active' AND expires_at IS NOT NULL AND expires_at < $1 ORDER BY expires_at LIMIT $2`,
		now, limit)
}

// ListStale returns active deals last checked before the cutoff.
func (s *DealStore) ListStale(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.Deal, error) {
	return s.list(ctx, "list stale deals",
		`status = 'active' AND last_checked_at < $1 ORDER BY last_checked_at LIMIT $2`,
		checkedBefore, limit)
}

// ListExpiredBefore returns expired deals whose expires_at is before the cutoff.
func (s *DealStore) ListExpiredBefore(ctx context.Context, before time.Time, limit int) ([]domain.Deal, error) {
	return s.list(ctx, "list expired deals",
		`status = 'expired' AND expires_at < $1 ORDER BY expires_at LIMIT $2`,
		before, limit)
}

// ListComparables returns other active deals in the same category.
func (s *DealStore) ListComparables(ctx context.Context, d domain.Deal, limit int) ([]domain.Deal, error) {
	return s.list(ctx, "list comparable deals",
		`status = 'active' AND category = $1 AND id <> $2 ORDER BY found_at DESC LIMIT $3`,
		string(d.Category), d.ID, limit)
}

var _ domain.DealStore = (*DealStore)(nil)
