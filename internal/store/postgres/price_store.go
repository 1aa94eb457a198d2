package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL. Rows are only
// ever inserted.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given connection pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Append inserts one price observation.
func (s *PriceStore) Append(ctx context.Context, p domain.PricePoint) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_points (id, deal_id, price, currency, source, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.DealID, p.Price, p.Currency, string(p.Source), p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append price point for deal %s: %w", p.DealID, err)
	}
	return nil
}

// History returns the most recent limit points for a deal, oldest first.
func (s *PriceStore) History(ctx context.Context, dealID string, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, deal_id, price, currency, source, ts
		FROM price_points
		WHERE deal_id = $1
		ORDER BY ts DESC
		LIMIT $2`, dealID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: price history %s: %w", dealID, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var source string
		if err := rows.Scan(&p.ID, &p.DealID, &p.Price, &p.Currency, &source, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan price point: %w", err)
		}
		p.Source = domain.MarketType(source)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: price history %s: %w", dealID, err)
	}
	slices.Reverse(points)
	return points, nil
}

var _ domain.PriceStore = (*PriceStore)(nil)
