package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, type, name, active, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var typ string
	if err := row.Scan(&m.ID, &typ, &m.Name, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(typ)
	return m, nil
}

// Create inserts a market. It returns domain.ErrAlreadyExists when a market
// of the same type exists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (domain.Market, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO markets (id, type, name, active)
		VALUES ($1, $2, $3, $4)
		RETURNING `+marketCols,
		m.ID, string(m.Type), m.Name, m.Active,
	)
	created, err := scanMarket(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Market{}, domain.ErrAlreadyExists
		}
		return domain.Market{}, fmt.Errorf("postgres: create market %s: %w", m.Type, err)
	}
	return created, nil
}

// EnsureAll inserts any missing markets in one batch. Existing rows are left
// untouched.
func (s *MarketStore) EnsureAll(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO markets (id, type, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type) DO NOTHING`

	for _, m := range markets {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(query, id, string(m.Type), m.Name, m.Active)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: ensure market batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByType retrieves the market row of one marketplace type.
func (s *MarketStore) GetByType(ctx context.Context, t domain.MarketType) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE type = $1`, string(t)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by type %s: %w", t, err)
	}
	return m, nil
}

// ListActive returns every active market ordered by type.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketCols+` FROM markets WHERE active ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

var _ domain.MarketStore = (*MarketStore)(nil)
