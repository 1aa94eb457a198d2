package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// GoalStore implements domain.GoalStore using PostgreSQL.
type GoalStore struct {
	pool *pgxpool.Pool
}

// NewGoalStore creates a new GoalStore backed by the given connection pool.
func NewGoalStore(pool *pgxpool.Pool) *GoalStore {
	return &GoalStore{pool: pool}
}

const goalCols = `id, user_id, title, keywords, brands, features, category,
	min_price, max_price, deadline, max_matches, matches_found, status,
	last_checked_at, created_at, updated_at`

func scanGoal(row pgx.Row) (domain.Goal, error) {
	var g domain.Goal
	var category, status string
	err := row.Scan(
		&g.ID, &g.UserID, &g.Title, &g.Keywords, &g.Brands, &g.Features, &category,
		&g.MinPrice, &g.MaxPrice, &g.Deadline, &g.MaxMatches, &g.MatchesFound, &status,
		&g.LastCheckedAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return domain.Goal{}, err
	}
	g.Category = domain.Category(category)
	g.Status = domain.GoalStatus(status)
	return g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Create inserts a goal.
func (s *GoalStore) Create(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = domain.GoalStatusActive
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO goals (
			id, user_id, title, keywords, brands, features, category,
			min_price, max_price, deadline, max_matches, matches_found, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+goalCols,
		g.ID, g.UserID, g.Title, nonNil(g.Keywords), nonNil(g.Brands), nonNil(g.Features),
		string(g.Category), g.MinPrice, g.MaxPrice, g.Deadline, g.MaxMatches, g.MatchesFound,
		string(g.Status),
	)
	created, err := scanGoal(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Goal{}, domain.ErrAlreadyExists
		}
		return domain.Goal{}, fmt.Errorf("postgres: create goal: %w", err)
	}
	return created, nil
}

// GetByID retrieves a goal by its primary key.
func (s *GoalStore) GetByID(ctx context.Context, id string) (domain.Goal, error) {
	g, err := scanGoal(s.pool.QueryRow(ctx, `SELECT `+goalCols+` FROM goals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Goal{}, domain.ErrNotFound
		}
		return domain.Goal{}, fmt.Errorf("postgres: get goal %s: %w", id, err)
	}
	return g, nil
}

// ListActive returns active goals, least recently checked first.
func (s *GoalStore) ListActive(ctx context.Context) ([]domain.Goal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+goalCols+` FROM goals
		WHERE status = 'active'
		ORDER BY last_checked_at ASC NULLS FIRST, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// UpdateStatus sets the goal status.
func (s *GoalStore) UpdateStatus(ctx context.Context, id string, status domain.GoalStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE goals SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update goal status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordCheck adds matches to the goal's counter and stamps the check time.
// A goal that reaches max_matches is completed in the same statement.
func (s *GoalStore) RecordCheck(ctx context.Context, id string, matches int, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE goals SET
			matches_found   = matches_found + $2,
			last_checked_at = $3,
			status = CASE
				WHEN max_matches > 0 AND matches_found + $2 >= max_matches THEN 'completed'
				ELSE status
			END,
			updated_at = NOW()
		WHERE id = $1`, id, matches, checkedAt)
	if err != nil {
		return fmt.Errorf("postgres: record goal check %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.GoalStore = (*GoalStore)(nil)
