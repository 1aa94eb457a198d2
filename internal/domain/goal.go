package domain

import "time"

// GoalStatus represents the lifecycle state of a standing goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPaused    GoalStatus = "paused"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusExpired   GoalStatus = "expired"
)

// Goal is a standing search owned by a user.
type Goal struct {
	ID            string
	UserID        string
	Title         string
	Keywords      []string
	Brands        []string
	Features      []string
	Category      Category
	MinPrice      *float64
	MaxPrice      *float64
	Deadline      *time.Time
	MaxMatches    int
	MatchesFound  int
	Status        GoalStatus
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Exhausted reports whether the goal already found as many matches as it
// asked for. A zero MaxMatches means unlimited.
func (g Goal) Exhausted() bool {
	return g.MaxMatches > 0 && g.MatchesFound >= g.MaxMatches
}

// Remaining returns how many more matches the goal accepts, or -1 when
// unlimited.
func (g Goal) Remaining() int {
	if g.MaxMatches <= 0 {
		return -1
	}
	if r := g.MaxMatches - g.MatchesFound; r > 0 {
		return r
	}
	return 0
}
