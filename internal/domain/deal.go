package domain

import "time"

// DealStatus represents the lifecycle state of a deal.
type DealStatus string

const (
	DealStatusActive  DealStatus = "active"
	DealStatusExpired DealStatus = "expired"
	DealStatusSoldOut DealStatus = "sold_out"
	DealStatusInvalid DealStatus = "invalid"
	DealStatusDeleted DealStatus = "deleted"
)

// UnknownSeller is the placeholder seller name for listings that carry none.
const UnknownSeller = "Unknown Seller"

// SellerInfo describes who is selling a listing.
type SellerInfo struct {
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// Deal is a persisted, discovered marketplace offer. The (URL, GoalID) pair
// is unique; a nil GoalID scopes the deal to ad-hoc searches.
type Deal struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	GoalID        *string        `json:"goal_id,omitempty"`
	MarketID      string         `json:"market_id"`
	ExternalID    string         `json:"external_id,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	URL           string         `json:"url"`
	ImageURL      string         `json:"image_url,omitempty"`
	Price         float64        `json:"price"`
	OriginalPrice *float64       `json:"original_price,omitempty"`
	Currency      string         `json:"currency"`
	Source        MarketType     `json:"source"`
	Category      Category       `json:"category"`
	Seller        SellerInfo     `json:"seller"`
	Availability  string         `json:"availability"`
	Status        DealStatus     `json:"status"`
	FoundAt       time.Time      `json:"found_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	LastCheckedAt time.Time      `json:"last_checked_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Score         float64        `json:"score"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// GoalKey returns the goal id or "" for ad-hoc deals. It is the second half
// of the deal's natural key.
func (d Deal) GoalKey() string {
	if d.GoalID == nil {
		return ""
	}
	return *d.GoalID
}

// DiscountPercent returns the discount off the original price in percent,
// or 0 when there is no valid original price.
func (d Deal) DiscountPercent() float64 {
	if d.OriginalPrice == nil || *d.OriginalPrice <= d.Price || *d.OriginalPrice <= 0 {
		return 0
	}
	return (*d.OriginalPrice - d.Price) / *d.OriginalPrice * 100
}

// DealUpdate carries the mutable fields of a deal. Nil fields are left
// untouched.
type DealUpdate struct {
	Status        *DealStatus
	Price         *float64
	Score         *float64
	LastCheckedAt *time.Time
	Availability  *string
}

// DealBasic is the compact projection cached alongside the full payload.
type DealBasic struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	URL      string     `json:"url"`
	Price    float64    `json:"price"`
	Currency string     `json:"currency"`
	Source   MarketType `json:"source"`
	Status   DealStatus `json:"status"`
}

// Basic projects d onto DealBasic.
func (d Deal) Basic() DealBasic {
	return DealBasic{
		ID:       d.ID,
		Title:    d.Title,
		URL:      d.URL,
		Price:    d.Price,
		Currency: d.Currency,
		Source:   d.Source,
		Status:   d.Status,
	}
}
