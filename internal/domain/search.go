package domain

import "time"

// SortOrder selects how search results are ordered.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortNewest    SortOrder = "newest"
	SortScore     SortOrder = "score"
)

// SearchRequest is an ad-hoc deal search issued by a user. MarketIDs holds
// marketplace type names ("amazon", "ebay", ...) that restrict the search.
type SearchRequest struct {
	UserID         string    `json:"-"`
	Query          string    `json:"query" validate:"required,max=200"`
	Category       string    `json:"category,omitempty"`
	MinPrice       *float64  `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice       *float64  `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	MarketIDs      []string  `json:"market_ids,omitempty" validate:"dive,oneof=amazon walmart ebay google_shopping"`
	Brands         []string  `json:"brands,omitempty"`
	Features       []string  `json:"features,omitempty"`
	Sort           SortOrder `json:"sort" validate:"omitempty,oneof=relevance price_asc price_desc newest score"`
	Offset         int       `json:"offset" validate:"gte=0"`
	Limit          int       `json:"limit" validate:"gte=1,lte=100"`
	IncludeExpired bool      `json:"include_expired"`
}

// DealView is the caller-facing projection of a Deal.
type DealView struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	URL             string     `json:"url"`
	ImageURL        string     `json:"image_url,omitempty"`
	Price           float64    `json:"price"`
	OriginalPrice   *float64   `json:"original_price,omitempty"`
	DiscountPercent float64    `json:"discount_percent,omitempty"`
	Currency        string     `json:"currency"`
	Source          MarketType `json:"source"`
	Category        Category   `json:"category"`
	Seller          SellerInfo `json:"seller"`
	Availability    string     `json:"availability"`
	Status          DealStatus `json:"status"`
	Score           float64    `json:"score"`
	FoundAt         time.Time  `json:"found_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// View projects d onto DealView.
func (d Deal) View() DealView {
	return DealView{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		URL:             d.URL,
		ImageURL:        d.ImageURL,
		Price:           d.Price,
		OriginalPrice:   d.OriginalPrice,
		DiscountPercent: d.DiscountPercent(),
		Currency:        d.Currency,
		Source:          d.Source,
		Category:        d.Category,
		Seller:          d.Seller,
		Availability:    d.Availability,
		Status:          d.Status,
		Score:           d.Score,
		FoundAt:         d.FoundAt,
		ExpiresAt:       d.ExpiresAt,
	}
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Deals            []DealView     `json:"deals"`
	Total            int            `json:"total"`
	Page             int            `json:"page"`
	HasMore          bool           `json:"has_more"`
	FiltersApplied   map[string]any `json:"filters_applied"`
	RealtimeScraping bool           `json:"realtime_scraping"`
}
