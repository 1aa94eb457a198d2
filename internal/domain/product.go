package domain

// RawProduct is one provider-returned candidate. It only lives for the
// duration of a single pipeline invocation.
type RawProduct struct {
	ExternalID    string         `json:"external_id,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Price         float64        `json:"price"`
	OriginalPrice float64        `json:"original_price,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	URL           string         `json:"url"`
	ImageURL      string         `json:"image_url,omitempty"`
	Brand         string         `json:"brand,omitempty"`
	Category      string         `json:"category,omitempty"`
	Seller        string         `json:"seller,omitempty"`
	Rating        float64        `json:"rating,omitempty"`
	ReviewCount   int            `json:"review_count,omitempty"`
	Availability  string         `json:"availability,omitempty"`
	Market        MarketType     `json:"market"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// DiscountPercent returns the discount implied by OriginalPrice, or 0.
func (p RawProduct) DiscountPercent() float64 {
	if p.OriginalPrice <= 0 || p.OriginalPrice <= p.Price {
		return 0
	}
	return (p.OriginalPrice - p.Price) / p.OriginalPrice * 100
}

// ScoredCandidate is a RawProduct that survived filtering, with its
// relevance score and the reasons behind it.
type ScoredCandidate struct {
	RawProduct
	RelevanceScore float64  `json:"relevance_score"`
	ScoreReasons   []string `json:"score_reasons,omitempty"`
}
