package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// AmazonAdapter searches Amazon through the structured scraping API.
type AmazonAdapter struct {
	src httpSource
}

// NewAmazonAdapter creates an AmazonAdapter.
func NewAmazonAdapter(opts Options) *AmazonAdapter {
	return &AmazonAdapter{src: newHTTPSource(domain.MarketAmazon, opts)}
}

// Market implements Adapter.
func (a *AmazonAdapter) Market() domain.MarketType { return domain.MarketAmazon }

type amazonResponse struct {
	Results []amazonItem `json:"results"`
}

type amazonItem struct {
	ASIN  string `json:"asin"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Image string `json:"image"`
	Price struct {
		Value    Price  `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	ListPrice    Price   `json:"list_price"`
	Rating       float64 `json:"rating"`
	RatingsTotal int     `json:"ratings_total"`
	Brand        string  `json:"brand"`
	Category     string  `json:"category"`
	Seller       string  `json:"seller"`
	Availability string  `json:"availability"`
	Description  string  `json:"description"`
	Prime        bool    `json:"is_prime"`
}

func (it amazonItem) toRawProduct() domain.RawProduct {
	return domain.RawProduct{
		ExternalID:    it.ASIN,
		Title:         strings.TrimSpace(it.Title),
		Description:   it.Description,
		Price:         it.Price.Value.Float(),
		OriginalPrice: it.ListPrice.Float(),
		Currency:      it.Price.Currency,
		URL:           absoluteURL("https://www.amazon.com", it.URL),
		ImageURL:      it.Image,
		Brand:         it.Brand,
		Category:      it.Category,
		Seller:        it.Seller,
		Rating:        it.Rating,
		ReviewCount:   it.RatingsTotal,
		Availability:  it.Availability,
		Market:        domain.MarketAmazon,
		Metadata:      map[string]any{"prime": it.Prime},
	}
}

// Search implements Adapter.
func (a *AmazonAdapter) Search(ctx context.Context, query string, limit int) ([]domain.RawProduct, error) {
	var resp amazonResponse
	if err := a.src.fetch(ctx, query, limit, &resp); err != nil {
		return nil, fmt.Errorf("provider/amazon: search: %w", err)
	}

	out := make([]domain.RawProduct, 0, len(resp.Results))
	for _, it := range resp.Results {
		out = append(out, it.toRawProduct())
	}
	return truncate(out, limit), nil
}
