package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// GoogleShoppingAdapter searches Google Shopping, which aggregates offers
// from many stores.
type GoogleShoppingAdapter struct {
	src httpSource
}

// NewGoogleShoppingAdapter creates a GoogleShoppingAdapter.
func NewGoogleShoppingAdapter(opts Options) *GoogleShoppingAdapter {
	return &GoogleShoppingAdapter{src: newHTTPSource(domain.MarketGoogleShopping, opts)}
}

// Market implements Adapter.
func (a *GoogleShoppingAdapter) Market() domain.MarketType { return domain.MarketGoogleShopping }

type googleShoppingResponse struct {
	ShoppingResults []googleShoppingItem `json:"shopping_results"`
}

type googleShoppingItem struct {
	ProductID      string  `json:"product_id"`
	Title          string  `json:"title"`
	Link           string  `json:"link"`
	ProductLink    string  `json:"product_link"`
	Thumbnail      string  `json:"thumbnail"`
	Price          Price   `json:"price"`
	ExtractedPrice Price   `json:"extracted_price"`
	OldPrice       Price   `json:"old_price"`
	Rating         float64 `json:"rating"`
	Reviews        int     `json:"reviews"`
	Source         string  `json:"source"`
	Category       string  `json:"category"`
	Snippet        string  `json:"snippet"`
	Delivery       string  `json:"delivery"`
}

func (it googleShoppingItem) toRawProduct() domain.RawProduct {
	price := it.ExtractedPrice.Float()
	if price <= 0 {
		price = it.Price.Float()
	}
	link := it.Link
	if link == "" {
		link = it.ProductLink
	}
	return domain.RawProduct{
		ExternalID:    it.ProductID,
		Title:         strings.TrimSpace(it.Title),
		Description:   it.Snippet,
		Price:         price,
		OriginalPrice: it.OldPrice.Float(),
		Currency:      "USD",
		URL:           link,
		ImageURL:      it.Thumbnail,
		Category:      it.Category,
		Seller:        it.Source,
		Rating:        it.Rating,
		ReviewCount:   it.Reviews,
		Availability:  "in_stock",
		Market:        domain.MarketGoogleShopping,
		Metadata:      map[string]any{"delivery": it.Delivery},
	}
}

// Search implements Adapter.
func (a *GoogleShoppingAdapter) Search(ctx context.Context, query string, limit int) ([]domain.RawProduct, error) {
	var resp googleShoppingResponse
	if err := a.src.fetch(ctx, query, limit, &resp); err != nil {
		return nil, fmt.Errorf("provider/google_shopping: search: %w", err)
	}

	out := make([]domain.RawProduct, 0, len(resp.ShoppingResults))
	for _, it := range resp.ShoppingResults {
		out = append(out, it.toRawProduct())
	}
	return truncate(out, limit), nil
}
