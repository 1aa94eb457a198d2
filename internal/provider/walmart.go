package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// WalmartAdapter searches Walmart through the structured scraping API.
type WalmartAdapter struct {
	src httpSource
}

// NewWalmartAdapter creates a WalmartAdapter.
func NewWalmartAdapter(opts Options) *WalmartAdapter {
	return &WalmartAdapter{src: newHTTPSource(domain.MarketWalmart, opts)}
}

// Market implements Adapter.
func (a *WalmartAdapter) Market() domain.MarketType { return domain.MarketWalmart }

type walmartResponse struct {
	Items []walmartItem `json:"items"`
}

type walmartAmount struct {
	Price Price `json:"price"`
}

type walmartItem struct {
	USItemID     string `json:"usItemId"`
	Name         string `json:"name"`
	CanonicalURL string `json:"canonicalUrl"`
	ImageInfo    struct {
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"imageInfo"`
	PriceInfo struct {
		CurrentPrice walmartAmount `json:"currentPrice"`
		WasPrice     walmartAmount `json:"wasPrice"`
	} `json:"priceInfo"`
	AverageRating      float64 `json:"averageRating"`
	NumberOfReviews    int     `json:"numberOfReviews"`
	Brand              string  `json:"brand"`
	Category           string  `json:"category"`
	SellerName         string  `json:"sellerName"`
	AvailabilityStatus string  `json:"availabilityStatus"`
	ShortDescription   string  `json:"shortDescription"`
}

func walmartAvailability(s string) string {
	switch strings.ToUpper(s) {
	case "IN_STOCK":
		return "in_stock"
	case "OUT_OF_STOCK":
		return "out_of_stock"
	default:
		return strings.ToLower(s)
	}
}

func (it walmartItem) toRawProduct() domain.RawProduct {
	return domain.RawProduct{
		ExternalID:    it.USItemID,
		Title:         strings.TrimSpace(it.Name),
		Description:   it.ShortDescription,
		Price:         it.PriceInfo.CurrentPrice.Price.Float(),
		OriginalPrice: it.PriceInfo.WasPrice.Price.Float(),
		Currency:      "USD",
		URL:           absoluteURL("https://www.walmart.com", it.CanonicalURL),
		ImageURL:      it.ImageInfo.ThumbnailURL,
		Brand:         it.Brand,
		Category:      it.Category,
		Seller:        it.SellerName,
		Rating:        it.AverageRating,
		ReviewCount:   it.NumberOfReviews,
		Availability:  walmartAvailability(it.AvailabilityStatus),
		Market:        domain.MarketWalmart,
	}
}

// Search implements Adapter.
func (a *WalmartAdapter) Search(ctx context.Context, query string, limit int) ([]domain.RawProduct, error) {
	var resp walmartResponse
	if err := a.src.fetch(ctx, query, limit, &resp); err != nil {
		return nil, fmt.Errorf("provider/walmart: search: %w", err)
	}

	out := make([]domain.RawProduct, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, it.toRawProduct())
	}
	return truncate(out, limit), nil
}
