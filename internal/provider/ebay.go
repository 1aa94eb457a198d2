package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// EbayAdapter searches eBay through the structured scraping API, which
// mirrors the Browse API item summary shape.
type EbayAdapter struct {
	src httpSource
}

// NewEbayAdapter creates an EbayAdapter.
func NewEbayAdapter(opts Options) *EbayAdapter {
	return &EbayAdapter{src: newHTTPSource(domain.MarketEbay, opts)}
}

// Market implements Adapter.
func (a *EbayAdapter) Market() domain.MarketType { return domain.MarketEbay }

type ebayResponse struct {
	ItemSummaries []ebayItem `json:"itemSummaries"`
}

type ebayAmount struct {
	Value    Price  `json:"value"`
	Currency string `json:"currency"`
}

type ebayItem struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	ItemWebURL string `json:"itemWebUrl"`
	Image      struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Price          ebayAmount `json:"price"`
	MarketingPrice struct {
		OriginalPrice ebayAmount `json:"originalPrice"`
	} `json:"marketingPrice"`
	Seller struct {
		Username           string `json:"username"`
		FeedbackPercentage string `json:"feedbackPercentage"`
		FeedbackScore      int    `json:"feedbackScore"`
	} `json:"seller"`
	Categories []struct {
		CategoryName string `json:"categoryName"`
	} `json:"categories"`
	Condition        string `json:"condition"`
	ShortDescription string `json:"shortDescription"`
}

func (it ebayItem) toRawProduct() domain.RawProduct {
	// Seller feedback percentage is mapped onto a five star scale.
	var rating float64
	if pct, err := strconv.ParseFloat(it.Seller.FeedbackPercentage, 64); err == nil {
		rating = pct / 20
	}
	var category string
	if len(it.Categories) > 0 {
		category = it.Categories[0].CategoryName
	}
	return domain.RawProduct{
		ExternalID:    it.ItemID,
		Title:         strings.TrimSpace(it.Title),
		Description:   it.ShortDescription,
		Price:         it.Price.Value.Float(),
		OriginalPrice: it.MarketingPrice.OriginalPrice.Value.Float(),
		Currency:      it.Price.Currency,
		URL:           it.ItemWebURL,
		ImageURL:      it.Image.ImageURL,
		Category:      category,
		Seller:        it.Seller.Username,
		Rating:        rating,
		ReviewCount:   it.Seller.FeedbackScore,
		Availability:  "in_stock",
		Market:        domain.MarketEbay,
		Metadata:      map[string]any{"condition": it.Condition},
	}
}

// Search implements Adapter.
func (a *EbayAdapter) Search(ctx context.Context, query string, limit int) ([]domain.RawProduct, error) {
	var resp ebayResponse
	if err := a.src.fetch(ctx, query, limit, &resp); err != nil {
		return nil, fmt.Errorf("provider/ebay: search: %w", err)
	}

	out := make([]domain.RawProduct, 0, len(resp.ItemSummaries))
	for _, it := range resp.ItemSummaries {
		out = append(out, it.toRawProduct())
	}
	return truncate(out, limit), nil
}
