package domain

import "time"

// PricePoint is an append-only price observation for a deal.
type PricePoint struct {
	ID        string     `json:"id"`
	DealID    string     `json:"deal_id"`
	Price     float64    `json:"price"`
	Currency  string     `json:"currency"`
	Source    MarketType `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
}
