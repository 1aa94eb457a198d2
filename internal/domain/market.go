package domain

import "time"

// MarketType identifies one external marketplace integration.
type MarketType string

const (
	MarketAmazon         MarketType = "amazon"
	MarketWalmart        MarketType = "walmart"
	MarketEbay           MarketType = "ebay"
	MarketGoogleShopping MarketType = "google_shopping"
)

// MarketTypes lists every supported marketplace in dispatch-merge order.
var MarketTypes = []MarketType{
	MarketAmazon,
	MarketWalmart,
	MarketEbay,
	MarketGoogleShopping,
}

// Valid reports whether t is one of the supported marketplaces.
func (t MarketType) Valid() bool {
	for _, m := range MarketTypes {
		if m == t {
			return true
		}
	}
	return false
}

// Market is the stored reference row for a marketplace. Deals point at it
// through MarketID.
type Market struct {
	ID        string
	Type      MarketType
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
