package provider

import (
	"fmt"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// Constructor builds the Adapter of one marketplace.
type Constructor func(Options) Adapter

// registry is the closed set of supported marketplaces.
var registry = map[domain.MarketType]Constructor{
	domain.MarketAmazon:         func(o Options) Adapter { return NewAmazonAdapter(o) },
	domain.MarketWalmart:        func(o Options) Adapter { return NewWalmartAdapter(o) },
	domain.MarketEbay:           func(o Options) Adapter { return NewEbayAdapter(o) },
	domain.MarketGoogleShopping: func(o Options) Adapter { return NewGoogleShoppingAdapter(o) },
}

// MarketOptions enables one marketplace with its options.
type MarketOptions struct {
	Market  domain.MarketType
	Enabled bool
	Options Options
}

// Build returns the adapters of every enabled market in the order given.
// An unknown market type is a configuration error.
func Build(markets []MarketOptions) ([]Adapter, error) {
	var out []Adapter
	for _, m := range markets {
		ctor, ok := registry[m.Market]
		if !ok {
			return nil, fmt.Errorf("provider: unknown market %q", m.Market)
		}
		if !m.Enabled {
			continue
		}
		out = append(out, ctor(m.Options))
	}
	return out, nil
}

var (
	_ Adapter = (*AmazonAdapter)(nil)
	_ Adapter = (*WalmartAdapter)(nil)
	_ Adapter = (*EbayAdapter)(nil)
	_ Adapter = (*GoogleShoppingAdapter)(nil)
)
