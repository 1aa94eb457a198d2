// Package scrape is the lower-fidelity HTML path used when the structured
// marketplace API fails. It reads public search pages and single product
// pages with colly.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/provider"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; dealscout/1.0)"

// Selectors locate listing fields on a search results page.
type Selectors struct {
	Item   string
	Title  string
	Price  string
	Link   string
	Image  string
	IDAttr string
}

// Site describes one marketplace's public search page. SearchURL contains a
// single %s that receives the escaped query.
type Site struct {
	SearchURL string
	Selectors Selectors
}

// DefaultSites returns the public search pages of the supported markets.
func DefaultSites() map[domain.MarketType]Site {
	return map[domain.MarketType]Site{
		domain.MarketAmazon: {
			SearchURL: "https://www.amazon.com/s?k=%s",
			Selectors: Selectors{
				Item:   "div[data-component-type='s-search-result']",
				Title:  "h2 span",
				Price:  "span.a-price > span.a-offscreen",
				Link:   "h2 a",
				Image:  "img.s-image",
				IDAttr: "data-asin",
			},
		},
		domain.MarketWalmart: {
			SearchURL: "https://www.walmart.com/search?q=%s",
			Selectors: Selectors{
				Item:   "div[data-item-id]",
				Title:  "span[data-automation-id='product-title']",
				Price:  "div[data-automation-id='product-price'] span",
				Link:   "a[link-identifier]",
				Image:  "img[data-testid='productTileImage']",
				IDAttr: "data-item-id",
			},
		},
		domain.MarketEbay: {
			SearchURL: "https://www.ebay.com/sch/i.html?_nkw=%s",
			Selectors: Selectors{
				Item:  "li.s-item",
				Title: ".s-item__title",
				Price: ".s-item__price",
				Link:  "a.s-item__link",
				Image: ".s-item__image-img",
			},
		},
		domain.MarketGoogleShopping: {
			SearchURL: "https://www.google.com/search?tbm=shop&q=%s",
			Selectors: Selectors{
				Item:  "div.sh-dgr__content",
				Title: "h3",
				Price: "span.a8Pemb",
				Link:  "a",
				Image: "img",
			},
		},
	}
}

// Scraper fetches marketplace pages with a fresh colly collector per call.
type Scraper struct {
	sites     map[domain.MarketType]Site
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout bounds each page fetch.
func WithTimeout(d time.Duration) Option { return func(s *Scraper) { s.timeout = d } }

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option { return func(s *Scraper) { s.userAgent = ua } }

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option { return func(s *Scraper) { s.transport = rt } }

// New creates a Scraper for sites.
func New(sites map[domain.MarketType]Site, logger *slog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		sites:     sites,
		userAgent: defaultUserAgent,
		timeout:   provider.DefaultTimeout,
		transport: http.DefaultTransport,
		logger:    logger.With(slog.String("component", "scraper")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ctxTransport binds every colly request to the caller's context.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(r.WithContext(t.ctx))
}

func (s *Scraper) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(s.userAgent))
	c.SetRequestTimeout(s.timeout)
	c.WithTransport(ctxTransport{ctx: ctx, base: s.transport})
	return c
}

// Search scrapes the public search page of market. Listings without a
// parseable price or title are skipped.
func (s *Scraper) Search(ctx context.Context, market domain.MarketType, query string, limit int) ([]domain.RawProduct, error) {
	site, ok := s.sites[market]
	if !ok {
		return nil, fmt.Errorf("scrape: no search page for market %q", market)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		products []domain.RawProduct
		visitErr error
	)
	sel := site.Selectors
	c := s.collector(ctx)

	c.OnHTML(sel.Item, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.ChildText(sel.Title))
		price, ok := provider.ParsePrice(e.ChildText(sel.Price))
		if title == "" || !ok {
			return
		}
		link := e.ChildAttr(sel.Link, "href")
		p := domain.RawProduct{
			Title:    title,
			Price:    price,
			Currency: "USD",
			URL:      e.Request.AbsoluteURL(link),
			ImageURL: e.ChildAttr(sel.Image, "src"),
			Market:   market,
			Metadata: map[string]any{"scraped": true},
		}
		if sel.IDAttr != "" {
			p.ExternalID = e.Attr(sel.IDAttr)
		}
		mu.Lock()
		defer mu.Unlock()
		if limit <= 0 || len(products) < limit {
			products = append(products, p)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		visitErr = err
	})

	target := fmt.Sprintf(site.SearchURL, url.QueryEscape(query))
	if err := c.Visit(target); err != nil && visitErr == nil {
		visitErr = err
	}
	c.Wait()

	if visitErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("scrape: search %s: %w: %w", market, domain.ErrProviderTimeout, visitErr)
		}
		return nil, fmt.Errorf("scrape: search %s: %w", market, visitErr)
	}

	s.logger.DebugContext(ctx, "scraped search page",
		slog.String("market", string(market)),
		slog.Int("products", len(products)),
	)
	return products, nil
}

// Product scrapes a single product page, reading JSON-LD Product data first
// and OpenGraph price tags second. It returns domain.ErrNotFound when the
// page carries no price.
func (s *Scraper) Product(ctx context.Context, pageURL string) (domain.RawProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		p        domain.RawProduct
		ldFound  bool
		visitErr error
	)
	p.URL = pageURL
	c := s.collector(ctx)

	c.OnHTML(`script[type="application/ld+json"]`, func(e *colly.HTMLElement) {
		ld, ok := parseLDProduct([]byte(e.Text))
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ldFound {
			return
		}
		ldFound = true
		p.Title = ld.Name
		p.Price = ld.Price
		p.Currency = ld.Currency
		p.Availability = ld.Availability
		p.Brand = ld.Brand
	})
	c.OnHTML("meta", func(e *colly.HTMLElement) {
		prop := e.Attr("property")
		content := strings.TrimSpace(e.Attr("content"))
		mu.Lock()
		defer mu.Unlock()
		switch prop {
		case "og:title":
			if p.Title == "" {
				p.Title = content
			}
		case "og:image":
			p.ImageURL = content
		case "product:price:amount", "og:price:amount":
			if p.Price <= 0 {
				if v, ok := provider.ParsePrice(content); ok {
					p.Price = v
				}
			}
		case "product:price:currency", "og:price:currency":
			if p.Currency == "" {
				p.Currency = content
			}
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		visitErr = err
	})

	if err := c.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = err
	}
	c.Wait()

	if visitErr != nil {
		if ctx.Err() != nil {
			return domain.RawProduct{}, fmt.Errorf("scrape: product %s: %w: %w", pageURL, domain.ErrProviderTimeout, visitErr)
		}
		return domain.RawProduct{}, fmt.Errorf("scrape: product %s: %w", pageURL, visitErr)
	}
	if p.Price <= 0 {
		return domain.RawProduct{}, fmt.Errorf("scrape: product %s: price %w", pageURL, domain.ErrNotFound)
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	return p, nil
}

type ldProduct struct {
	Name         string
	Brand        string
	Price        float64
	Currency     string
	Availability string
}

type ldOffer struct {
	Price         provider.Price `json:"price"`
	LowPrice      provider.Price `json:"lowPrice"`
	PriceCurrency string         `json:"priceCurrency"`
	Availability  string         `json:"availability"`
}

type ldNode struct {
	Type   json.RawMessage `json:"@type"`
	Name   string          `json:"name"`
	Brand  json.RawMessage `json:"brand"`
	Offers json.RawMessage `json:"offers"`
	Graph  []ldNode        `json:"@graph"`
}

func (n ldNode) isProduct() bool {
	var one string
	if json.Unmarshal(n.Type, &one) == nil {
		return one == "Product"
	}
	var many []string
	if json.Unmarshal(n.Type, &many) == nil {
		for _, t := range many {
			if t == "Product" {
				return true
			}
		}
	}
	return false
}

var errNoOffer = errors.New("no offer")

func (n ldNode) offer() (ldOffer, error) {
	var one ldOffer
	if json.Unmarshal(n.Offers, &one) == nil && (one.Price > 0 || one.LowPrice > 0) {
		return one, nil
	}
	var many []ldOffer
	if json.Unmarshal(n.Offers, &many) == nil {
		for _, o := range many {
			if o.Price > 0 || o.LowPrice > 0 {
				return o, nil
			}
		}
	}
	return ldOffer{}, errNoOffer
}

func (n ldNode) brand() string {
	var name string
	if json.Unmarshal(n.Brand, &name) == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(n.Brand, &obj) == nil {
		return obj.Name
	}
	return ""
}

// parseLDProduct finds the first Product node with a priced offer in a
// JSON-LD document, which may be an object, an array or an @graph.
func parseLDProduct(data []byte) (ldProduct, bool) {
	var nodes []ldNode
	var single ldNode
	if err := json.Unmarshal(data, &single); err == nil {
		nodes = append(nodes, single)
		nodes = append(nodes, single.Graph...)
	} else if err := json.Unmarshal(data, &nodes); err != nil {
		return ldProduct{}, false
	}

	for _, n := range nodes {
		if !n.isProduct() {
			continue
		}
		o, err := n.offer()
		if err != nil {
			continue
		}
		price := o.Price.Float()
		if price <= 0 {
			price = o.LowPrice.Float()
		}
		avail := o.Availability
		if i := strings.LastIndex(avail, "/"); i >= 0 {
			avail = avail[i+1:]
		}
		switch strings.ToLower(avail) {
		case "instock":
			avail = "in_stock"
		case "outofstock", "soldout":
			avail = "out_of_stock"
		}
		return ldProduct{
			Name:         n.Name,
			Brand:        n.brand(),
			Price:        price,
			Currency:     o.PriceCurrency,
			Availability: strings.ToLower(avail),
		}, true
	}
	return ldProduct{}, false
}
