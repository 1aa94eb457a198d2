package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/provider"
)

const (
	amazonBody = `{"results":[
		{"asin":"B0TEST","title":" ASUS TUF Gaming Laptop RTX 4060 ","url":"/dp/B0TEST",
		 "price":{"value":"$1,199.99","currency":"USD"},"list_price":1499.99,
		 "rating":4.6,"ratings_total":1250,"brand":"ASUS","category":"Computers","is_prime":true},
		{"asin":"B0SECOND","title":"Second","url":"https://www.amazon.com/dp/B0SECOND","price":{"value":10}}
	]}`
	walmartBody = `{"items":[{"usItemId":"123","name":"HP Laptop","canonicalUrl":"/ip/hp-laptop/123",
		"priceInfo":{"currentPrice":{"price":549},"wasPrice":{"price":"$649.00"}},
		"averageRating":4.1,"numberOfReviews":85,"availabilityStatus":"IN_STOCK"}]}`
	ebayBody = `{"itemSummaries":[{"itemId":"v1|1|0","title":"Dell XPS 13","itemWebUrl":"https://www.ebay.com/itm/1",
		"price":{"value":"899.00","currency":"USD"},"marketingPrice":{"originalPrice":{"value":"1099.00"}},
		"seller":{"username":"shop","feedbackPercentage":"99.0","feedbackScore":5000},
		"categories":[{"categoryName":"Laptops & Netbooks"}],"condition":"New"}]}`
	googleBody = `{"shopping_results":[{"product_id":"g1","title":"Lenovo Legion","link":"https://store.example/legion",
		"price":"$1,349.00","old_price":"$1,599.00","rating":4.5,"reviews":320,"source":"Best Buy"}]}`
)

func newServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for market, body := range bodies {
			if r.URL.Path == "/structured/"+market+"/search" {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAdaptersNormalise(t *testing.T) {
	rq := require.New(t)
	srv := newServer(t, map[string]string{
		"amazon":          amazonBody,
		"walmart":         walmartBody,
		"ebay":            ebayBody,
		"google_shopping": googleBody,
	})
	opts := provider.Options{BaseURL: srv.URL}
	ctx := context.Background()

	testCases := []struct {
		name    string
		adapter provider.Adapter
		check   func(p []domain.RawProduct)
	}{
		{
			name:    "amazon",
			adapter: provider.NewAmazonAdapter(opts),
			check: func(p []domain.RawProduct) {
				rq.Len(p, 2)
				rq.Equal("ASUS TUF Gaming Laptop RTX 4060", p[0].Title)
				rq.InDelta(1199.99, p[0].Price, 1e-9)
				rq.InDelta(1499.99, p[0].OriginalPrice, 1e-9)
				rq.Equal("https://www.amazon.com/dp/B0TEST", p[0].URL)
				rq.Equal(domain.MarketAmazon, p[0].Market)
				rq.Equal(1250, p[0].ReviewCount)
			},
		},
		{
			name:    "walmart",
			adapter: provider.NewWalmartAdapter(opts),
			check: func(p []domain.RawProduct) {
				rq.Len(p, 1)
				rq.InDelta(549.0, p[0].Price, 1e-9)
				rq.InDelta(649.0, p[0].OriginalPrice, 1e-9)
				rq.Equal("https://www.walmart.com/ip/hp-laptop/123", p[0].URL)
				rq.Equal("in_stock", p[0].Availability)
			},
		},
		{
			name:    "ebay",
			adapter: provider.NewEbayAdapter(opts),
			check: func(p []domain.RawProduct) {
				rq.Len(p, 1)
				rq.InDelta(899.0, p[0].Price, 1e-9)
				rq.InDelta(4.95, p[0].Rating, 1e-9)
				rq.Equal("Laptops & Netbooks", p[0].Category)
			},
		},
		{
			name:    "google_shopping",
			adapter: provider.NewGoogleShoppingAdapter(opts),
			check: func(p []domain.RawProduct) {
				rq.Len(p, 1)
				rq.InDelta(1349.0, p[0].Price, 1e-9)
				rq.InDelta(1599.0, p[0].OriginalPrice, 1e-9)
				rq.Equal("Best Buy", p[0].Seller)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(*testing.T) {
			products, err := tc.adapter.Search(ctx, "laptop", 10)
			rq.NoError(err)
			tc.check(products)
		})
	}
}

func TestAdapterTruncatesToLimit(t *testing.T) {
	rq := require.New(t)
	srv := newServer(t, map[string]string{"amazon": amazonBody})

	products, err := provider.NewAmazonAdapter(provider.Options{BaseURL: srv.URL}).Search(context.Background(), "laptop", 1)
	rq.NoError(err)
	rq.Len(products, 1)
}

func TestAdapterSendsQueryAndKey(t *testing.T) {
	rq := require.New(t)
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := provider.NewAmazonAdapter(provider.Options{BaseURL: srv.URL, APIKey: "k"}).
		Search(context.Background(), "gaming laptop", 5)
	rq.NoError(err)
	rq.Equal("gaming laptop", gotQuery)
	rq.Equal("Bearer k", gotAuth)
}

func TestAdapterTimeout(t *testing.T) {
	rq := require.New(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a := provider.NewEbayAdapter(provider.Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := a.Search(context.Background(), "laptop", 5)
	rq.ErrorIs(err, domain.ErrProviderTimeout)
	rq.Less(time.Since(start), time.Second)
}

func TestAdapterHTTPErrors(t *testing.T) {
	rq := require.New(t)

	testCases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: domain.ErrRateLimited},
		{name: "unauthorized", status: http.StatusUnauthorized, want: domain.ErrUnauthorized},
		{name: "server error", status: http.StatusBadGateway, want: domain.ErrProviderUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(*testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := provider.NewWalmartAdapter(provider.Options{BaseURL: srv.URL}).Search(context.Background(), "x", 5)
			rq.ErrorIs(err, tc.want)
		})
	}
}

func TestAdapterMalformedBody(t *testing.T) {
	rq := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	}))
	defer srv.Close()

	_, err := provider.NewAmazonAdapter(provider.Options{BaseURL: srv.URL}).Search(context.Background(), "x", 5)
	rq.Error(err)
	rq.True(strings.Contains(err.Error(), "decode"))
}

func TestParsePrice(t *testing.T) {
	rq := require.New(t)

	testCases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "$1,199.99", want: 1199.99, ok: true},
		{in: "USD 45", want: 45, ok: true},
		{in: "£12.50 - £20.00", want: 12.5, ok: true},
		{in: "1199", want: 1199, ok: true},
		{in: "free", ok: false},
		{in: "$0.00", ok: false},
		{in: "", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(*testing.T) {
			got, ok := provider.ParsePrice(tc.in)
			rq.Equal(tc.ok, ok)
			rq.InDelta(tc.want, got, 1e-9)
		})
	}
}

func TestBuild(t *testing.T) {
	rq := require.New(t)

	adapters, err := provider.Build([]provider.MarketOptions{
		{Market: domain.MarketAmazon, Enabled: true},
		{Market: domain.MarketWalmart, Enabled: false},
		{Market: domain.MarketGoogleShopping, Enabled: true},
	})
	rq.NoError(err)
	rq.Len(adapters, 2)
	rq.Equal(domain.MarketAmazon, adapters[0].Market())
	rq.Equal(domain.MarketGoogleShopping, adapters[1].Market())

	_, err = provider.Build([]provider.MarketOptions{{Market: "etsy", Enabled: true}})
	rq.Error(err)

	rq.Equal(15*time.Second, provider.TimeoutFor(domain.MarketGoogleShopping))
	rq.Equal(10*time.Second, provider.TimeoutFor(domain.MarketEbay))
}
