// Package provider normalises marketplace search APIs into domain.RawProduct.
// Each marketplace has its own Adapter; Registry maps market types to them.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// Default per-call timeouts. google_shopping aggregates other stores and is
// the slow one.
const (
	DefaultTimeout     = 10 * time.Second
	SlowMarketTimeout  = 15 * time.Second
	maxResponseBytes   = 4 << 20
	defaultResultLimit = 20
)

// Adapter searches one marketplace. Search must honour ctx and return an
// error rather than hang.
type Adapter interface {
	Market() domain.MarketType
	Search(ctx context.Context, query string, limit int) ([]domain.RawProduct, error)
}

// Options configures an HTTP adapter.
type Options struct {
	// BaseURL is the structured scraping API root; adapters call
	// {BaseURL}/structured/<market>/search.
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// httpSource is the transport shared by the marketplace adapters.
type httpSource struct {
	market     domain.MarketType
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func newHTTPSource(market domain.MarketType, opts Options) httpSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = TimeoutFor(market)
	}
	hc := opts.HTTPClient
	if hc == nil {
		// Backstop only; the per-call context deadline fires first.
		hc = &http.Client{Timeout: timeout + time.Second}
	}
	return httpSource{
		market:     market,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		timeout:    timeout,
		httpClient: hc,
	}
}

// TimeoutFor returns the default per-call timeout of a market.
func TimeoutFor(m domain.MarketType) time.Duration {
	if m == domain.MarketGoogleShopping {
		return SlowMarketTimeout
	}
	return DefaultTimeout
}

// fetch performs the search call and decodes the JSON body into out.
func (s httpSource) fetch(ctx context.Context, query string, limit int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultResultLimit
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/structured/%s/search?%s", s.baseURL, s.market, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classify(ctx, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, snippet)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, snippet)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrProviderUnavailable, statusCode, snippet)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, snippet)
	}
}

func truncate(products []domain.RawProduct, limit int) []domain.RawProduct {
	if limit > 0 && len(products) > limit {
		return products[:limit]
	}
	return products
}

// absoluteURL resolves a possibly relative listing link against base.
func absoluteURL(base, link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	b, err := url.Parse(base)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return b.ResolveReference(ref).String()
}
