package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
	"github.com/alanyoungcy/dealscout/internal/provider"
)

// DefaultGlobalTimeout bounds a whole fan-out regardless of per-market
// timeouts.
const DefaultGlobalTimeout = 15 * time.Second

// Dispatcher runs a Plan against the marketplaces. It never fails as a
// whole: branches that error or time out are reported in Result.Failed.
type Dispatcher interface {
	Dispatch(ctx context.Context, plan Plan) Result
}

// Result is the merged output of one fan-out.
type Result struct {
	// Products holds every candidate, grouped in market dispatch order.
	Products []domain.RawProduct
	ByMarket map[domain.MarketType][]domain.RawProduct
	Failed   []domain.MarketType
	Cached   bool
}

// Empty reports whether no branch returned anything.
func (r Result) Empty() bool {
	return len(r.Products) == 0
}

// OrchestratorConfig tunes the fan-out.
type OrchestratorConfig struct {
	GlobalTimeout time.Duration
	// MarketTimeouts overrides provider.TimeoutFor per market.
	MarketTimeouts map[domain.MarketType]time.Duration
	// ResultLimit is the per-market candidate limit.
	ResultLimit int
}

// Orchestrator fans a Plan out to every adapter concurrently.
type Orchestrator struct {
	adapters []provider.Adapter
	cfg      OrchestratorConfig
	logger   *slog.Logger
}

var _ Dispatcher = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator. Adapters are merged in the order
// given.
func NewOrchestrator(adapters []provider.Adapter, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = DefaultGlobalTimeout
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = 20
	}
	return &Orchestrator{
		adapters: adapters,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Markets returns the markets the orchestrator dispatches to, in order.
func (o *Orchestrator) Markets() []domain.MarketType {
	out := make([]domain.MarketType, len(o.adapters))
	for i, a := range o.adapters {
		out[i] = a.Market()
	}
	return out
}

func (o *Orchestrator) timeoutFor(m domain.MarketType) time.Duration {
	if d, ok := o.cfg.MarketTimeouts[m]; ok && d > 0 {
		return d
	}
	return provider.TimeoutFor(m)
}

type branch struct {
	market   domain.MarketType
	products []domain.RawProduct
	err      error
}

// Dispatch runs every selected adapter and waits until all have answered
// or the global deadline passes, whichever comes first. Branches still
// running at the deadline are abandoned and counted as failed.
func (o *Orchestrator) Dispatch(ctx context.Context, plan Plan) Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	selected := o.adapters
	if len(plan.Markets) > 0 {
		selected = slices.DeleteFunc(slices.Clone(o.adapters), func(a provider.Adapter) bool {
			return !slices.Contains(plan.Markets, a.Market())
		})
	}

	// Buffered so abandoned branches never block after we stop reading.
	results := make(chan branch, len(selected))
	var g errgroup.Group
	for _, a := range selected {
		query := plan.Queries[a.Market()]
		if query == "" {
			query = plan.RawQuery
		}
		g.Go(func() error {
			products, err := o.call(ctx, a, query)
			results <- branch{market: a.Market(), products: products, err: err}
			return nil
		})
	}

	got := make(map[domain.MarketType]branch, len(selected))
	timedOut := false
collect:
	for len(got) < len(selected) {
		select {
		case b := <-results:
			got[b.market] = b
		case <-ctx.Done():
			timedOut = true
			break collect
		}
	}
	if !timedOut {
		_ = g.Wait()
	}

	res := Result{ByMarket: make(map[domain.MarketType][]domain.RawProduct, len(selected))}
	for _, a := range selected {
		m := a.Market()
		b, ok := got[m]
		switch {
		case !ok:
			o.logger.WarnContext(ctx, "market abandoned at global deadline", slog.String("market", string(m)))
			metrics.ProviderRequests.WithLabelValues(string(m), "timeout").Inc()
			res.Failed = append(res.Failed, m)
		case b.err != nil:
			o.logger.WarnContext(ctx, "market search failed",
				slog.String("market", string(m)),
				slog.String("error", b.err.Error()),
			)
			res.Failed = append(res.Failed, m)
		default:
			res.ByMarket[m] = b.products
			res.Products = append(res.Products, b.products...)
		}
	}

	o.logger.DebugContext(ctx, "fan-out complete",
		slog.Int("markets", len(selected)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("products", len(res.Products)),
	)
	return res
}

// call runs one adapter under its own deadline. Adapters that ignore ctx
// are abandoned when the deadline fires; panics become errors.
func (o *Orchestrator) call(ctx context.Context, a provider.Adapter, query string) ([]domain.RawProduct, error) {
	m := a.Market()
	ctx, cancel := context.WithTimeout(ctx, o.timeoutFor(m))
	defer cancel()

	type outcome struct {
		products []domain.RawProduct
		err      error
		panicked bool
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %s: panic: %v", domain.ErrProviderUnavailable, m, r), panicked: true}
			}
		}()
		products, err := a.Search(ctx, query, o.cfg.ResultLimit)
		done <- outcome{products: products, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: fmt.Errorf("%w: %s", domain.ErrProviderTimeout, m)}
	}
	metrics.ProviderLatency.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())

	label := "ok"
	switch {
	case out.panicked:
		label = "panic"
	case errors.Is(out.err, domain.ErrProviderTimeout):
		label = "timeout"
	case out.err != nil:
		label = "error"
	case len(out.products) == 0:
		label = "empty"
	}
	metrics.ProviderRequests.WithLabelValues(string(m), label).Inc()

	if out.err != nil {
		return nil, out.err
	}
	for i := range out.products {
		if out.products[i].Market == "" {
			out.products[i].Market = m
		}
	}
	return out.products, nil
}
