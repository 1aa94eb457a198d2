// Package monitor runs the periodic background sweep: it expires stale
// deals, re-runs discovery for standing goals and refreshes prices.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dealscout/internal/analysis"
	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/metrics"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/service"
)

// TickLockKey guards a tick across replicas.
const TickLockKey = "monitor:tick"

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("monitor: already running")

// Notifier delivers user notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, eventType, userID string, payload map[string]any)
}

// Scraper is the lower-fidelity HTML path used when the structured
// providers fail and for single-page price checks.
type Scraper interface {
	Search(ctx context.Context, market domain.MarketType, query string, limit int) ([]domain.RawProduct, error)
	Product(ctx context.Context, pageURL string) (domain.RawProduct, error)
}

// Config tunes the loop. Zero values take the defaults below.
type Config struct {
	Interval          time.Duration
	ExpireBatch       int
	RefreshAge        time.Duration
	RefreshBatch      int
	NotifyDedupWindow time.Duration
	ScrapeLimit       int
	MaxResults        int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.ExpireBatch <= 0 {
		c.ExpireBatch = 500
	}
	if c.RefreshAge <= 0 {
		c.RefreshAge = 6 * time.Hour
	}
	if c.RefreshBatch <= 0 {
		c.RefreshBatch = 50
	}
	if c.NotifyDedupWindow <= 0 {
		c.NotifyDedupWindow = 24 * time.Hour
	}
	if c.ScrapeLimit <= 0 {
		c.ScrapeLimit = 10
	}
	if c.MaxResults <= 0 {
		c.MaxResults = search.DefaultMaxResults
	}
}

// Deps are the collaborators of a Monitor. Scraper, Notifier, Bus, Locks,
// Cache and Archiver are optional.
type Deps struct {
	Goals      domain.GoalStore
	Deals      domain.DealStore
	Prices     domain.PriceStore
	Planner    *search.Planner
	Dispatcher search.Dispatcher
	Persister  service.Persister
	Scraper    Scraper
	Notifier   Notifier
	Bus        domain.EventBus
	Locks      domain.LockManager
	Cache      domain.CacheStore
	Archiver   *Archiver
	// ArchiveCron schedules the archiver; empty disables it.
	ArchiveCron string
	// Markets are the marketplaces tried by the scraper fallback.
	Markets []domain.MarketType
	Clock   func() time.Time
}

// Report summarises one tick.
type Report struct {
	Skipped         bool
	Expired         int
	GoalsChecked    int
	GoalsExpired    int
	Matches         int
	PricesRefreshed int
	PriceDrops      int
}

// Monitor is the explicitly owned background sweep.
type Monitor struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	trigger chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor.
func New(deps Deps, cfg Config, logger *slog.Logger) *Monitor {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if len(deps.Markets) == 0 {
		deps.Markets = domain.MarketTypes
	}
	return &Monitor{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "monitor")),
		trigger: make(chan struct{}, 1),
	}
}

// Start runs the loop in the background until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("monitor loop stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop cancels a started loop and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger requests an immediate tick. It reports false when one is
// already pending.
func (m *Monitor) Trigger() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks, ticking immediately and then every interval, until ctx is
// cancelled. The archiver cron runs alongside when configured.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor starting", slog.Duration("interval", m.cfg.Interval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.loop(ctx) })
	if m.deps.Archiver != nil && m.deps.ArchiveCron != "" {
		g.Go(func() error {
			err := m.deps.Archiver.RunCron(ctx, m.deps.ArchiveCron)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}
	return g.Wait()
}

func (m *Monitor) loop(ctx context.Context) error {
	// Run immediately on start.
	m.tick(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor loop stopped")
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		case <-m.trigger:
			m.logger.Info("manual monitor tick")
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	report, err := m.RunOnce(ctx)
	if err != nil {
		m.logger.Error("monitor tick failed", slog.String("error", err.Error()))
		return
	}
	if report.Skipped {
		return
	}
	m.logger.Info("monitor tick complete",
		slog.Int("expired", report.Expired),
		slog.Int("goals_checked", report.GoalsChecked),
		slog.Int("goals_expired", report.GoalsExpired),
		slog.Int("matches", report.Matches),
		slog.Int("prices_refreshed", report.PricesRefreshed),
		slog.Int("price_drops", report.PriceDrops),
	)
}

// RunOnce performs one tick. Step failures are logged and do not stop the
// remaining steps; a panic is recovered into an error.
func (m *Monitor) RunOnce(ctx context.Context) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.MonitorTicks.WithLabelValues("panic").Inc()
			err = fmt.Errorf("monitor: tick panicked: %v", r)
		}
	}()

	if m.deps.Locks != nil {
		unlock, lerr := m.deps.Locks.Acquire(ctx, TickLockKey, m.cfg.Interval)
		if errors.Is(lerr, domain.ErrLockHeld) {
			m.logger.Debug("monitor tick held by another replica")
			metrics.MonitorTicks.WithLabelValues("skipped").Inc()
			return Report{Skipped: true}, nil
		}
		if lerr != nil {
			// The lock only deduplicates work across replicas.
			m.logger.Warn("monitor lock unavailable, running unguarded", slog.String("error", lerr.Error()))
		} else {
			defer unlock()
		}
	}

	now := m.deps.Clock()
	var errs []error

	if report.Expired, err = m.expireSweep(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire sweep: %w", err))
	}
	if err = m.discoverGoals(ctx, now, &report); err != nil {
		errs = append(errs, fmt.Errorf("goal discovery: %w", err))
	}
	if err = m.refreshPrices(ctx, now, &report); err != nil {
		errs = append(errs, fmt.Errorf("price refresh: %w", err))
	}

	if err = errors.Join(errs...); err != nil {
		metrics.MonitorTicks.WithLabelValues("error").Inc()
		return report, err
	}
	metrics.MonitorTicks.WithLabelValues("ok").Inc()
	return report, nil
}

func (m *Monitor) notify(ctx context.Context, eventType, userID string, payload map[string]any) {
	if m.deps.Notifier == nil || userID == "" {
		return
	}
	m.deps.Notifier.Notify(ctx, eventType, userID, payload)
}

// notifyOnce notifies unless the same event for the same deal was sent
// within the dedup window.
func (m *Monitor) notifyOnce(ctx context.Context, eventType, dealID, userID string, payload map[string]any) {
	if m.deps.Cache != nil {
		key := "notified:" + eventType + ":" + dealID
		if _, err := m.deps.Cache.Get(ctx, key); err == nil {
			return
		}
		if err := m.deps.Cache.Set(ctx, key, []byte("1"), m.cfg.NotifyDedupWindow); err != nil {
			m.logger.WarnContext(ctx, "notification dedup write failed", slog.String("error", err.Error()))
		}
	}
	m.notify(ctx, eventType, userID, payload)
}

func (m *Monitor) publish(ctx context.Context, channel string, evt domain.DealEvent) {
	if m.deps.Bus == nil {
		return
	}
	service.PublishDealEvent(ctx, m.deps.Bus, channel, evt, m.logger)
}

func (m *Monitor) invalidate(ctx context.Context, dealID string) {
	if m.deps.Cache == nil {
		return
	}
	for _, key := range []string{service.DealCacheKey(dealID), service.DealBasicCacheKey(dealID), analysis.CacheKey(dealID)} {
		if err := m.deps.Cache.Delete(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "deal cache invalidate failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
