package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dealscout/internal/domain"
	"github.com/alanyoungcy/dealscout/internal/search"
	"github.com/alanyoungcy/dealscout/internal/service"
)

// expireSweep marks active deals past their expiry as expired.
func (m *Monitor) expireSweep(ctx context.Context, now time.Time) (int, error) {
	deals, err := m.deps.Deals.ListExpiring(ctx, now, m.cfg.ExpireBatch)
	if err != nil {
		return 0, err
	}

	expired := domain.DealStatusExpired
	n := 0
	for _, d := range deals {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		updated, err := m.deps.Deals.Update(ctx, d.ID, domain.DealUpdate{Status: &expired, LastCheckedAt: &now})
		if err != nil {
			m.logger.ErrorContext(ctx, "expire deal failed",
				slog.String("deal_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
		m.invalidate(ctx, d.ID)
		m.publish(ctx, domain.ChannelDealExpired, domain.DealEvent{
			Type:   "expired",
			Deal:   updated.Basic(),
			UserID: updated.UserID,
			GoalID: updated.GoalKey(),
			At:     now,
		})
		m.notifyOnce(ctx, domain.EventDealExpired, d.ID, d.UserID, map[string]any{
			"deal_id": d.ID,
			"title":   d.Title,
			"url":     d.URL,
			"price":   d.Price,
		})
	}
	return n, nil
}

// discoverGoals re-runs discovery for every active goal.
func (m *Monitor) discoverGoals(ctx context.Context, now time.Time, report *Report) error {
	goals, err := m.deps.Goals.ListActive(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, g := range goals {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if g.Deadline != nil && now.After(*g.Deadline) {
			if err := m.deps.Goals.UpdateStatus(ctx, g.ID, domain.GoalStatusExpired); err != nil {
				errs = append(errs, fmt.Errorf("expire goal %s: %w", g.ID, err))
				continue
			}
			report.GoalsExpired++
			continue
		}
		if g.Exhausted() {
			continue
		}

		created, err := m.discoverGoal(ctx, g, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("goal %s: %w", g.ID, err))
			continue
		}
		report.GoalsChecked++
		report.Matches += created
	}
	return errors.Join(errs...)
}

func (m *Monitor) discoverGoal(ctx context.Context, g domain.Goal, now time.Time) (int, error) {
	plan := m.deps.Planner.PlanGoal(g, nil)
	res := m.deps.Dispatcher.Dispatch(ctx, plan)

	products := res.Products
	if res.Empty() && len(res.Failed) > 0 && m.deps.Scraper != nil {
		m.logger.InfoContext(ctx, "providers failed, falling back to scraper",
			slog.String("goal_id", g.ID),
			slog.Int("failed", len(res.Failed)),
		)
		products = m.scrapeFallback(ctx, plan)
	}

	criteria := search.CriteriaFromPlan(plan)
	criteria.MaxResults = m.cfg.MaxResults
	cands := search.Filter(products, criteria)

	scope := service.Scope{UserID: g.UserID, GoalID: &g.ID, Category: g.Category}
	remaining := g.Remaining()
	created := 0
	for _, c := range cands {
		if remaining >= 0 && created >= remaining {
			break
		}
		r, err := m.deps.Persister.Persist(ctx, c, scope)
		if err != nil {
			m.logger.ErrorContext(ctx, "persist goal match failed",
				slog.String("goal_id", g.ID),
				slog.String("url", c.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !r.Created {
			continue
		}
		created++
		m.notify(ctx, domain.EventGoalMatch, g.UserID, map[string]any{
			"goal_id":    g.ID,
			"goal_title": g.Title,
			"deal_id":    r.Deal.ID,
			"title":      r.Deal.Title,
			"url":        r.Deal.URL,
			"price":      r.Deal.Price,
			"source":     string(r.Deal.Source),
		})
	}

	if err := m.deps.Goals.RecordCheck(ctx, g.ID, created, now); err != nil {
		return created, fmt.Errorf("record check: %w", err)
	}
	return created, nil
}

// scrapeFallback searches every market's public pages. Failures of single
// markets are logged and skipped.
func (m *Monitor) scrapeFallback(ctx context.Context, plan search.Plan) []domain.RawProduct {
	var out []domain.RawProduct
	for _, market := range m.deps.Markets {
		q := plan.Queries[market]
		if q == "" {
			q = plan.RawQuery
		}
		products, err := m.deps.Scraper.Search(ctx, market, q, m.cfg.ScrapeLimit)
		if err != nil {
			m.logger.WarnContext(ctx, "scraper fallback failed",
				slog.String("market", string(market)),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, products...)
	}
	return out
}

// refreshPrices re-reads the product page of deals not checked recently.
func (m *Monitor) refreshPrices(ctx context.Context, now time.Time, report *Report) error {
	if m.deps.Scraper == nil {
		return nil
	}
	deals, err := m.deps.Deals.ListStale(ctx, now.Add(-m.cfg.RefreshAge), m.cfg.RefreshBatch)
	if err != nil {
		return err
	}

	for _, d := range deals {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.refreshDeal(ctx, d, now, report)
	}
	return nil
}

func (m *Monitor) refreshDeal(ctx context.Context, d domain.Deal, now time.Time, report *Report) {
	update := domain.DealUpdate{LastCheckedAt: &now}

	page, err := m.deps.Scraper.Product(ctx, d.URL)
	if err != nil || page.Price <= 0 {
		if err != nil {
			m.logger.WarnContext(ctx, "price check failed",
				slog.String("deal_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
		if _, err := m.deps.Deals.Update(ctx, d.ID, update); err != nil {
			m.logger.ErrorContext(ctx, "stamp deal check failed", slog.String("deal_id", d.ID), slog.String("error", err.Error()))
		}
		return
	}

	changed := math.Abs(page.Price-d.Price) >= 0.005
	if changed {
		update.Price = &page.Price
	}
	if page.Availability != "" && page.Availability != d.Availability {
		update.Availability = &page.Availability
		if page.Availability == "out_of_stock" {
			soldOut := domain.DealStatusSoldOut
			update.Status = &soldOut
		}
	}

	updated, err := m.deps.Deals.Update(ctx, d.ID, update)
	if err != nil {
		m.logger.ErrorContext(ctx, "price update failed",
			slog.String("deal_id", d.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !changed && update.Availability == nil {
		return
	}
	m.invalidate(ctx, d.ID)
	if !changed {
		return
	}

	report.PricesRefreshed++
	point := domain.PricePoint{
		ID:        uuid.NewString(),
		DealID:    d.ID,
		Price:     page.Price,
		Currency:  d.Currency,
		Source:    d.Source,
		Timestamp: now,
	}
	if err := m.deps.Prices.Append(ctx, point); err != nil {
		m.logger.ErrorContext(ctx, "append price point failed",
			slog.String("deal_id", d.ID),
			slog.String("error", err.Error()),
		)
	}

	m.publish(ctx, domain.ChannelDealPrice, domain.DealEvent{
		Type:     "price_changed",
		Deal:     updated.Basic(),
		UserID:   d.UserID,
		GoalID:   d.GoalKey(),
		OldPrice: d.Price,
		At:       now,
	})

	if page.Price < d.Price {
		report.PriceDrops++
		m.notify(ctx, domain.EventPriceDrop, d.UserID, map[string]any{
			"deal_id":   d.ID,
			"title":     d.Title,
			"url":       d.URL,
			"old_price": d.Price,
			"new_price": page.Price,
		})
	}
}
