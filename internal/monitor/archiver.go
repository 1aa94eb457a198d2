package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

// DefaultArchiveCron runs the archiver daily at 03:00 UTC.
const DefaultArchiveCron = "0 3 * * *"

// Archiver moves long-expired deals to cold storage and marks them deleted.
type Archiver struct {
	deals     domain.DealStore
	blob      domain.Archiver
	retention time.Duration
	batch     int
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. Deals expired for longer than retention
// are archived, at most batch per run.
func NewArchiver(deals domain.DealStore, blob domain.Archiver, retention time.Duration, batch int, logger *slog.Logger) *Archiver {
	if batch <= 0 {
		batch = 1000
	}
	return &Archiver{
		deals:     deals,
		blob:      blob,
		retention: retention,
		batch:     batch,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run and returns how many deals it moved.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	now := a.now().UTC()
	cutoff := now.Add(-a.retention)

	deals, err := a.deals.ListExpiredBefore(ctx, cutoff, a.batch)
	if err != nil {
		return 0, fmt.Errorf("list expired before %v: %w", cutoff, err)
	}
	if len(deals) == 0 {
		return 0, nil
	}

	path, err := a.blob.ArchiveDeals(ctx, deals, now)
	if err != nil {
		return 0, fmt.Errorf("archive %d deals: %w", len(deals), err)
	}

	deleted := domain.DealStatusDeleted
	n := 0
	for _, d := range deals {
		if _, err := a.deals.Update(ctx, d.ID, domain.DealUpdate{Status: &deleted}); err != nil {
			a.logger.ErrorContext(ctx, "mark archived deal deleted failed",
				slog.String("deal_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.String("path", path),
		slog.Int("archived", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}

// RunCron runs the archiver on a 5-field cron schedule (UTC) until ctx is
// cancelled.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.next(time.Now().UTC())
		if err != nil {
			return err
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is the set of allowed values of one field; nil allows all.
type cronField map[int]bool

func (f cronField) matches(v int) bool {
	return f == nil || f[v]
}

type schedule struct {
	minute, hour, dom, month, dow cronField
}

// parseCron parses "minute hour day-of-month month day-of-week". Each field
// accepts "*", numbers, ranges "a-b", lists "a,b" and steps "*/n" or "a-b/n".
func parseCron(expr string) (schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return schedule{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}
	return schedule{minute: parsed[0], hour: parsed[1], dom: parsed[2], month: parsed[3], dow: parsed[4]}, nil
}

func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	out := make(cronField)
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			s, err := strconv.Atoi(stepStr)
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step %q", stepStr)
			}
			step = s
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return nil, fmt.Errorf("invalid value %q", a)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return nil, fmt.Errorf("invalid value %q", b)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", rng)
			}
			from, to = v, v
			if hasStep {
				to = hi
			}
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("value %q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

func (s schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dom.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dow.matches(int(t.Weekday()))
}

// next returns the first minute after t that matches, searching up to a
// year ahead.
func (s schedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time within one year")
}
