// Package scheduler triggers the daily selection run and catches up on
// days missed while the process was down.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/CallAudit/internal/config"
	"github.com/MikeSquared-Agency/CallAudit/internal/hermes"
	"github.com/MikeSquared-Agency/CallAudit/internal/selection"
	"github.com/MikeSquared-Agency/CallAudit/internal/week"
)

type Selector interface {
	SelectForDay(ctx context.Context, date time.Time) (*selection.Result, error)
}

type Scheduler struct {
	selector Selector
	hermes   hermes.Client
	cfg      config.SchedulerConfig
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// runMu serialises runs so a manual trigger never overlaps the loop.
	runMu       sync.Mutex
	mu          sync.RWMutex
	lastCovered time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(sel Selector, h hermes.Client, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		selector: sel,
		hermes:   h,
		cfg:      cfg.Scheduler,
		interval: cfg.CheckInterval(),
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// LastCovered is the most recent day the scheduler has selected for. The
// zero time means no run has happened yet.
func (s *Scheduler) LastCovered() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCovered
}

// SetLastCovered seeds the watermark, typically from the latest selection
// already stored.
func (s *Scheduler) SetLastCovered(day time.Time) {
	s.mu.Lock()
	s.lastCovered = week.Day(day)
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue selects every working day between the watermark and the default
// reference day, once the configured hour has passed. The watermark only
// advances over days that completed, so a failed day is retried on the
// next tick.
func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now().UTC()
	if now.Hour() < s.cfg.RunHourUTC {
		return 0
	}

	target := week.DefaultReference(now)
	last := s.LastCovered()
	if !last.IsZero() && !target.After(last) {
		return 0
	}

	days := week.CatchUp(last, target, s.cfg.MaxCatchUpDays)
	if len(days) > 1 {
		s.logger.Info("catching up missed selection days", "from", week.Format(days[0]), "to", week.Format(target), "days", len(days))
	}

	ran := 0
	for _, day := range days {
		if _, err := s.RunDay(ctx, day); err != nil {
			s.logger.Error("scheduled selection failed", "date", week.Format(day), "error", err)
			return ran
		}
		s.SetLastCovered(day)
		ran++
	}
	if !target.After(s.LastCovered()) {
		return ran
	}
	// Nothing selectable between the watermark and target.
	s.SetLastCovered(target)
	return ran
}

// RunDay runs selection for one day and announces the result. A zero day
// selects the default reference day.
func (s *Scheduler) RunDay(ctx context.Context, day time.Time) (*selection.Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res, err := s.selector.SelectForDay(ctx, day)
	if err != nil {
		return nil, err
	}

	if s.hermes != nil {
		quotas := make(map[string]int, len(res.Quotas))
		for client, q := range res.Quotas {
			quotas[client] = int(q)
		}
		if err := s.hermes.Publish(hermes.SubjectSelectionCompleted(res.Date), hermes.SelectionCompletedEvent{
			Date:        res.Date,
			WeekStart:   res.Week.StartDate(),
			WeekEnd:     res.Week.EndDate(),
			Inserted:    res.Inserted,
			Skipped:     res.Skipped,
			TotalAgents: res.TotalAgents,
			Quotas:      quotas,
		}); err != nil {
			s.logger.Warn("publish selection completed", "date", res.Date, "error", err)
		}
	}
	return res, nil
}
