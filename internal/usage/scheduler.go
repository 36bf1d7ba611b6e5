package usage

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
)

// Scheduler keeps the weekly and monthly rollups current. Folds
// trigger refreshes through a rate limiter so sample bursts collapse
// into a handful of store writes, and a daily tick shortly after local
// midnight refreshes the period that just closed.
type Scheduler struct {
	engine  *Engine
	metrics *observability.Metrics
	log     *slog.Logger
	loc     *time.Location
	limiter *rate.Limiter
	now     func() time.Time
}

func NewScheduler(engine *Engine, m *observability.Metrics, log *slog.Logger, loc *time.Location, refreshPerMinute int, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	limit := rate.Every(time.Minute / time.Duration(refreshPerMinute))
	return &Scheduler{
		engine:  engine,
		metrics: m,
		log:     log,
		loc:     loc,
		limiter: rate.NewLimiter(limit, 1),
		now:     now,
	}
}

// NotifyFold is the engine's OnFold hook. Refreshes beyond the rate
// limit are dropped; the next allowed fold or the midnight tick will
// bring the rollups back in line.
func (s *Scheduler) NotifyFold(at time.Time) {
	if !s.limiter.Allow() {
		return
	}
	go s.refresh(at)
}

// Run ticks at 00:01 local time every day, refreshing the rollups for
// the day that just ended. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.nextTick()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// The just-closed day is an hour before the tick, which
			// also pins the right week and month across boundaries.
			s.refresh(s.now().In(s.loc).Add(-time.Hour))
		}
	}
}

func (s *Scheduler) nextTick() time.Time {
	now := s.now().In(s.loc)
	tick := period.Midnight(now).Add(time.Minute)
	if !tick.After(now) {
		tick = tick.AddDate(0, 0, 1)
	}
	return tick
}

func (s *Scheduler) refresh(ref time.Time) {
	ref = ref.In(s.loc)

	outcome, err := s.engine.RefreshWeek(ref)
	if err != nil {
		s.metrics.RefreshFailed("week")
		s.log.Error("weekly refresh failed", "ref", ref.Format(period.DayFormat), "error", err)
	} else {
		s.log.Debug("weekly refresh", "ref", ref.Format(period.DayFormat), "outcome", outcome)
	}

	outcome, err = s.engine.RefreshMonth(ref.Year(), ref.Month())
	if err != nil {
		s.metrics.RefreshFailed("month")
		s.log.Error("monthly refresh failed", "year", ref.Year(), "month", int(ref.Month()), "error", err)
	} else {
		s.log.Debug("monthly refresh", "year", ref.Year(), "month", int(ref.Month()), "outcome", outcome)
	}
}
