package usage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
)

func newTestScheduler(t *testing.T, clock *testClock) (*Scheduler, *store.SQLiteStore) {
	t.Helper()
	e, st := newTestEngine(t, clock)
	m := observability.NewMetrics(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(e, m, log, period.Zone(480), 12, clock.now), st
}

func TestNextTickLandsAtOhOhOne(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 17, 15, 30, 0, 0, loc)}
	s, _ := newTestScheduler(t, clock)

	next := s.nextTick()
	want := time.Date(2025, 11, 18, 0, 1, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next tick = %v, want %v", next, want)
	}

	// Just after midnight but before the tick, the same day's 00:01 is
	// still ahead.
	clock.t = time.Date(2025, 11, 18, 0, 0, 30, 0, loc)
	next = s.nextTick()
	if !next.Equal(want) {
		t.Fatalf("next tick = %v, want %v", next, want)
	}

	// Exactly at 00:01 the tick moves to tomorrow.
	clock.t = want
	next = s.nextTick()
	if !next.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("next tick = %v, want next day", next)
	}
}

func TestRefreshWritesBothRollups(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, loc)}
	s, st := newTestScheduler(t, clock)

	seedDaily(t, st, "2025-11-17", 2.0, 200, 500)
	s.refresh(clock.t)

	if _, err := st.GetWeekly(2025, period.WeekNumber(clock.t)); err != nil {
		t.Fatalf("weekly row missing after refresh: %v", err)
	}
	if _, err := st.GetMonthly(2025, 11); err != nil {
		t.Fatalf("monthly row missing after refresh: %v", err)
	}
}

func TestNotifyFoldIsRateLimited(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, loc)}
	s, _ := newTestScheduler(t, clock)

	// The limiter grants one immediate slot; a burst right behind it
	// must be dropped rather than queued.
	if !s.limiter.Allow() {
		t.Fatalf("first refresh should be allowed")
	}
	if s.limiter.Allow() {
		t.Fatalf("burst refresh should be dropped")
	}
}
