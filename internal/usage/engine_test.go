package usage

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsucare2025-capstone/wattwisepro/internal/delta"
	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func newTestEngine(t *testing.T, clock *testClock) (*Engine, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	loc := period.Zone(480)
	cache := delta.NewCache()
	est := delta.NewEstimator(cache, 5*time.Minute)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := NewEngine(st, cache, est, metrics, log, Options{
		Location:       loc,
		StaleThreshold: 8 * time.Minute,
		RecentWeeks:    4,
		Now:            clock.now,
	})
	// Run the post-fold refold inline so assertions see its effects.
	e.refold = func(deviceID, date string) {
		if err := e.Refold(deviceID, date); err != nil {
			t.Errorf("refold %s/%s: %v", deviceID, date, err)
		}
	}
	return e, st
}

func almostEqual(got, want float64) bool {
	d := got - want
	return d < 1e-9 && d > -1e-9
}

func TestIngestCreatesBucketAndDailyRow(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1.2, Power: 276, Energy: 42.0})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Action != store.ActionInserted || res.Date != "2025-11-17" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Reason != delta.ReasonFirstSample {
		t.Fatalf("first sample reason = %s", res.Reason)
	}
	// With no cached counter the delta is the expected increment at the
	// nominal 5 minute cadence, not zero and not the lifetime total.
	wantDelta := 276 * (5.0 / 60.0) / 1000
	if !almostEqual(res.Delta, wantDelta) {
		t.Fatalf("first sample delta = %v, want %v", res.Delta, wantDelta)
	}

	b, err := st.GetBucket("m1", "2025-11-17")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if !almostEqual(b.Energy, wantDelta) {
		t.Fatalf("bucket energy = %v, want %v", b.Energy, wantDelta)
	}

	d, err := st.GetDaily("2025-11-17")
	if err != nil {
		t.Fatalf("daily row: %v", err)
	}
	if d.TotalPower != 276 || d.RecordCount != 1 {
		t.Fatalf("daily totals wrong: %+v", d)
	}
	if d.AveragePower != 276 || d.AverageVoltage != 230 || d.AverageCurrent != 1.2 {
		t.Fatalf("daily averages wrong: %+v", d)
	}
	if d.PeakPower != 276 || d.PeakVoltage != 230 {
		t.Fatalf("daily peaks wrong: %+v", d)
	}
}

func TestSecondSampleAccumulatesInSameBucket(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	if _, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1.2, Power: 276, Energy: 42.0}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	clock.t = clock.t.Add(5 * time.Minute)
	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 228, Current: 1.1, Power: 250, Energy: 42.021})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res.Action != store.ActionUpdated || res.Reason != delta.ReasonRaw {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !almostEqual(res.Delta, 0.021) {
		t.Fatalf("delta = %v, want 0.021", res.Delta)
	}

	b, err := st.GetBucket("m1", "2025-11-17")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if b.Power != 526 || b.Voltage != 228 || b.Current != 1.1 {
		t.Fatalf("bucket fold wrong: %+v", b)
	}

	d, err := st.GetDaily("2025-11-17")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if d.RecordCount != 2 {
		t.Fatalf("record count = %d, want 2", d.RecordCount)
	}
	if !almostEqual(d.AveragePower, 526.0/2) {
		t.Fatalf("average power = %v", d.AveragePower)
	}
	if d.PeakPower != 526 {
		t.Fatalf("peak should ratchet to the grown total: %v", d.PeakPower)
	}
}

func TestMidnightRolloverOpensNewBucket(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 17, 23, 58, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	if _, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1, Power: 100, Energy: 10.0}); err != nil {
		t.Fatalf("evening ingest: %v", err)
	}
	clock.t = time.Date(2025, 11, 18, 0, 3, 0, 0, loc)
	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1, Power: 100, Energy: 10.008})
	if err != nil {
		t.Fatalf("morning ingest: %v", err)
	}
	if res.Date != "2025-11-18" || res.Action != store.ActionInserted {
		t.Fatalf("rollover result: %+v", res)
	}
	// The counter cache spans days, so the new bucket starts from the
	// raw diff rather than a synthesized increment.
	if res.Reason != delta.ReasonRaw || !almostEqual(res.Delta, 0.008) {
		t.Fatalf("rollover delta: %+v", res)
	}

	if _, err := st.GetBucket("m1", "2025-11-17"); err != nil {
		t.Fatalf("yesterday's bucket should survive: %v", err)
	}
	b, err := st.GetBucket("m1", "2025-11-18")
	if err != nil {
		t.Fatalf("today's bucket: %v", err)
	}
	if !almostEqual(b.Energy, 0.008) {
		t.Fatalf("new bucket energy = %v", b.Energy)
	}
}

func TestIngestDefaultsIntervalHintToNominal(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, _ := newTestEngine(t, clock)

	// HTTP and broker callers never know the device cadence, so a
	// zero hint must fall back to the configured one.
	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1.9, Power: 440, Energy: 5000})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	want := 440 * (5.0 / 60.0) / 1000
	if !almostEqual(res.Delta, want) {
		t.Fatalf("delta = %v, want %v", res.Delta, want)
	}

	// An explicit hint still wins over the default.
	res, err = e.Ingest(Sample{DeviceID: "m2", Voltage: 230, Current: 1.9, Power: 440, Energy: 5000, IntervalHint: 10 * time.Minute})
	if err != nil {
		t.Fatalf("ingest with hint: %v", err)
	}
	if !almostEqual(res.Delta, 2*want) {
		t.Fatalf("hinted delta = %v, want %v", res.Delta, 2*want)
	}
}

func TestConcurrentRefoldsCountEverySample(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	if _, _, err := st.FoldBucket(store.BucketFold{
		DeviceID: "m1", Date: "2025-11-17",
		Voltage: 230, Current: 1, PowerAdd: 100, EnergyAdd: 0.01, At: clock.t,
	}); err != nil {
		t.Fatalf("fold: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Refold("m1", "2025-11-17"); err != nil {
				t.Errorf("refold: %v", err)
			}
		}()
	}
	wg.Wait()

	d, err := st.GetDaily("2025-11-17")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if d.RecordCount != n {
		t.Fatalf("record count = %d, want %d", d.RecordCount, n)
	}
}

func TestIngestSurvivesCounterReset(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	if _, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1, Power: 600, Energy: 55.0}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	clock.t = clock.t.Add(5 * time.Minute)
	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1, Power: 600, Energy: 0.01})
	if err != nil {
		t.Fatalf("ingest after reset: %v", err)
	}
	if res.Reason != delta.ReasonReset {
		t.Fatalf("reason = %s, want %s", res.Reason, delta.ReasonReset)
	}
	want := 600 * (5.0 / 60.0) / 1000
	if !almostEqual(res.Delta, want) {
		t.Fatalf("delta = %v, want %v", res.Delta, want)
	}

	b, err := st.GetBucket("m1", "2025-11-17")
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if b.Energy < 0 {
		t.Fatalf("bucket energy went negative: %v", b.Energy)
	}
}

func seedDaily(t *testing.T, st *store.SQLiteStore, date string, energy, avgPower, peakPower float64) {
	t.Helper()
	now := time.Now().UTC()
	if err := st.UpsertDaily(store.DailyUsage{
		Date:         date,
		TotalEnergy:  energy,
		TotalPower:   avgPower * 10,
		PeakPower:    peakPower,
		AveragePower: avgPower,
		RecordCount:  10,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("seed daily %s: %v", date, err)
	}
}

func TestRefreshWeekAggregatesDailyRows(t *testing.T) {
	loc := period.Zone(480)
	// Wednesday of the week 2025-11-16 .. 2025-11-22.
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	seedDaily(t, st, "2025-11-16", 1.0, 100, 300)
	seedDaily(t, st, "2025-11-17", 2.0, 200, 500)
	seedDaily(t, st, "2025-11-18", 3.0, 300, 400)

	outcome, err := e.RefreshWeek(clock.t)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeInserted)
	}

	w, err := st.GetWeekly(2025, period.WeekNumber(clock.t))
	if err != nil {
		t.Fatalf("weekly row: %v", err)
	}
	if w.WeekStartDate != "2025-11-16" || w.WeekEndDate != "2025-11-22" {
		t.Fatalf("week bounds wrong: %+v", w)
	}
	if !almostEqual(w.TotalEnergy, 6.0) || w.DaysCount != 3 {
		t.Fatalf("totals wrong: %+v", w)
	}
	if w.PeakPower != 500 {
		t.Fatalf("peak = %v, want max of daily peaks", w.PeakPower)
	}
	if !almostEqual(w.AveragePower, 200) {
		t.Fatalf("average = %v, want mean of daily averages", w.AveragePower)
	}
}

func TestRefreshWeekNoDataIsNoOp(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	outcome, err := e.RefreshWeek(clock.t)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if outcome != OutcomeNoData {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeNoData)
	}
	if _, err := st.GetWeekly(2025, period.WeekNumber(clock.t)); err != store.ErrNotFound {
		t.Fatalf("no row should exist, got %v", err)
	}
}

func TestLockedWeekIsNeverRewritten(t *testing.T) {
	loc := period.Zone(480)
	inWeek := time.Date(2025, 11, 19, 12, 0, 0, 0, loc)
	clock := &testClock{inWeek}
	e, st := newTestEngine(t, clock)

	seedDaily(t, st, "2025-11-17", 2.0, 200, 500)
	if outcome, err := e.RefreshWeek(inWeek); err != nil || outcome != OutcomeInserted {
		t.Fatalf("initial refresh: %s %v", outcome, err)
	}

	// While the week is open, new daily data rewrites the row.
	seedDaily(t, st, "2025-11-18", 3.0, 300, 400)
	if outcome, err := e.RefreshWeek(inWeek); err != nil || outcome != OutcomeUpdated {
		t.Fatalf("open week refresh: %s %v", outcome, err)
	}

	// Once the Saturday has passed the row is frozen, even if a late
	// daily row changes the inputs.
	clock.t = time.Date(2025, 11, 23, 0, 30, 0, 0, loc)
	seedDaily(t, st, "2025-11-19", 9.0, 900, 900)
	outcome, err := e.RefreshWeek(inWeek)
	if err != nil {
		t.Fatalf("locked refresh: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeSkipped)
	}

	w, err := st.GetWeekly(2025, period.WeekNumber(inWeek))
	if err != nil {
		t.Fatalf("weekly row: %v", err)
	}
	if !almostEqual(w.TotalEnergy, 5.0) || w.DaysCount != 2 {
		t.Fatalf("locked row changed: %+v", w)
	}
}

func TestLockedWeekStillInsertsMissingRow(t *testing.T) {
	loc := period.Zone(480)
	past := time.Date(2025, 11, 5, 12, 0, 0, 0, loc)
	clock := &testClock{time.Date(2025, 11, 23, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	seedDaily(t, st, "2025-11-04", 1.5, 150, 200)
	outcome, err := e.RefreshWeek(past)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("a missing row is inserted even for a closed week, got %s", outcome)
	}
	if _, err := st.GetWeekly(2025, period.WeekNumber(past)); err != nil {
		t.Fatalf("row should exist: %v", err)
	}
}

func seedWeekly(t *testing.T, st *store.SQLiteStore, year, week int, start, end string, energy, avgPower, peakPower float64) {
	t.Helper()
	now := time.Now().UTC()
	if err := st.InsertWeekly(store.WeeklyUsage{
		Year: year, WeekNumber: week,
		WeekStartDate: start, WeekEndDate: end,
		TotalEnergy: energy, AveragePower: avgPower, PeakPower: peakPower,
		DaysCount: 7, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed weekly %d/%d: %v", year, week, err)
	}
}

func TestRefreshMonthAggregatesWeeksByStartDate(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 20, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	// Week starting Oct 26 belongs to October even though it spills
	// into November.
	seedWeekly(t, st, 2025, 44, "2025-10-26", "2025-11-01", 10, 100, 400)
	seedWeekly(t, st, 2025, 45, "2025-11-02", "2025-11-08", 12, 120, 500)
	seedWeekly(t, st, 2025, 46, "2025-11-09", "2025-11-15", 14, 140, 450)

	outcome, err := e.RefreshMonth(2025, time.November)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("outcome = %s", outcome)
	}

	m, err := st.GetMonthly(2025, 11)
	if err != nil {
		t.Fatalf("monthly row: %v", err)
	}
	if m.MonthName != "November" {
		t.Fatalf("month name = %s", m.MonthName)
	}
	if !almostEqual(m.TotalEnergy, 26) || m.WeeksCount != 2 {
		t.Fatalf("spillover week counted in wrong month: %+v", m)
	}
	if m.PeakPower != 500 || !almostEqual(m.AveragePower, 130) {
		t.Fatalf("aggregates wrong: %+v", m)
	}
}

func TestLockedMonthIsNeverRewritten(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 30, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	seedWeekly(t, st, 2025, 45, "2025-11-02", "2025-11-08", 12, 120, 500)
	if outcome, err := e.RefreshMonth(2025, time.November); err != nil || outcome != OutcomeInserted {
		t.Fatalf("initial refresh: %s %v", outcome, err)
	}

	// On the month's last day the row is still open.
	seedWeekly(t, st, 2025, 46, "2025-11-09", "2025-11-15", 14, 140, 450)
	if outcome, err := e.RefreshMonth(2025, time.November); err != nil || outcome != OutcomeUpdated {
		t.Fatalf("open month refresh: %s %v", outcome, err)
	}

	// December 1st locks November.
	clock.t = time.Date(2025, 12, 1, 0, 5, 0, 0, loc)
	seedWeekly(t, st, 2025, 47, "2025-11-16", "2025-11-22", 99, 999, 999)
	outcome, err := e.RefreshMonth(2025, time.November)
	if err != nil {
		t.Fatalf("locked refresh: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeSkipped)
	}

	m, err := st.GetMonthly(2025, 11)
	if err != nil {
		t.Fatalf("monthly row: %v", err)
	}
	if m.WeeksCount != 2 {
		t.Fatalf("locked month changed: %+v", m)
	}
}

func TestWeekDaysZeroFills(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	seedDaily(t, st, "2025-11-17", 2.0, 200, 500)

	days, err := e.WeekDays(clock.t)
	if err != nil {
		t.Fatalf("week days: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("got %d days, want 7", len(days))
	}
	if days[0].Date != "2025-11-16" || days[6].Date != "2025-11-22" {
		t.Fatalf("bounds wrong: %s .. %s", days[0].Date, days[6].Date)
	}
	if days[1].TotalEnergy != 2.0 {
		t.Fatalf("monday data missing: %+v", days[1])
	}
	if days[2].TotalEnergy != 0 || days[2].RecordCount != 0 {
		t.Fatalf("gap day should be zero-filled: %+v", days[2])
	}
}

func TestRecentWeeksZeroFills(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, loc)}
	e, st := newTestEngine(t, clock)

	seedWeekly(t, st, 2025, 46, "2025-11-09", "2025-11-15", 14, 140, 450)

	weeks, err := e.RecentWeeks()
	if err != nil {
		t.Fatalf("recent weeks: %v", err)
	}
	if len(weeks) != 4 {
		t.Fatalf("got %d weeks, want 4", len(weeks))
	}
	if weeks[3].WeekStartDate != "2025-11-16" {
		t.Fatalf("newest week should be current: %+v", weeks[3])
	}
	if weeks[2].TotalEnergy != 14 {
		t.Fatalf("seeded week missing: %+v", weeks[2])
	}
	if weeks[0].TotalEnergy != 0 || weeks[0].WeekStartDate != "2025-10-26" {
		t.Fatalf("oldest week should be zero-filled: %+v", weeks[0])
	}
}

func TestMonthsOfYearZeroFills(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	now := time.Now().UTC()
	if err := st.InsertMonthly(store.MonthlyUsage{
		Year: 2025, Month: 6, MonthName: "June", TotalEnergy: 30,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	months, err := e.MonthsOfYear(2025)
	if err != nil {
		t.Fatalf("months: %v", err)
	}
	if len(months) != 12 {
		t.Fatalf("got %d months, want 12", len(months))
	}
	if months[5].TotalEnergy != 30 {
		t.Fatalf("june missing: %+v", months[5])
	}
	if months[0].MonthName != "January" || months[0].TotalEnergy != 0 {
		t.Fatalf("january should be zero-filled with its name: %+v", months[0])
	}
}

func TestCurrentYearTotal(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 19, 12, 0, 0, 0, period.Zone(480))}
	e, st := newTestEngine(t, clock)

	now := time.Now().UTC()
	for _, m := range []store.MonthlyUsage{
		{Year: 2025, Month: 9, MonthName: "September", TotalEnergy: 100, PeakPower: 700, AveragePower: 100, CreatedAt: now, UpdatedAt: now},
		{Year: 2025, Month: 10, MonthName: "October", TotalEnergy: 120, PeakPower: 900, AveragePower: 200, CreatedAt: now, UpdatedAt: now},
	} {
		if err := st.InsertMonthly(m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	total, err := e.CurrentYearTotal()
	if err != nil {
		t.Fatalf("year total: %v", err)
	}
	if total.Year != 2025 || total.MonthsCount != 2 {
		t.Fatalf("unexpected total: %+v", total)
	}
	if !almostEqual(total.TotalEnergy, 220) || total.PeakPower != 900 {
		t.Fatalf("sums wrong: %+v", total)
	}
	if !almostEqual(total.AveragePower, 150) {
		t.Fatalf("average should be mean of month averages: %v", total.AveragePower)
	}
}

func TestLiveReflectsLatestSample(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, loc)}
	e, _ := newTestEngine(t, clock)

	if _, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1.2, Power: 276, Energy: 42.0}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	clock.t = clock.t.Add(5 * time.Minute)
	res, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 229, Current: 1.1, Power: 250, Energy: 42.021})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	clock.t = clock.t.Add(time.Minute)
	live, err := e.Live()
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if live.Stale {
		t.Fatalf("fresh data reported stale")
	}
	if live.Voltage != 229 || live.Current != 1.1 {
		t.Fatalf("instantaneous values wrong: %+v", live)
	}
	if !almostEqual(live.Power, 250) {
		t.Fatalf("power increment = %v, want last sample's power", live.Power)
	}
	if !almostEqual(live.Energy, res.Delta) {
		t.Fatalf("energy increment = %v, want %v", live.Energy, res.Delta)
	}
}

func TestLiveGoesStale(t *testing.T) {
	loc := period.Zone(480)
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, loc)}
	e, _ := newTestEngine(t, clock)

	if _, err := e.Ingest(Sample{DeviceID: "m1", Voltage: 230, Current: 1.2, Power: 276, Energy: 42.0}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	clock.t = clock.t.Add(9 * time.Minute)
	live, err := e.Live()
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if !live.Stale {
		t.Fatalf("9 minute old data should be stale")
	}
	if live.Voltage != 0 || live.Power != 0 || live.Energy != 0 {
		t.Fatalf("stale view should zero readings: %+v", live)
	}
}

func TestLiveWithNoDataAtAll(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, _ := newTestEngine(t, clock)

	live, err := e.Live()
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	if !live.Stale || live.Voltage != 0 {
		t.Fatalf("empty store should report stale zeros: %+v", live)
	}
}

func TestDayUsageZeroFills(t *testing.T) {
	clock := &testClock{time.Date(2025, 11, 17, 8, 0, 0, 0, period.Zone(480))}
	e, _ := newTestEngine(t, clock)

	d, err := e.DayUsage("2024-02-02")
	if err != nil {
		t.Fatalf("day usage: %v", err)
	}
	if d.Date != "2024-02-02" || d.RecordCount != 0 || d.TotalEnergy != 0 {
		t.Fatalf("zero fill wrong: %+v", d)
	}
}
