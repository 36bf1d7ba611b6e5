// Package usage implements the aggregation pipeline: raw samples fold
// into per-day buckets, buckets roll up into daily rows, daily rows
// into Sunday-based weeks, and weeks into months. Closed weeks and
// months are locked and never rewritten.
package usage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsucare2025-capstone/wattwisepro/internal/delta"
	"github.com/tsucare2025-capstone/wattwisepro/internal/observability"
	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
)

// Sample is one telemetry reading from a meter. Energy is the device's
// lifetime-cumulative kWh counter, not an increment.
type Sample struct {
	DeviceID     string
	Voltage      float64
	Current      float64
	Power        float64
	Energy       float64
	At           time.Time
	IntervalHint time.Duration
}

// IngestResult reports what one sample did to its day bucket.
type IngestResult struct {
	ID          string
	Date        string
	Action      string
	Delta       float64
	Reason      delta.Reason
	Accumulated float64
}

// Refresh outcomes for weekly and monthly rollups.
const (
	OutcomeInserted = "inserted"
	OutcomeUpdated  = "updated"
	OutcomeSkipped  = "skipped_locked"
	OutcomeNoData   = "no_data"
)

// Engine owns the fold and rollup logic. The estimator cache, store,
// and clock are injected so tests can drive time and observe state.
type Engine struct {
	store     store.Store
	cache     *delta.Cache
	estimator *delta.Estimator
	metrics   *observability.Metrics
	log       *slog.Logger
	loc       *time.Location
	stale     time.Duration
	recent    int
	now       func() time.Time

	// OnFold, when set, is called after every successful fold with the
	// sample's local timestamp. The scheduler uses it to trigger
	// rate-limited rollup refreshes.
	OnFold func(at time.Time)

	// refold dispatches the post-fold daily rebuild. The default runs
	// it on a goroutine so ingest never waits on the rollup.
	refold func(deviceID, date string)

	// refoldMu serializes Refold's read-modify-write of the daily row
	// so concurrent folds each advance the record count.
	refoldMu sync.Mutex
}

// Options carries the tunables the engine needs beyond its
// collaborators.
type Options struct {
	Location       *time.Location
	StaleThreshold time.Duration
	RecentWeeks    int
	Now            func() time.Time
}

func NewEngine(st store.Store, cache *delta.Cache, est *delta.Estimator, m *observability.Metrics, log *slog.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecentWeeks <= 0 {
		opts.RecentWeeks = 4
	}
	e := &Engine{
		store:     st,
		cache:     cache,
		estimator: est,
		metrics:   m,
		log:       log,
		loc:       opts.Location,
		stale:     opts.StaleThreshold,
		recent:    opts.RecentWeeks,
		now:       opts.Now,
	}
	e.refold = func(deviceID, date string) {
		go func() {
			if err := e.Refold(deviceID, date); err != nil {
				e.metrics.RefoldFailed()
				e.log.Error("daily refold failed", "date", date, "error", err)
			}
		}()
	}
	return e
}

// Ingest folds one sample into its day bucket and schedules the
// follow-up daily refold. Only the fold itself can fail the caller;
// everything downstream is asynchronous and reported through logs and
// counters.
func (e *Engine) Ingest(s Sample) (IngestResult, error) {
	at := s.At
	if at.IsZero() {
		at = e.now()
	}
	at = at.In(e.loc)
	date := period.DayKey(at, e.loc)

	// Callers that don't know their cadence get the configured one, so
	// a cold-start sample still books a plausible first increment.
	hint := s.IntervalHint
	if hint <= 0 {
		hint = e.estimator.Nominal()
	}

	inc, reason := e.estimator.Delta(s.DeviceID, s.Power, s.Energy, hint)
	if reason.Anomaly() {
		e.metrics.DeltaFallback(string(reason))
		e.log.Warn("energy delta estimated",
			"device", s.DeviceID, "cause", string(reason), "power", s.Power, "counter", s.Energy)
	}

	bucket, action, err := e.store.FoldBucket(store.BucketFold{
		DeviceID:  s.DeviceID,
		Date:      date,
		Voltage:   s.Voltage,
		Current:   s.Current,
		PowerAdd:  s.Power,
		EnergyAdd: inc,
		At:        at,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("fold sample: %w", err)
	}
	e.metrics.SampleFolded(action)

	// The cache keeps the pre-fold bucket totals so the live view can
	// show what this sample added.
	e.cache.Record(s.DeviceID, s.Voltage, s.Current, bucket.Power-s.Power, bucket.Energy-inc, at)

	e.refold(s.DeviceID, date)
	if e.OnFold != nil {
		e.OnFold(at)
	}

	return IngestResult{
		ID:          uuid.NewString(),
		Date:        date,
		Action:      action,
		Delta:       inc,
		Reason:      reason,
		Accumulated: bucket.Energy,
	}, nil
}

// Refold rebuilds the daily row for a bucket. Totals mirror the bucket,
// peaks only ratchet upward, and the record count advances by exactly
// one, so callers must invoke it once per fold. Average voltage and
// current deliberately carry the latest instantaneous reading rather
// than a mean, matching the accounting the reports were built on.
func (e *Engine) Refold(deviceID, date string) error {
	e.refoldMu.Lock()
	defer e.refoldMu.Unlock()

	bucket, err := e.store.GetBucket(deviceID, date)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("read bucket: %w", err)
	}

	now := e.now().In(e.loc)
	d, err := e.store.GetDaily(date)
	switch {
	case err == store.ErrNotFound:
		d = store.DailyUsage{Date: date, CreatedAt: now}
	case err != nil:
		return fmt.Errorf("read daily row: %w", err)
	}

	d.TotalVoltage = bucket.Voltage
	d.TotalCurrent = bucket.Current
	d.TotalPower = bucket.Power
	d.TotalEnergy = bucket.Energy
	d.PeakVoltage = max(d.PeakVoltage, bucket.Voltage)
	d.PeakCurrent = max(d.PeakCurrent, bucket.Current)
	d.PeakPower = max(d.PeakPower, bucket.Power)
	d.RecordCount++
	d.AveragePower = d.TotalPower / float64(d.RecordCount)
	d.AverageVoltage = bucket.Voltage
	d.AverageCurrent = bucket.Current
	d.UpdatedAt = now

	if err := e.store.UpsertDaily(d); err != nil {
		return fmt.Errorf("upsert daily row: %w", err)
	}
	return nil
}

// RefreshWeek rebuilds the weekly rollup for the week containing ref.
// A week whose Saturday has passed is locked: its row can still be
// created if missing, but an existing row is never rewritten.
func (e *Engine) RefreshWeek(ref time.Time) (string, error) {
	ref = ref.In(e.loc)
	ws := period.WeekStart(ref)
	we := period.WeekEnd(ref)
	year := period.WeekYear(ref)
	week := period.WeekNumber(ref)

	days, err := e.store.ListDailyRange(period.DayKey(ws, e.loc), period.DayKey(we, e.loc))
	if err != nil {
		return "", fmt.Errorf("list daily rows: %w", err)
	}
	if len(days) == 0 {
		return OutcomeNoData, nil
	}

	now := e.now().In(e.loc)
	w := store.WeeklyUsage{
		Year:          year,
		WeekNumber:    week,
		WeekStartDate: period.DayKey(ws, e.loc),
		WeekEndDate:   period.DayKey(we, e.loc),
		DaysCount:     len(days),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, d := range days {
		w.TotalVoltage += d.TotalVoltage
		w.TotalCurrent += d.TotalCurrent
		w.TotalPower += d.TotalPower
		w.TotalEnergy += d.TotalEnergy
		w.PeakVoltage = max(w.PeakVoltage, d.PeakVoltage)
		w.PeakCurrent = max(w.PeakCurrent, d.PeakCurrent)
		w.PeakPower = max(w.PeakPower, d.PeakPower)
		w.AverageVoltage += d.AverageVoltage
		w.AverageCurrent += d.AverageCurrent
		w.AveragePower += d.AveragePower
	}
	n := float64(len(days))
	w.AverageVoltage /= n
	w.AverageCurrent /= n
	w.AveragePower /= n

	locked := now.After(we)
	existing, err := e.store.GetWeekly(year, week)
	switch {
	case err == store.ErrNotFound:
		if err := e.store.InsertWeekly(w); err != nil {
			return "", fmt.Errorf("insert weekly row: %w", err)
		}
		return OutcomeInserted, nil
	case err != nil:
		return "", fmt.Errorf("read weekly row: %w", err)
	case locked:
		e.metrics.LockedSkip("week")
		return OutcomeSkipped, nil
	default:
		w.CreatedAt = existing.CreatedAt
		if err := e.store.UpdateWeekly(w); err != nil {
			return "", fmt.Errorf("update weekly row: %w", err)
		}
		return OutcomeUpdated, nil
	}
}

// RefreshMonth rebuilds the monthly rollup from the weekly rows whose
// week starts inside the month. Lock semantics mirror RefreshWeek,
// with the month considered closed once today is strictly past its
// last day.
func (e *Engine) RefreshMonth(year int, month time.Month) (string, error) {
	first, last := period.MonthRange(year, month, e.loc)

	weeks, err := e.store.ListWeeklyByStartRange(period.DayKey(first, e.loc), period.DayKey(last, e.loc))
	if err != nil {
		return "", fmt.Errorf("list weekly rows: %w", err)
	}
	if len(weeks) == 0 {
		return OutcomeNoData, nil
	}

	now := e.now().In(e.loc)
	m := store.MonthlyUsage{
		Year:       year,
		Month:      int(month),
		MonthName:  period.MonthName(int(month)),
		WeeksCount: len(weeks),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, w := range weeks {
		m.TotalVoltage += w.TotalVoltage
		m.TotalCurrent += w.TotalCurrent
		m.TotalPower += w.TotalPower
		m.TotalEnergy += w.TotalEnergy
		m.PeakVoltage = max(m.PeakVoltage, w.PeakVoltage)
		m.PeakCurrent = max(m.PeakCurrent, w.PeakCurrent)
		m.PeakPower = max(m.PeakPower, w.PeakPower)
		m.AverageVoltage += w.AverageVoltage
		m.AverageCurrent += w.AverageCurrent
		m.AveragePower += w.AveragePower
	}
	n := float64(len(weeks))
	m.AverageVoltage /= n
	m.AverageCurrent /= n
	m.AveragePower /= n

	locked := period.Midnight(now).After(last)
	existing, err := e.store.GetMonthly(year, int(month))
	switch {
	case err == store.ErrNotFound:
		if err := e.store.InsertMonthly(m); err != nil {
			return "", fmt.Errorf("insert monthly row: %w", err)
		}
		return OutcomeInserted, nil
	case err != nil:
		return "", fmt.Errorf("read monthly row: %w", err)
	case locked:
		e.metrics.LockedSkip("month")
		return OutcomeSkipped, nil
	default:
		m.CreatedAt = existing.CreatedAt
		if err := e.store.UpdateMonthly(m); err != nil {
			return "", fmt.Errorf("update monthly row: %w", err)
		}
		return OutcomeUpdated, nil
	}
}
