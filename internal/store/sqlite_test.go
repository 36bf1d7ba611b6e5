package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFoldBucketInsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2025, 11, 17, 8, 0, 0, 0, time.UTC)

	b, action, err := s.FoldBucket(BucketFold{
		DeviceID: "m1", Date: "2025-11-17",
		Voltage: 230, Current: 1.2, PowerAdd: 276, EnergyAdd: 0.023, At: at,
	})
	if err != nil {
		t.Fatalf("first fold: %v", err)
	}
	if action != ActionInserted {
		t.Fatalf("action = %s, want %s", action, ActionInserted)
	}
	if b.Power != 276 || b.Energy != 0.023 {
		t.Fatalf("unexpected bucket after insert: %+v", b)
	}

	b, action, err = s.FoldBucket(BucketFold{
		DeviceID: "m1", Date: "2025-11-17",
		Voltage: 229, Current: 1.1, PowerAdd: 252, EnergyAdd: 0.021, At: at.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("second fold: %v", err)
	}
	if action != ActionUpdated {
		t.Fatalf("action = %s, want %s", action, ActionUpdated)
	}
	// Voltage and current replace; power and energy accumulate.
	if b.Voltage != 229 || b.Current != 1.1 {
		t.Fatalf("voltage/current should replace: %+v", b)
	}
	if b.Power != 528 || diff(b.Energy, 0.044) {
		t.Fatalf("power/energy should accumulate: %+v", b)
	}

	got, err := s.GetBucket("m1", "2025-11-17")
	if err != nil {
		t.Fatalf("get bucket: %v", err)
	}
	if got.Power != b.Power || got.Energy != b.Energy {
		t.Fatalf("persisted bucket differs: %+v vs %+v", got, b)
	}
}

func TestFoldBucketKeepsOneRowPerDay(t *testing.T) {
	s := newTestStore(t)
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, _, err := s.FoldBucket(BucketFold{
			DeviceID: "m1", Date: "2025-11-17",
			Voltage: 230, Current: 1, PowerAdd: 100, EnergyAdd: 0.01, At: at,
		})
		if err != nil {
			t.Fatalf("fold %d: %v", i, err)
		}
	}
	// A different day gets its own row.
	if _, _, err := s.FoldBucket(BucketFold{
		DeviceID: "m1", Date: "2025-11-18",
		Voltage: 230, Current: 1, PowerAdd: 100, EnergyAdd: 0.01, At: at,
	}); err != nil {
		t.Fatalf("next day fold: %v", err)
	}

	b, err := s.GetBucket("m1", "2025-11-17")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Power != 500 || diff(b.Energy, 0.05) {
		t.Fatalf("five folds should accumulate in one row: %+v", b)
	}
}

func TestLatestBucket(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LatestBucket(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store should return ErrNotFound, got %v", err)
	}

	base := time.Date(2025, 11, 17, 8, 0, 0, 0, time.UTC)
	for i, d := range []string{"2025-11-16", "2025-11-17"} {
		if _, _, err := s.FoldBucket(BucketFold{
			DeviceID: "m1", Date: d,
			Voltage: 230, Current: 1, PowerAdd: 100, EnergyAdd: 0.01,
			At: base.AddDate(0, 0, i),
		}); err != nil {
			t.Fatalf("fold: %v", err)
		}
	}

	b, err := s.LatestBucket()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if b.Date != "2025-11-17" {
		t.Fatalf("latest date = %s", b.Date)
	}
}

func TestDailyUpsertAndRange(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetDaily("2025-11-17"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing row should return ErrNotFound, got %v", err)
	}

	now := time.Now().UTC()
	d := DailyUsage{
		Date: "2025-11-17", TotalPower: 500, TotalEnergy: 0.05,
		PeakPower: 276, AveragePower: 100, RecordCount: 5,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.UpsertDaily(d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	d.TotalPower = 600
	d.RecordCount = 6
	if err := s.UpsertDaily(d); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetDaily("2025-11-17")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalPower != 600 || got.RecordCount != 6 {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}

	other := DailyUsage{Date: "2025-11-19", CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertDaily(other); err != nil {
		t.Fatalf("insert other: %v", err)
	}
	rows, err := s.ListDailyRange("2025-11-16", "2025-11-22")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 2 || rows[0].Date != "2025-11-17" || rows[1].Date != "2025-11-19" {
		t.Fatalf("range rows wrong: %+v", rows)
	}
}

func TestWeeklyInsertUpdateAndRanges(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	w := WeeklyUsage{
		Year: 2025, WeekNumber: 47,
		WeekStartDate: "2025-11-16", WeekEndDate: "2025-11-22",
		TotalEnergy: 1.5, PeakPower: 300, AveragePower: 120, DaysCount: 3,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.InsertWeekly(w); err != nil {
		t.Fatalf("insert: %v", err)
	}
	w.TotalEnergy = 2.0
	w.DaysCount = 4
	if err := s.UpdateWeekly(w); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetWeekly(2025, 47)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff(got.TotalEnergy, 2.0) || got.DaysCount != 4 {
		t.Fatalf("update not applied: %+v", got)
	}

	prev := WeeklyUsage{
		Year: 2025, WeekNumber: 46,
		WeekStartDate: "2025-11-09", WeekEndDate: "2025-11-15",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.InsertWeekly(prev); err != nil {
		t.Fatalf("insert prev: %v", err)
	}

	rows, err := s.ListWeeklyByStartRange("2025-11-01", "2025-11-30")
	if err != nil {
		t.Fatalf("start range: %v", err)
	}
	if len(rows) != 2 || rows[0].WeekNumber != 46 || rows[1].WeekNumber != 47 {
		t.Fatalf("start range ordering wrong: %+v", rows)
	}

	recent, err := s.ListRecentWeekly(1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].WeekNumber != 47 {
		t.Fatalf("recent should return newest week: %+v", recent)
	}
}

func TestMonthlyInsertUpdateAndYear(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	if _, err := s.GetMonthly(2025, 11); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing row should return ErrNotFound, got %v", err)
	}

	m := MonthlyUsage{
		Year: 2025, Month: 11, MonthName: "November",
		TotalEnergy: 40, PeakPower: 800, AveragePower: 150, WeeksCount: 4,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.InsertMonthly(m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	m.TotalEnergy = 42
	if err := s.UpdateMonthly(m); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.InsertMonthly(MonthlyUsage{
		Year: 2025, Month: 3, MonthName: "March", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("insert march: %v", err)
	}
	if err := s.InsertMonthly(MonthlyUsage{
		Year: 2024, Month: 11, MonthName: "November", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("insert other year: %v", err)
	}

	rows, err := s.ListMonthlyYear(2025)
	if err != nil {
		t.Fatalf("year: %v", err)
	}
	if len(rows) != 2 || rows[0].Month != 3 || rows[1].Month != 11 {
		t.Fatalf("year rows wrong: %+v", rows)
	}
	if diff(rows[1].TotalEnergy, 42) {
		t.Fatalf("update not applied: %+v", rows[1])
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func diff(got, want float64) bool {
	d := got - want
	return d > 1e-9 || d < -1e-9
}
