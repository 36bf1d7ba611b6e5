package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/tsucare2025-capstone/wattwisepro/internal/period"
	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
)

// LiveUsage is the most recent sample's view: instantaneous voltage
// and current plus the power and energy that sample added on top of
// the bucket it landed in.
type LiveUsage struct {
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	Energy    float64   `json:"energy"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale"`
}

// YearTotal sums the monthly rollups of one calendar year.
type YearTotal struct {
	Year           int     `json:"year"`
	TotalVoltage   float64 `json:"total_voltage"`
	TotalCurrent   float64 `json:"total_current"`
	TotalPower     float64 `json:"total_power"`
	TotalEnergy    float64 `json:"total_energy"`
	PeakVoltage    float64 `json:"peak_voltage"`
	PeakCurrent    float64 `json:"peak_current"`
	PeakPower      float64 `json:"peak_power"`
	AverageVoltage float64 `json:"average_voltage"`
	AverageCurrent float64 `json:"average_current"`
	AveragePower   float64 `json:"average_power"`
	MonthsCount    int     `json:"months_count"`
}

// DayUsage returns the daily row for a date key, or a zero-filled row
// when no data exists for that day.
func (e *Engine) DayUsage(date string) (store.DailyUsage, error) {
	d, err := e.store.GetDaily(date)
	if errors.Is(err, store.ErrNotFound) {
		return store.DailyUsage{Date: date}, nil
	}
	if err != nil {
		return store.DailyUsage{}, err
	}
	return d, nil
}

// WeekDays returns exactly seven daily rows, Sunday through Saturday,
// for the week containing ref. Days without data come back zero-filled
// so clients always render a full week.
func (e *Engine) WeekDays(ref time.Time) ([]store.DailyUsage, error) {
	ref = ref.In(e.loc)
	ws := period.WeekStart(ref)
	we := period.WeekEnd(ref)

	rows, err := e.store.ListDailyRange(period.DayKey(ws, e.loc), period.DayKey(we, e.loc))
	if err != nil {
		return nil, fmt.Errorf("list daily rows: %w", err)
	}
	byDate := make(map[string]store.DailyUsage, len(rows))
	for _, d := range rows {
		byDate[d.Date] = d
	}

	out := make([]store.DailyUsage, 0, 7)
	for i := 0; i < 7; i++ {
		key := period.DayKey(ws.AddDate(0, 0, i), e.loc)
		if d, ok := byDate[key]; ok {
			out = append(out, d)
		} else {
			out = append(out, store.DailyUsage{Date: key})
		}
	}
	return out, nil
}

// RecentWeeks returns the configured number of weekly rows ending with
// the current week, oldest first, zero-filling weeks with no data.
func (e *Engine) RecentWeeks() ([]store.WeeklyUsage, error) {
	now := e.now().In(e.loc)
	ws := period.WeekStart(now)

	starts := make([]time.Time, 0, e.recent)
	for i := e.recent - 1; i >= 0; i-- {
		starts = append(starts, ws.AddDate(0, 0, -7*i))
	}

	rows, err := e.store.ListWeeklyByStartRange(
		period.DayKey(starts[0], e.loc), period.DayKey(ws, e.loc))
	if err != nil {
		return nil, fmt.Errorf("list weekly rows: %w", err)
	}
	byStart := make(map[string]store.WeeklyUsage, len(rows))
	for _, w := range rows {
		byStart[w.WeekStartDate] = w
	}

	out := make([]store.WeeklyUsage, 0, e.recent)
	for _, s := range starts {
		key := period.DayKey(s, e.loc)
		if w, ok := byStart[key]; ok {
			out = append(out, w)
			continue
		}
		out = append(out, store.WeeklyUsage{
			Year:          period.WeekYear(s),
			WeekNumber:    period.WeekNumber(s),
			WeekStartDate: key,
			WeekEndDate:   period.DayKey(period.WeekEnd(s), e.loc),
		})
	}
	return out, nil
}

// MonthsOfYear returns twelve ordered monthly rows for a year,
// zero-filling the months with no data.
func (e *Engine) MonthsOfYear(year int) ([]store.MonthlyUsage, error) {
	rows, err := e.store.ListMonthlyYear(year)
	if err != nil {
		return nil, fmt.Errorf("list monthly rows: %w", err)
	}
	byMonth := make(map[int]store.MonthlyUsage, len(rows))
	for _, m := range rows {
		byMonth[m.Month] = m
	}

	out := make([]store.MonthlyUsage, 0, 12)
	for month := 1; month <= 12; month++ {
		if m, ok := byMonth[month]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, store.MonthlyUsage{
			Year:      year,
			Month:     month,
			MonthName: period.MonthName(month),
		})
	}
	return out, nil
}

// CurrentMonth returns this month's rollup, zero-filled when absent.
func (e *Engine) CurrentMonth() (store.MonthlyUsage, error) {
	now := e.now().In(e.loc)
	m, err := e.store.GetMonthly(now.Year(), int(now.Month()))
	if errors.Is(err, store.ErrNotFound) {
		return store.MonthlyUsage{
			Year:      now.Year(),
			Month:     int(now.Month()),
			MonthName: period.MonthName(int(now.Month())),
		}, nil
	}
	if err != nil {
		return store.MonthlyUsage{}, err
	}
	return m, nil
}

// CurrentYearTotal sums this year's monthly rows: totals add up, peaks
// take the maximum, and averages are the mean of the month averages.
func (e *Engine) CurrentYearTotal() (YearTotal, error) {
	now := e.now().In(e.loc)
	rows, err := e.store.ListMonthlyYear(now.Year())
	if err != nil {
		return YearTotal{}, fmt.Errorf("list monthly rows: %w", err)
	}

	t := YearTotal{Year: now.Year(), MonthsCount: len(rows)}
	for _, m := range rows {
		t.TotalVoltage += m.TotalVoltage
		t.TotalCurrent += m.TotalCurrent
		t.TotalPower += m.TotalPower
		t.TotalEnergy += m.TotalEnergy
		t.PeakVoltage = max(t.PeakVoltage, m.PeakVoltage)
		t.PeakCurrent = max(t.PeakCurrent, m.PeakCurrent)
		t.PeakPower = max(t.PeakPower, m.PeakPower)
		t.AverageVoltage += m.AverageVoltage
		t.AverageCurrent += m.AverageCurrent
		t.AveragePower += m.AveragePower
	}
	if len(rows) > 0 {
		n := float64(len(rows))
		t.AverageVoltage /= n
		t.AverageCurrent /= n
		t.AveragePower /= n
	}
	return t, nil
}

// Live returns the most recent sample's contribution. Once the latest
// bucket is older than the stale threshold the reading reports zeros,
// signalling the meter has gone quiet.
func (e *Engine) Live() (LiveUsage, error) {
	bucket, err := e.store.LatestBucket()
	if errors.Is(err, store.ErrNotFound) {
		return LiveUsage{Stale: true}, nil
	}
	if err != nil {
		return LiveUsage{}, fmt.Errorf("read latest bucket: %w", err)
	}

	now := e.now()
	if now.Sub(bucket.LastUpdatedAt) > e.stale {
		return LiveUsage{Timestamp: bucket.LastUpdatedAt, Stale: true}, nil
	}

	live := LiveUsage{
		Voltage:   bucket.Voltage,
		Current:   bucket.Current,
		Power:     bucket.Power,
		Energy:    bucket.Energy,
		Timestamp: bucket.LastUpdatedAt,
	}
	// With a snapshot the view narrows to what the last sample added;
	// without one (fresh process) the day totals stand in. Negative
	// increments are clamped rather than shown.
	if snap, ok := e.cache.Previous(bucket.DeviceID); ok && !snap.Timestamp.IsZero() {
		live.Power = max(0, bucket.Power-snap.Power)
		live.Energy = max(0, bucket.Energy-snap.Accumulated)
	}
	return live, nil
}
