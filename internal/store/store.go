// Package store persists raw day buckets and the daily, weekly, and
// monthly rollups derived from them.
package store

import "errors"

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary of the aggregation engine. All
// methods are safe for concurrent use.
type Store interface {
	// FoldBucket applies one sample to its (device, day) bucket in a
	// single transaction, creating the row if absent. It returns the
	// bucket as it stands after the fold and whether the row was
	// inserted or updated.
	FoldBucket(f BucketFold) (RawBucket, string, error)
	GetBucket(deviceID, date string) (RawBucket, error)
	LatestBucket() (RawBucket, error)

	GetDaily(date string) (DailyUsage, error)
	UpsertDaily(d DailyUsage) error
	// ListDailyRange returns the daily rows with from <= date <= to,
	// ordered by date ascending.
	ListDailyRange(from, to string) ([]DailyUsage, error)

	GetWeekly(year, week int) (WeeklyUsage, error)
	InsertWeekly(w WeeklyUsage) error
	UpdateWeekly(w WeeklyUsage) error
	// ListWeeklyByStartRange returns the weekly rows whose
	// week_start_date falls within from..to inclusive, ordered by
	// week_start_date ascending.
	ListWeeklyByStartRange(from, to string) ([]WeeklyUsage, error)
	ListRecentWeekly(limit int) ([]WeeklyUsage, error)

	GetMonthly(year, month int) (MonthlyUsage, error)
	InsertMonthly(m MonthlyUsage) error
	UpdateMonthly(m MonthlyUsage) error
	ListMonthlyYear(year int) ([]MonthlyUsage, error)

	Ping() error
	Close() error
}
