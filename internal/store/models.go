package store

import "time"

// RawBucket is the single per-device, per-day row folded from raw
// samples. Voltage and current carry the most recent instantaneous
// reading (replace semantics); Power sums the instantaneous power of
// every sample folded in (a quirk of the source accounting, kept
// as-is); Energy sums the estimator's per-sample increments.
type RawBucket struct {
	DeviceID      string
	Date          string
	Voltage       float64
	Current       float64
	Power         float64
	Energy        float64
	LastUpdatedAt time.Time
}

// DailyUsage is the per-date rollup derived from the raw bucket.
type DailyUsage struct {
	Date           string
	TotalVoltage   float64
	TotalCurrent   float64
	TotalPower     float64
	TotalEnergy    float64
	PeakVoltage    float64
	PeakCurrent    float64
	PeakPower      float64
	AverageVoltage float64
	AverageCurrent float64
	AveragePower   float64
	RecordCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WeeklyUsage aggregates the daily rows of one Sunday-to-Saturday
// week, keyed by calendar year and ISO week number.
type WeeklyUsage struct {
	Year           int
	WeekNumber     int
	WeekStartDate  string
	WeekEndDate    string
	TotalVoltage   float64
	TotalCurrent   float64
	TotalPower     float64
	TotalEnergy    float64
	PeakVoltage    float64
	PeakCurrent    float64
	PeakPower      float64
	AverageVoltage float64
	AverageCurrent float64
	AveragePower   float64
	DaysCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MonthlyUsage aggregates the weekly rows whose week start falls
// inside the month.
type MonthlyUsage struct {
	Year           int
	Month          int
	MonthName      string
	TotalVoltage   float64
	TotalCurrent   float64
	TotalPower     float64
	TotalEnergy    float64
	PeakVoltage    float64
	PeakCurrent    float64
	PeakPower      float64
	AverageVoltage float64
	AverageCurrent float64
	AveragePower   float64
	WeeksCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BucketFold carries one sample's contribution to its day bucket.
// PowerAdd and EnergyAdd accumulate; Voltage and Current replace.
type BucketFold struct {
	DeviceID  string
	Date      string
	Voltage   float64
	Current   float64
	PowerAdd  float64
	EnergyAdd float64
	At        time.Time
}

// Fold actions reported back to the ingest caller.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
)
