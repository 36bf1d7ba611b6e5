package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
)

// envelope is the response wrapper every endpoint uses. Data is only
// present on success, Error only on failure.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	WeekStart string `json:"weekStart,omitempty"`
	WeekEnd   string `json:"weekEnd,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

type dailyJSON struct {
	Date           string  `json:"date"`
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
	RecordCount    int     `json:"record_count"`
	CreatedAt      *string `json:"created_at"`
	UpdatedAt      *string `json:"updated_at"`
}

type weeklyJSON struct {
	Year          int     `json:"year"`
	WeekNumber    int     `json:"week_number"`
	WeekStartDate string  `json:"week_start_date"`
	WeekEndDate   string  `json:"week_end_date"`
	TotalVoltage  float64 `json:"total_voltage"`
	TotalCurrent  float64 `json:"total_current"`
	TotalPower    float64 `json:"total_power"`
	TotalEnergy   float64 `json:"total_energy"`
	PeakVoltage   float64 `json:"peak_voltage"`
	PeakCurrent   float64 `json:"peak_current"`
	PeakPower     float64 `json:"peak_power"`
	AverageVolt   float64 `json:"average_voltage"`
	AverageCurr   float64 `json:"average_current"`
	AveragePower  float64 `json:"average_power"`
	DaysCount     int     `json:"days_count"`
	CreatedAt     *string `json:"created_at"`
	UpdatedAt     *string `json:"updated_at"`
}

type monthlyJSON struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	MonthName    string  `json:"month_name"`
	TotalVoltage float64 `json:"total_voltage"`
	TotalCurrent float64 `json:"total_current"`
	TotalPower   float64 `json:"total_power"`
	TotalEnergy  float64 `json:"total_energy"`
	PeakVoltage  float64 `json:"peak_voltage"`
	PeakCurrent  float64 `json:"peak_current"`
	PeakPower    float64 `json:"peak_power"`
	AverageVolt  float64 `json:"average_voltage"`
	AverageCurr  float64 `json:"average_current"`
	AveragePower float64 `json:"average_power"`
	WeeksCount   int     `json:"weeks_count"`
	CreatedAt    *string `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
}

// timestampOrNull mirrors the convention that rows which were never
// written carry null timestamps rather than zero times.
func timestampOrNull(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func dailyToJSON(d store.DailyUsage) dailyJSON {
	return dailyJSON{
		Date:           d.Date,
		TotalVoltage:   d.TotalVoltage,
		TotalCurrent:   d.TotalCurrent,
		TotalPower:     d.TotalPower,
		TotalEnergy:    d.TotalEnergy,
		PeakVoltage:    d.PeakVoltage,
		PeakCurrent:    d.PeakCurrent,
		PeakPower:      d.PeakPower,
		AverageVoltage: d.AverageVoltage,
		AverageCurrent: d.AverageCurrent,
		AveragePower:   d.AveragePower,
		RecordCount:    d.RecordCount,
		CreatedAt:      timestampOrNull(d.CreatedAt),
		UpdatedAt:      timestampOrNull(d.UpdatedAt),
	}
}

func weeklyToJSON(w store.WeeklyUsage) weeklyJSON {
	return weeklyJSON{
		Year:          w.Year,
		WeekNumber:    w.WeekNumber,
		WeekStartDate: w.WeekStartDate,
		WeekEndDate:   w.WeekEndDate,
		TotalVoltage:  w.TotalVoltage,
		TotalCurrent:  w.TotalCurrent,
		TotalPower:    w.TotalPower,
		TotalEnergy:   w.TotalEnergy,
		PeakVoltage:   w.PeakVoltage,
		PeakCurrent:   w.PeakCurrent,
		PeakPower:     w.PeakPower,
		AverageVolt:   w.AverageVoltage,
		AverageCurr:   w.AverageCurrent,
		AveragePower:  w.AveragePower,
		DaysCount:     w.DaysCount,
		CreatedAt:     timestampOrNull(w.CreatedAt),
		UpdatedAt:     timestampOrNull(w.UpdatedAt),
	}
}

func monthlyToJSON(m store.MonthlyUsage) monthlyJSON {
	return monthlyJSON{
		Year:         m.Year,
		Month:        m.Month,
		MonthName:    m.MonthName,
		TotalVoltage: m.TotalVoltage,
		TotalCurrent: m.TotalCurrent,
		TotalPower:   m.TotalPower,
		TotalEnergy:  m.TotalEnergy,
		PeakVoltage:  m.PeakVoltage,
		PeakCurrent:  m.PeakCurrent,
		PeakPower:    m.PeakPower,
		AverageVolt:  m.AverageVoltage,
		AverageCurr:  m.AverageCurrent,
		AveragePower: m.AveragePower,
		WeeksCount:   m.WeeksCount,
		CreatedAt:    timestampOrNull(m.CreatedAt),
		UpdatedAt:    timestampOrNull(m.UpdatedAt),
	}
}
