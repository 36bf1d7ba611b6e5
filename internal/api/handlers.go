// Package api exposes the ingest and reporting endpoints over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tsucare2025-capstone/wattwisepro/internal/store"
	"github.com/tsucare2025-capstone/wattwisepro/internal/usage"
)

var dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// defaultDeviceID labels samples from clients that don't identify
// themselves. The reference deployment is a single household meter.
const defaultDeviceID = "meter-1"

// Server holds the handler dependencies.
type Server struct {
	engine *usage.Engine
	store  store.Store
	log    *slog.Logger
	now    func() time.Time
}

func NewServer(engine *usage.Engine, st store.Store, log *slog.Logger, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{engine: engine, store: st, log: log, now: now}
}

type rawSampleRequest struct {
	DeviceID string   `json:"device_id"`
	Voltage  *float64 `json:"voltage"`
	Current  *float64 `json:"current"`
	Power    *float64 `json:"power"`
	Energy   *float64 `json:"energy"`
}

func (s *Server) postRawUsage(w http.ResponseWriter, r *http.Request) {
	var req rawSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Voltage == nil || req.Current == nil || req.Power == nil || req.Energy == nil {
		writeError(w, http.StatusBadRequest,
			"Missing required parameters: voltage, current, power, energy")
		return
	}
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = defaultDeviceID
	}

	res, err := s.engine.Ingest(usage.Sample{
		DeviceID: deviceID,
		Voltage:  *req.Voltage,
		Current:  *req.Current,
		Power:    *req.Power,
		Energy:   *req.Energy,
	})
	if err != nil {
		s.log.Error("ingest failed", "device", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save usage data")
		return
	}

	s.log.Info("sample ingested",
		"id", res.ID, "device", deviceID, "date", res.Date,
		"action", res.Action, "delta", res.Delta, "reason", string(res.Reason))
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Data saved successfully",
		Data: map[string]any{
			"id":                 res.ID,
			"date":               res.Date,
			"action":             res.Action,
			"energy_delta":       res.Delta,
			"accumulated_energy": res.Accumulated,
		},
	})
}

func (s *Server) getDailyByDate(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if !dayKeyPattern.MatchString(date) {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}

	d, err := s.engine.DayUsage(date)
	if err != nil {
		s.log.Error("daily lookup failed", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read daily usage")
		return
	}

	msg := "Daily usage data retrieved successfully"
	if d.RecordCount == 0 {
		msg = "No usage data found for this date"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: dailyToJSON(d)})
}

func (s *Server) getDailyWeek(w http.ResponseWriter, r *http.Request) {
	days, err := s.engine.WeekDays(s.now())
	if err != nil {
		s.log.Error("week lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read weekly breakdown")
		return
	}

	out := make([]dailyJSON, 0, len(days))
	for _, d := range days {
		out = append(out, dailyToJSON(d))
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Message:   "Daily usage data retrieved successfully",
		Data:      out,
		WeekStart: days[0].Date,
		WeekEnd:   days[len(days)-1].Date,
	})
}

func (s *Server) getWeeklyRecent(w http.ResponseWriter, r *http.Request) {
	weeks, err := s.engine.RecentWeeks()
	if err != nil {
		s.log.Error("recent weeks lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read weekly usage")
		return
	}

	out := make([]weeklyJSON, 0, len(weeks))
	for _, wk := range weeks {
		out = append(out, weeklyToJSON(wk))
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Weekly usage data retrieved successfully",
		Data:    out,
	})
}

func (s *Server) getMonthlyYear(w http.ResponseWriter, r *http.Request) {
	year := s.now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = n
	}

	months, err := s.engine.MonthsOfYear(year)
	if err != nil {
		s.log.Error("monthly lookup failed", "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read monthly usage")
		return
	}

	out := make([]monthlyJSON, 0, len(months))
	for _, m := range months {
		out = append(out, monthlyToJSON(m))
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Monthly usage data retrieved successfully",
		Data:    out,
	})
}

func (s *Server) getMonthlyCurrent(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.CurrentMonth()
	if err != nil {
		s.log.Error("current month lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read current month usage")
		return
	}

	msg := "Current month usage data retrieved successfully"
	if m.WeeksCount == 0 {
		msg = "No usage data found for current month"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: monthlyToJSON(m)})
}

func (s *Server) getYearTotal(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.CurrentYearTotal()
	if err != nil {
		s.log.Error("year total lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read year total usage")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Year total usage data retrieved successfully",
		Data:    t,
	})
}

func (s *Server) getRawLatest(w http.ResponseWriter, r *http.Request) {
	live, err := s.engine.Live()
	if err != nil {
		s.log.Error("live lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read latest usage")
		return
	}

	msg := "Latest usage data retrieved successfully"
	if live.Stale {
		msg = "Hardware appears to be off - no recent data"
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: live})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.log.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}
