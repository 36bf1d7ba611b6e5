package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a single SQLite database file. A
// mutex serializes writers; SQLite WAL mode keeps readers cheap.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// bootstraps the schema. Pass ":memory:" for an in-process database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = "file::memory:?cache=shared&_busy_timeout=5000"
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The shared-cache in-memory database vanishes when its last
	// connection closes, so hold exactly one.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		date TEXT NOT NULL,
		voltage REAL NOT NULL,
		current REAL NOT NULL,
		power REAL NOT NULL,
		energy REAL NOT NULL,
		last_updated_at DATETIME NOT NULL,
		UNIQUE(device_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_raw_usage_date ON raw_usage(date);

	CREATE TABLE IF NOT EXISTS daily_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		total_voltage REAL NOT NULL,
		total_current REAL NOT NULL,
		total_power REAL NOT NULL,
		total_energy REAL NOT NULL,
		peak_voltage REAL NOT NULL,
		peak_current REAL NOT NULL,
		peak_power REAL NOT NULL,
		average_voltage REAL NOT NULL,
		average_current REAL NOT NULL,
		average_power REAL NOT NULL,
		record_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		week_number INTEGER NOT NULL,
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		total_voltage REAL NOT NULL,
		total_current REAL NOT NULL,
		total_power REAL NOT NULL,
		total_energy REAL NOT NULL,
		peak_voltage REAL NOT NULL,
		peak_current REAL NOT NULL,
		peak_power REAL NOT NULL,
		average_voltage REAL NOT NULL,
		average_current REAL NOT NULL,
		average_power REAL NOT NULL,
		days_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(year, week_number)
	);

	CREATE INDEX IF NOT EXISTS idx_weekly_start ON weekly_usage(week_start_date);

	CREATE TABLE IF NOT EXISTS monthly_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		month_name TEXT NOT NULL,
		total_voltage REAL NOT NULL,
		total_current REAL NOT NULL,
		total_power REAL NOT NULL,
		total_energy REAL NOT NULL,
		peak_voltage REAL NOT NULL,
		peak_current REAL NOT NULL,
		peak_power REAL NOT NULL,
		average_voltage REAL NOT NULL,
		average_current REAL NOT NULL,
		average_power REAL NOT NULL,
		weeks_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(year, month)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return nil
}

// FoldBucket applies one sample to its day bucket inside a single
// transaction. The SELECT and the INSERT/UPDATE commit together, so
// concurrent folds for the same day cannot both insert.
func (s *SQLiteStore) FoldBucket(f BucketFold) (RawBucket, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return RawBucket{}, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var b RawBucket
	err = tx.QueryRow(`
		SELECT device_id, date, voltage, current, power, energy, last_updated_at
		FROM raw_usage WHERE device_id = ? AND date = ?`,
		f.DeviceID, f.Date,
	).Scan(&b.DeviceID, &b.Date, &b.Voltage, &b.Current, &b.Power, &b.Energy, &b.LastUpdatedAt)

	action := ActionUpdated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		action = ActionInserted
		b = RawBucket{
			DeviceID:      f.DeviceID,
			Date:          f.Date,
			Voltage:       f.Voltage,
			Current:       f.Current,
			Power:         f.PowerAdd,
			Energy:        f.EnergyAdd,
			LastUpdatedAt: f.At,
		}
		_, err = tx.Exec(`
			INSERT INTO raw_usage (device_id, date, voltage, current, power, energy, last_updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.DeviceID, b.Date, b.Voltage, b.Current, b.Power, b.Energy, b.LastUpdatedAt)
		if err != nil {
			return RawBucket{}, "", fmt.Errorf("failed to insert bucket: %w", err)
		}
	case err != nil:
		return RawBucket{}, "", fmt.Errorf("failed to read bucket: %w", err)
	default:
		b.Voltage = f.Voltage
		b.Current = f.Current
		b.Power += f.PowerAdd
		b.Energy += f.EnergyAdd
		b.LastUpdatedAt = f.At
		_, err = tx.Exec(`
			UPDATE raw_usage SET voltage = ?, current = ?, power = ?, energy = ?, last_updated_at = ?
			WHERE device_id = ? AND date = ?`,
			b.Voltage, b.Current, b.Power, b.Energy, b.LastUpdatedAt, b.DeviceID, b.Date)
		if err != nil {
			return RawBucket{}, "", fmt.Errorf("failed to update bucket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return RawBucket{}, "", fmt.Errorf("failed to commit fold: %w", err)
	}
	return b, action, nil
}

func (s *SQLiteStore) GetBucket(deviceID, date string) (RawBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b RawBucket
	err := s.db.QueryRow(`
		SELECT device_id, date, voltage, current, power, energy, last_updated_at
		FROM raw_usage WHERE device_id = ? AND date = ?`,
		deviceID, date,
	).Scan(&b.DeviceID, &b.Date, &b.Voltage, &b.Current, &b.Power, &b.Energy, &b.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RawBucket{}, ErrNotFound
	}
	if err != nil {
		return RawBucket{}, fmt.Errorf("failed to query bucket: %w", err)
	}
	return b, nil
}

// LatestBucket returns the most recently touched bucket across all
// devices, feeding the live-usage view.
func (s *SQLiteStore) LatestBucket() (RawBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b RawBucket
	err := s.db.QueryRow(`
		SELECT device_id, date, voltage, current, power, energy, last_updated_at
		FROM raw_usage ORDER BY last_updated_at DESC LIMIT 1`,
	).Scan(&b.DeviceID, &b.Date, &b.Voltage, &b.Current, &b.Power, &b.Energy, &b.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RawBucket{}, ErrNotFound
	}
	if err != nil {
		return RawBucket{}, fmt.Errorf("failed to query latest bucket: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) GetDaily(date string) (DailyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(dailySelect+` WHERE date = ?`, date)
	d, err := scanDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyUsage{}, ErrNotFound
	}
	if err != nil {
		return DailyUsage{}, fmt.Errorf("failed to query daily row: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) UpsertDaily(d DailyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO daily_usage (
			date, total_voltage, total_current, total_power, total_energy,
			peak_voltage, peak_current, peak_power,
			average_voltage, average_current, average_power,
			record_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_voltage = excluded.total_voltage,
			total_current = excluded.total_current,
			total_power = excluded.total_power,
			total_energy = excluded.total_energy,
			peak_voltage = excluded.peak_voltage,
			peak_current = excluded.peak_current,
			peak_power = excluded.peak_power,
			average_voltage = excluded.average_voltage,
			average_current = excluded.average_current,
			average_power = excluded.average_power,
			record_count = excluded.record_count,
			updated_at = excluded.updated_at`,
		d.Date, d.TotalVoltage, d.TotalCurrent, d.TotalPower, d.TotalEnergy,
		d.PeakVoltage, d.PeakCurrent, d.PeakPower,
		d.AverageVoltage, d.AverageCurrent, d.AveragePower,
		d.RecordCount, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDailyRange(from, to string) ([]DailyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(dailySelect+` WHERE date >= ? AND date <= ? ORDER BY date ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily range: %w", err)
	}
	defer rows.Close()

	var out []DailyUsage
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetWeekly(year, week int) (WeeklyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(weeklySelect+` WHERE year = ? AND week_number = ?`, year, week)
	w, err := scanWeekly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return WeeklyUsage{}, ErrNotFound
	}
	if err != nil {
		return WeeklyUsage{}, fmt.Errorf("failed to query weekly row: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) InsertWeekly(w WeeklyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO weekly_usage (
			year, week_number, week_start_date, week_end_date,
			total_voltage, total_current, total_power, total_energy,
			peak_voltage, peak_current, peak_power,
			average_voltage, average_current, average_power,
			days_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Year, w.WeekNumber, w.WeekStartDate, w.WeekEndDate,
		w.TotalVoltage, w.TotalCurrent, w.TotalPower, w.TotalEnergy,
		w.PeakVoltage, w.PeakCurrent, w.PeakPower,
		w.AverageVoltage, w.AverageCurrent, w.AveragePower,
		w.DaysCount, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert weekly row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateWeekly(w WeeklyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE weekly_usage SET
			week_start_date = ?, week_end_date = ?,
			total_voltage = ?, total_current = ?, total_power = ?, total_energy = ?,
			peak_voltage = ?, peak_current = ?, peak_power = ?,
			average_voltage = ?, average_current = ?, average_power = ?,
			days_count = ?, updated_at = ?
		WHERE year = ? AND week_number = ?`,
		w.WeekStartDate, w.WeekEndDate,
		w.TotalVoltage, w.TotalCurrent, w.TotalPower, w.TotalEnergy,
		w.PeakVoltage, w.PeakCurrent, w.PeakPower,
		w.AverageVoltage, w.AverageCurrent, w.AveragePower,
		w.DaysCount, w.UpdatedAt, w.Year, w.WeekNumber)
	if err != nil {
		return fmt.Errorf("failed to update weekly row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListWeeklyByStartRange(from, to string) ([]WeeklyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(weeklySelect+` WHERE week_start_date >= ? AND week_start_date <= ? ORDER BY week_start_date ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly range: %w", err)
	}
	defer rows.Close()
	return collectWeekly(rows)
}

func (s *SQLiteStore) ListRecentWeekly(limit int) ([]WeeklyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(weeklySelect+` ORDER BY week_start_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent weeks: %w", err)
	}
	defer rows.Close()
	return collectWeekly(rows)
}

func (s *SQLiteStore) GetMonthly(year, month int) (MonthlyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(monthlySelect+` WHERE year = ? AND month = ?`, year, month)
	m, err := scanMonthly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MonthlyUsage{}, ErrNotFound
	}
	if err != nil {
		return MonthlyUsage{}, fmt.Errorf("failed to query monthly row: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) InsertMonthly(m MonthlyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO monthly_usage (
			year, month, month_name,
			total_voltage, total_current, total_power, total_energy,
			peak_voltage, peak_current, peak_power,
			average_voltage, average_current, average_power,
			weeks_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Year, m.Month, m.MonthName,
		m.TotalVoltage, m.TotalCurrent, m.TotalPower, m.TotalEnergy,
		m.PeakVoltage, m.PeakCurrent, m.PeakPower,
		m.AverageVoltage, m.AverageCurrent, m.AveragePower,
		m.WeeksCount, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert monthly row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMonthly(m MonthlyUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE monthly_usage SET
			month_name = ?,
			total_voltage = ?, total_current = ?, total_power = ?, total_energy = ?,
			peak_voltage = ?, peak_current = ?, peak_power = ?,
			average_voltage = ?, average_current = ?, average_power = ?,
			weeks_count = ?, updated_at = ?
		WHERE year = ? AND month = ?`,
		m.MonthName,
		m.TotalVoltage, m.TotalCurrent, m.TotalPower, m.TotalEnergy,
		m.PeakVoltage, m.PeakCurrent, m.PeakPower,
		m.AverageVoltage, m.AverageCurrent, m.AveragePower,
		m.WeeksCount, m.UpdatedAt, m.Year, m.Month)
	if err != nil {
		return fmt.Errorf("failed to update monthly row: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMonthlyYear(year int) ([]MonthlyUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(monthlySelect+` WHERE year = ? ORDER BY month ASC`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly rows: %w", err)
	}
	defer rows.Close()

	var out []MonthlyUsage
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const dailySelect = `
	SELECT date, total_voltage, total_current, total_power, total_energy,
		   peak_voltage, peak_current, peak_power,
		   average_voltage, average_current, average_power,
		   record_count, created_at, updated_at
	FROM daily_usage`

const weeklySelect = `
	SELECT year, week_number, week_start_date, week_end_date,
		   total_voltage, total_current, total_power, total_energy,
		   peak_voltage, peak_current, peak_power,
		   average_voltage, average_current, average_power,
		   days_count, created_at, updated_at
	FROM weekly_usage`

const monthlySelect = `
	SELECT year, month, month_name,
		   total_voltage, total_current, total_power, total_energy,
		   peak_voltage, peak_current, peak_power,
		   average_voltage, average_current, average_power,
		   weeks_count, created_at, updated_at
	FROM monthly_usage`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDaily(r rowScanner) (DailyUsage, error) {
	var d DailyUsage
	err := r.Scan(
		&d.Date, &d.TotalVoltage, &d.TotalCurrent, &d.TotalPower, &d.TotalEnergy,
		&d.PeakVoltage, &d.PeakCurrent, &d.PeakPower,
		&d.AverageVoltage, &d.AverageCurrent, &d.AveragePower,
		&d.RecordCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func scanWeekly(r rowScanner) (WeeklyUsage, error) {
	var w WeeklyUsage
	err := r.Scan(
		&w.Year, &w.WeekNumber, &w.WeekStartDate, &w.WeekEndDate,
		&w.TotalVoltage, &w.TotalCurrent, &w.TotalPower, &w.TotalEnergy,
		&w.PeakVoltage, &w.PeakCurrent, &w.PeakPower,
		&w.AverageVoltage, &w.AverageCurrent, &w.AveragePower,
		&w.DaysCount, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func scanMonthly(r rowScanner) (MonthlyUsage, error) {
	var m MonthlyUsage
	err := r.Scan(
		&m.Year, &m.Month, &m.MonthName,
		&m.TotalVoltage, &m.TotalCurrent, &m.TotalPower, &m.TotalEnergy,
		&m.PeakVoltage, &m.PeakCurrent, &m.PeakPower,
		&m.AverageVoltage, &m.AverageCurrent, &m.AveragePower,
		&m.WeeksCount, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func collectWeekly(rows *sql.Rows) ([]WeeklyUsage, error) {
	var out []WeeklyUsage
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan weekly row: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weekly rows: %w", err)
	}
	return out, nil
}
