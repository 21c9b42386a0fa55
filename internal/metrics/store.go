package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Mode represents the surface a search was invoked from.
type Mode string

const (
	ModeCLI Mode = "cli"
	ModeAPI Mode = "api"
	ModeMCP Mode = "mcp"
)

// AllModes lists every tracked mode
var AllModes = []Mode{ModeCLI, ModeAPI, ModeMCP}

const dateLayout = "2006-01-02"

// DailyCount is the number of invocations of one mode on one day
type DailyCount struct {
	Date  string `json:"date"`
	Mode  Mode   `json:"mode"`
	Count int64  `json:"count"`
}

// Store manages SQLite persistence for invocation counts.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.halalfinder/stats.db
func DefaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".halalfinder", "stats.db"), nil
}

// NewStore opens the store at dbPath, or at DefaultDBPath when dbPath is empty.
// The directory and database file are created if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = DefaultDBPath(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}
	return NewStoreWithPath(dbPath)
}

// NewStoreWithPath opens a store at an exact path without creating directories.
func NewStoreWithPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS invocation_counts (
			mode TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			PRIMARY KEY (mode, date)
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Increment increments the count for the given mode for today's date.
func (s *Store) Increment(mode Mode) error {
	return s.incrementOn(mode, time.Now())
}

func (s *Store) incrementOn(mode Mode, day time.Time) error {
	upsertSQL := `
		INSERT INTO invocation_counts (mode, date, count)
		VALUES (?, ?, 1)
		ON CONFLICT(mode, date) DO UPDATE SET count = count + 1;
	`
	if _, err := s.db.Exec(upsertSQL, string(mode), day.Format(dateLayout)); err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

// GetTotalByMode returns the cumulative count for a specific mode across all dates.
func (s *Store) GetTotalByMode(mode Mode) (int64, error) {
	var total int64
	row := s.db.QueryRow(
		"SELECT COALESCE(SUM(count), 0) FROM invocation_counts WHERE mode = ?",
		string(mode),
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get total for mode %s: %w", mode, err)
	}
	return total, nil
}

// GetAllTotals returns cumulative counts for all modes, zero for unused ones.
func (s *Store) GetAllTotals() (map[Mode]int64, error) {
	result := make(map[Mode]int64, len(AllModes))
	for _, mode := range AllModes {
		result[mode] = 0
	}

	rows, err := s.db.Query(
		"SELECT mode, COALESCE(SUM(count), 0) FROM invocation_counts GROUP BY mode",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var modeStr string
		var total int64
		if err := rows.Scan(&modeStr, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[Mode(modeStr)] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// GetCountByDate returns the count for a specific mode and date.
func (s *Store) GetCountByDate(mode Mode, date string) (int64, error) {
	var count int64
	row := s.db.QueryRow(
		"SELECT COALESCE(count, 0) FROM invocation_counts WHERE mode = ? AND date = ?",
		string(mode), date,
	)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// GetDailyCounts returns the per-day counts of the last days days, newest first.
func (s *Store) GetDailyCounts(days int) ([]DailyCount, error) {
	if days < 1 {
		days = 1
	}
	since := time.Now().AddDate(0, 0, -(days - 1)).Format(dateLayout)

	rows, err := s.db.Query(
		"SELECT date, mode, count FROM invocation_counts WHERE date >= ? ORDER BY date DESC, mode ASC",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []DailyCount
	for rows.Next() {
		var dc DailyCount
		var modeStr string
		if err := rows.Scan(&dc.Date, &modeStr, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dc.Mode = Mode(modeStr)
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
