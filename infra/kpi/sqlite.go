// Package kpi keeps a daily history of KPI snapshots in SQLite.
package kpi

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	coremetrics "github.com/kilianp07/railsched/core/metrics"
)

// DailyRecord aggregates the snapshots of one source over one UTC day.
type DailyRecord struct {
	Source           string    `json:"source"`
	Date             time.Time `json:"date"`
	Snapshots        int       `json:"snapshots"`
	Punctuality      float64   `json:"avg_punctuality_rate"`
	AverageDelay     float64   `json:"avg_delay_minutes"`
	Utilization      float64   `json:"avg_track_utilization"`
	MaxDelayedTrains int       `json:"max_delayed_trains"`
	Cancelled        int       `json:"max_cancelled_trains"`
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SQLiteStore persists KPI aggregates in a SQLite database. It is a
// metrics sink recording KPI snapshots only.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS kpi_daily (
        source TEXT,
        day INTEGER,
        snapshots INTEGER,
        punctuality REAL,
        delay REAL,
        utilization REAL,
        max_delayed INTEGER,
        max_cancelled INTEGER,
        PRIMARY KEY(source, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// RecordKPIs adds the snapshot to the aggregate of its day.
func (s *SQLiteStore) RecordKPIs(snap coremetrics.KPISnapshot) error {
	r := snap.Report
	_, err := s.db.Exec(`INSERT INTO kpi_daily (source, day, snapshots, punctuality, delay, utilization, max_delayed, max_cancelled)
        VALUES (?, ?, 1, ?, ?, ?, ?, ?)
        ON CONFLICT(source, day) DO UPDATE SET
            snapshots = snapshots + 1,
            punctuality = punctuality + excluded.punctuality,
            delay = delay + excluded.delay,
            utilization = utilization + excluded.utilization,
            max_delayed = max(max_delayed, excluded.max_delayed),
            max_cancelled = max(max_cancelled, excluded.max_cancelled)`,
		snap.Source, Day(snap.Time).Unix(), r.PunctualityRate, r.AverageDelayMinutes, r.TrackUtilization,
		r.DelayedTrains, r.CancelledTrains)
	if err != nil {
		return fmt.Errorf("kpi history: %w", err)
	}
	return nil
}

// Query returns the daily records of source in the range [start,end].
func (s *SQLiteStore) Query(source string, start, end time.Time) ([]DailyRecord, error) {
	start = Day(start)
	end = Day(end)
	rows, err := s.db.Query(`SELECT source, day, snapshots, punctuality, delay, utilization, max_delayed, max_cancelled
        FROM kpi_daily WHERE source = ? AND day >= ? AND day <= ? ORDER BY day`,
		source, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []DailyRecord
	for rows.Next() {
		var rec DailyRecord
		var ts int64
		var punct, delay, util float64
		if err := rows.Scan(&rec.Source, &ts, &rec.Snapshots, &punct, &delay, &util, &rec.MaxDelayedTrains, &rec.Cancelled); err != nil {
			return nil, err
		}
		rec.Date = time.Unix(ts, 0).UTC()
		if n := float64(rec.Snapshots); n > 0 {
			rec.Punctuality = round2(punct / n)
			rec.AverageDelay = round2(delay / n)
			rec.Utilization = round2(util / n)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
