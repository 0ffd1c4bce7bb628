package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS journal (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        ts INTEGER NOT NULL,
        kind TEXT NOT NULL,
        schedule_id TEXT,
        event_id TEXT,
        payload TEXT
    );
    CREATE INDEX IF NOT EXISTS journal_ts ON journal (ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal (id, ts, kind, schedule_id, event_id, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), string(rec.Kind), rec.ScheduleID, rec.EventID, string(rec.Payload))
	return err
}

// Query returns records matching q in insertion order.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT id, ts, kind, schedule_id, event_id, payload FROM journal WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(q.Kind))
	}
	if q.ScheduleID != "" {
		query += ` AND schedule_id = ?`
		args = append(args, q.ScheduleID)
	}
	if q.EventID != "" {
		query += ` AND event_id = ?`
		args = append(args, q.EventID)
	}
	query += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var (
			r       Record
			ts      int64
			kind    string
			payload sql.NullString
			sid     sql.NullString
			eid     sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &kind, &sid, &eid, &payload); err != nil {
			return nil, err
		}
		r.Timestamp = unixNano(ts)
		r.Kind = Kind(kind)
		r.ScheduleID = sid.String
		r.EventID = eid.String
		if payload.String != "" {
			r.Payload = []byte(payload.String)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
