// Package db is the event journal: alerts, motor transitions and
// connection transitions recorded for the HTTP API. Control state is never
// read back from here; it is re-derived from hardware each power cycle.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at TIMESTAMP NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return conn, nil
}

type EventRow struct {
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

func InsertEvent(conn *sql.DB, at time.Time, kind, detail string) error {
	_, err := conn.Exec(`INSERT INTO events (at, kind, detail) VALUES (?, ?, ?)`, at, kind, detail)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func RecentEvents(conn *sql.DB, limit int) ([]EventRow, error) {
	rows, err := conn.Query(`SELECT id, at, kind, detail FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.At, &r.Kind, &r.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune drops journal rows older than the retention window so the journal
// cannot grow without bound on the device.
func Prune(conn *sql.DB, olderThan time.Time) (int64, error) {
	res, err := conn.Exec(`DELETE FROM events WHERE at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}
