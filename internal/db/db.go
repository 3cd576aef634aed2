// Package db persists monitoring runs to SQLite so field sessions can be
// queried after the fact without re-parsing the CSV logs.
package db

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			host              TEXT,
			remote_rx_path    TEXT,
			started_at        TIMESTAMP,
			ended_at          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS samples (
			run_id            TEXT,
			timestamp         TEXT,
			rx_size           BIGINT,
			delta_bytes       DOUBLE,
			pps               DOUBLE,
			pdr               DOUBLE,
			latitude          DOUBLE,
			longitude         DOUBLE,
			speed_mph         DOUBLE,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS events (
			run_id            TEXT,
			timestamp         TEXT,
			event_type        TEXT,
			reason            TEXT,
			latitude          DOUBLE,
			longitude         DOUBLE,
			speed_mph         DOUBLE,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// BeginRun registers a new monitoring run.
func (db *DB) BeginRun(runID, host, remoteRxPath string, startedAt time.Time) error {
	_, err := db.Exec(
		"INSERT INTO runs (run_id, host, remote_rx_path, started_at) VALUES (?, ?, ?, ?)",
		runID, host, remoteRxPath, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %v", err)
	}
	return nil
}

// EndRun stamps the run's end time.
func (db *DB) EndRun(runID string, endedAt time.Time) error {
	_, err := db.Exec("UPDATE runs SET ended_at = ? WHERE run_id = ?", endedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %v", err)
	}
	return nil
}

// RecordSample inserts one detector tick. NaN numeric fields are stored as
// NULL so aggregate queries skip them.
func (db *DB) RecordSample(runID string, s telemetry.Sample) error {
	_, err := db.Exec(
		"INSERT INTO samples (run_id, timestamp, rx_size, delta_bytes, pps, pdr, latitude, longitude, speed_mph) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		runID, s.RawTimestamp, s.RxSize,
		nullable(s.DeltaBytes), nullable(s.PPS), nullable(s.PDR),
		nullable(s.Lat), nullable(s.Lon), nullable(s.SpeedMPH),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %v", err)
	}
	return nil
}

// RecordEvent inserts one boundary event.
func (db *DB) RecordEvent(runID string, e telemetry.Event) error {
	_, err := db.Exec(
		"INSERT INTO events (run_id, timestamp, event_type, reason, latitude, longitude, speed_mph) VALUES (?, ?, ?, ?, ?, ?, ?)",
		runID, e.RawTimestamp, e.Type, e.Reason,
		nullable(e.Lat), nullable(e.Lon), nullable(e.SpeedMPH),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %v", err)
	}
	return nil
}

// RunCounts returns how many samples and events a run recorded.
func (db *DB) RunCounts(runID string) (samples, events int, err error) {
	if err = db.QueryRow("SELECT COUNT(*) FROM samples WHERE run_id = ?", runID).Scan(&samples); err != nil {
		return 0, 0, fmt.Errorf("failed to count samples: %v", err)
	}
	if err = db.QueryRow("SELECT COUNT(*) FROM events WHERE run_id = ?", runID).Scan(&events); err != nil {
		return 0, 0, fmt.Errorf("failed to count events: %v", err)
	}
	return samples, events, nil
}

func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
