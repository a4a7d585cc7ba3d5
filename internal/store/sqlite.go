// Package store persists rental station occupancy in SQLite. The simulation
// reads it back as the external occupancy feed stations synchronise against.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite connection with serialised writes.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	log     logrus.FieldLogger
}

// Connect opens the database at path in WAL mode and ensures the schema.
func Connect(ctx context.Context, path string, log logrus.FieldLogger) (*DB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, err := sql.Open("sqlite", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			log.WithError(err).Warnf("failed to set %s", pragma)
		}
	}
	db := &DB{conn: conn, log: log}
	if err := db.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	log.WithField("path", path).Info("occupancy store connected")
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error { return db.conn.Close() }

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordOccupancy stores the vehicle count of station at tick, replacing an
// earlier record for the same tick.
func (db *DB) RecordOccupancy(ctx context.Context, station string, tick int64, count int) error {
	if count < 0 {
		return fmt.Errorf("station %s: negative occupancy %d", station, count)
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	const query = `
		INSERT INTO station_occupancy (station, tick, count, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (station, tick) DO UPDATE SET
			count = excluded.count,
			recorded_at = excluded.recorded_at
	`
	_, err := db.conn.ExecContext(ctx, query, station, tick, count, time.Now().UTC().Format(time.RFC3339))
	return err
}

// LatestOccupancy returns the most recent count recorded for station. ok is
// false when the station has no record yet.
func (db *DB) LatestOccupancy(ctx context.Context, station string) (count int, ok bool, err error) {
	const query = `
		SELECT count FROM station_occupancy
		WHERE station = ?
		ORDER BY tick DESC
		LIMIT 1
	`
	err = db.conn.QueryRowContext(ctx, query, station).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Stations lists every station with at least one record.
func (db *DB) Stations(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT station FROM station_occupancy ORDER BY station`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
