package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sensorwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			received_at REAL NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			ts TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_session ON readings(session_id, received_at)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			ts TEXT NOT NULL,
			sensor_name TEXT NOT NULL,
			value REAL NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_sensor ON alarms(sensor_name)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			raised_at TIMESTAMP NOT NULL,
			ts TEXT NOT NULL,
			sensor_name TEXT NOT NULL,
			value REAL NOT NULL,
			status TEXT NOT NULL
		)`,
	})
}
