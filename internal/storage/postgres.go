package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sensorwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, numbered: true}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			received_at DOUBLE PRECISION NOT NULL,
			name TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			ts TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_session ON readings(session_id, received_at)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			ts TEXT NOT NULL,
			sensor_name TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_sensor ON alarms(sensor_name)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			raised_at TIMESTAMPTZ NOT NULL,
			ts TEXT NOT NULL,
			sensor_name TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)`,
	})
}
