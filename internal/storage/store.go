package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveBatch(ctx context.Context, sessionID string, entry model.ArchiveEntry) error
	SaveAlarm(ctx context.Context, sessionID string, entry model.AlarmHistoryEntry) error
	SaveAlert(ctx context.Context, sessionID string, alert model.Alert) error
	RecentAlarms(ctx context.Context, limit int) ([]model.AlarmHistoryEntry, error)
}

// NewStore returns nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// baseStore carries the statements shared by both dialects. Queries are
// written with ? placeholders and rebound for drivers that number them.
type baseStore struct {
	db       *sql.DB
	numbered bool
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) rebind(query string) string {
	if !b.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseStore) SaveBatch(ctx context.Context, sessionID string, entry model.ArchiveEntry) error {
	if b.db == nil || len(entry.Sensors) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, b.rebind(
		`INSERT INTO readings (session_id, received_at, name, value, ts, status)
		VALUES (?, ?, ?, ?, ?, ?)`))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range entry.Sensors {
		if _, err := stmt.ExecContext(ctx,
			sessionID,
			entry.ReceivedAt,
			r.Name,
			r.Value,
			r.Timestamp,
			string(r.Status),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *baseStore) SaveAlarm(ctx context.Context, sessionID string, entry model.AlarmHistoryEntry) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO alarms (session_id, recorded_at, ts, sensor_name, value, status)
		VALUES (?, ?, ?, ?, ?, ?)`),
		sessionID,
		nowUTC(),
		entry.Timestamp,
		entry.SensorName,
		entry.Value,
		string(entry.Status),
	)
	return err
}

func (b *baseStore) SaveAlert(ctx context.Context, sessionID string, alert model.Alert) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.rebind(
		`INSERT INTO alerts (session_id, raised_at, ts, sensor_name, value, status)
		VALUES (?, ?, ?, ?, ?, ?)`),
		sessionID,
		alert.RaisedAt.UTC(),
		alert.Timestamp,
		alert.SensorName,
		alert.Value,
		string(alert.Status),
	)
	return err
}

// RecentAlarms returns persisted alarm history, newest first.
func (b *baseStore) RecentAlarms(ctx context.Context, limit int) ([]model.AlarmHistoryEntry, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, b.rebind(
		`SELECT ts, sensor_name, value, status FROM alarms ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AlarmHistoryEntry, 0)
	for rows.Next() {
		var e model.AlarmHistoryEntry
		var status string
		if err := rows.Scan(&e.Timestamp, &e.SensorName, &e.Value, &status); err != nil {
			return nil, err
		}
		e.Status = model.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
