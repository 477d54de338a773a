package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

const (
	opTimeout      = 2 * time.Second
	maxAlarmLength = 1000
)

// RedisMirror copies pipeline output into Redis so other processes can read
// the live state: latest readings in a hash, alarm history in a capped list,
// and alerts on a pub/sub channel. Failures are logged and dropped.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewClient(cfg config.MirrorConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisMirror(client *redis.Client, cfg config.MirrorConfig, logger *slog.Logger) *RedisMirror {
	return &RedisMirror{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL, logger: logger}
}

func (m *RedisMirror) LatestKey() string { return m.prefix + "latest" }
func (m *RedisMirror) AlarmsKey() string { return m.prefix + "alarms" }
func (m *RedisMirror) AlertsChannel() string { return m.prefix + "alerts" }

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMirror) OnBatch(readings []model.SensorReading) {
	if len(readings) == 0 {
		return
	}
	values := make(map[string]any, len(readings))
	for _, r := range readings {
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		values[r.Name] = string(data)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, m.LatestKey(), values)
		if m.ttl > 0 {
			p.Expire(ctx, m.LatestKey(), m.ttl)
		}
		return nil
	})
	m.warn("mirror latest readings", err)
}

func (m *RedisMirror) OnLog(ev model.LogEvent) {}

func (m *RedisMirror) OnAlarmHistory(entry model.AlarmHistoryEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err = m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, m.AlarmsKey(), data)
		p.LTrim(ctx, m.AlarmsKey(), 0, maxAlarmLength-1)
		return nil
	})
	m.warn("mirror alarm history", err)
}

func (m *RedisMirror) OnAlert(alert model.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	m.warn("publish alert", m.client.Publish(ctx, m.AlertsChannel(), data).Err())
}

// OnReset drops the mirrored state after a pipeline restart or a history
// clear.
func (m *RedisMirror) OnReset(history, readings bool) {
	keys := make([]string, 0, 2)
	if readings {
		keys = append(keys, m.LatestKey())
	}
	if history {
		keys = append(keys, m.AlarmsKey())
	}
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	m.warn("reset mirror", m.client.Del(ctx, keys...).Err())
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func (m *RedisMirror) warn(msg string, err error) {
	if err != nil && m.logger != nil {
		m.logger.Warn(msg, "err", err)
	}
}
