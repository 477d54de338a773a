package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

// KafkaSource consumes sensor frames from a topic. Each message value is one
// frame in the same shape the TCP and WebSocket simulators send.
type KafkaSource struct {
	cfg            config.KafkaConfig
	connectTimeout time.Duration
	recvTimeout    time.Duration

	reader *kafka.Reader
}

func NewKafkaSource(cfg config.KafkaConfig, connectTimeout, recvTimeout time.Duration) *KafkaSource {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if recvTimeout <= 0 {
		recvTimeout = 5 * time.Second
	}
	return &KafkaSource{cfg: cfg, connectTimeout: connectTimeout, recvTimeout: recvTimeout}
}

func (s *KafkaSource) Kind() model.SourceKind { return model.SourceKafka }

func (s *KafkaSource) Describe() string {
	return "kafka://" + strings.Join(s.cfg.Brokers, ",") + "/" + s.cfg.Topic
}

// Open checks that at least one broker answers before building the reader,
// since the reader itself connects lazily.
func (s *KafkaSource) Open(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	var lastErr error
	reachable := false
	for _, broker := range s.cfg.Brokers {
		conn, err := kafka.DialContext(dctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		reachable = true
		break
	}
	if !reachable {
		if lastErr == nil {
			lastErr = errors.New("no brokers configured")
		}
		return &ConnectError{Target: strings.Join(s.cfg.Brokers, ","), Err: lastErr}
	}
	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    s.cfg.Topic,
		GroupID:  s.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  s.recvTimeout,
	})
	return nil
}

func (s *KafkaSource) Receive(ctx context.Context) ([]model.SensorReading, error) {
	if s.reader == nil {
		return nil, ErrNotOpen
	}
	rctx, cancel := context.WithTimeout(ctx, s.recvTimeout)
	defer cancel()
	m, err := s.reader.ReadMessage(rctx)
	if err != nil {
		return nil, readError(ctx, err)
	}
	at := m.Time
	if at.IsZero() {
		at = time.Now()
	}
	return decodeFrame(m.Value, at)
}

// readError maps a failed fetch: the receive deadline is a heartbeat, a
// cancelled parent is returned as is, anything else is a transport fault.
func readError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrHeartbeat
	}
	return &RecvError{Err: err}
}

func (s *KafkaSource) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}
