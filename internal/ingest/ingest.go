package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

// Finite is implemented by sources that know their batch count up front.
type Finite interface {
	Len() int
}

// BackoffSleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// NewSource builds the source for kind from cfg. replayPath is only used
// for replay sources.
func NewSource(cfg *config.Config, kind model.SourceKind, replayPath string) (Source, error) {
	in := cfg.Ingest
	switch kind {
	case model.SourceTCP:
		return NewTCPSource(cfg.TCPAddr(), in.ConnectTimeout, in.ReceiveTimeout), nil
	case model.SourceWebSocket:
		return NewWebSocketSource(cfg.WebSocketURL(), in.ConnectTimeout, in.ReceiveTimeout), nil
	case model.SourceReplay:
		if replayPath == "" {
			return nil, errors.New("replay source requires a file path")
		}
		return NewReplaySource(replayPath, in.ReplayInterval), nil
	case model.SourceKafka:
		if len(in.Kafka.Brokers) == 0 || in.Kafka.Topic == "" {
			return nil, errors.New("kafka source requires brokers and topic")
		}
		return NewKafkaSource(in.Kafka, in.ConnectTimeout, in.ReceiveTimeout), nil
	}
	return nil, fmt.Errorf("unsupported source %q", kind)
}
