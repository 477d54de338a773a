package ingest

import (
	"context"
	"os"
	"time"

	"sensorwatch/internal/archive"
	"sensorwatch/internal/model"
	"sensorwatch/internal/normalize"
)

// ReplaySource plays back an exported session file, one entry per Receive,
// paced at a fixed interval. The first entry is returned immediately.
type ReplaySource struct {
	path     string
	interval time.Duration

	entries []model.ArchiveEntry
	opened  bool
	next    int
}

func NewReplaySource(path string, interval time.Duration) *ReplaySource {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ReplaySource{path: path, interval: interval}
}

func (s *ReplaySource) Kind() model.SourceKind { return model.SourceReplay }

func (s *ReplaySource) Describe() string { return "file://" + s.path }

// Open decodes the whole file up front; any failure is a *ReplayParseError.
func (s *ReplaySource) Open(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return &ReplayParseError{Path: s.path, Err: err}
	}
	defer f.Close()
	entries, err := archive.Decode(f)
	if err != nil {
		return &ReplayParseError{Path: s.path, Err: err}
	}
	for i := range entries {
		for j := range entries[i].Sensors {
			r := &entries[i].Sensors[j]
			r.Status = normalize.ParseStatus(string(r.Status))
		}
	}
	s.entries = entries
	s.opened = true
	s.next = 0
	return nil
}

// Len reports how many batches the file holds.
func (s *ReplaySource) Len() int { return len(s.entries) }

func (s *ReplaySource) Receive(ctx context.Context) ([]model.SensorReading, error) {
	if !s.opened {
		return nil, ErrNotOpen
	}
	if s.next >= len(s.entries) {
		return nil, ErrEndOfStream
	}
	if s.next > 0 {
		if !BackoffSleep(ctx, s.interval) {
			return nil, ctx.Err()
		}
	}
	batch := s.entries[s.next].Sensors
	s.next++
	return batch, nil
}

func (s *ReplaySource) Close() error {
	s.entries = nil
	s.opened = false
	return nil
}
