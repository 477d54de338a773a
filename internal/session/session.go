package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sensorwatch/internal/ingest"
	"sensorwatch/internal/model"
)

// Sink receives everything one session produces, in order. Both calls block
// until the item is accepted and return false once the sink has shut down.
type Sink interface {
	Batch(sessionID string, readings []model.SensorReading, receivedAt time.Time) bool
	Log(ev model.LogEvent) bool
}

// Session binds one Source to one run loop on its own goroutine. The source
// is only touched by that goroutine.
type Session struct {
	ID     string
	source ingest.Source
	sink   Sink
	logger *slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	mu      sync.RWMutex
	state   model.SessionState
	err     error
	batches int
}

// Info is a point-in-time description of a session.
type Info struct {
	ID        string             `json:"id"`
	Source    model.SourceKind   `json:"source"`
	Target    string             `json:"target"`
	State     model.SessionState `json:"state"`
	StartedAt time.Time          `json:"started_at"`
	Batches   int                `json:"batches"`
	Error     string             `json:"error,omitempty"`
}

func New(src ingest.Source, sink Sink, logger *slog.Logger) *Session {
	id := uuid.NewString()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:     id,
		source: src,
		sink:   sink,
		logger: logger.With("session_id", id, "source", string(src.Kind())),
		done:   make(chan struct{}),
		state:  model.SessionIdle,
	}
}

// Start launches the run loop. It must be called once.
func (s *Session) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.startedAt = time.Now().UTC()
	go s.run(ctx)
}

// Stop requests cancellation and blocks until the loop has exited and the
// transport is released.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:        s.ID,
		Source:    s.source.Kind(),
		Target:    s.source.Describe(),
		State:     s.state,
		StartedAt: s.startedAt,
		Batches:   s.batches,
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

func (s *Session) setState(st model.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) emit(cat model.LogCategory, msg string) bool {
	level := slog.LevelInfo
	switch cat {
	case model.LogHeartbeat:
		level = slog.LevelDebug
	case model.LogDataError:
		level = slog.LevelWarn
	case model.LogFatal:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, msg, "category", string(cat))
	return s.sink.Log(model.LogEvent{
		Time:      time.Now().UTC(),
		SessionID: s.ID,
		Category:  cat,
		Message:   msg,
	})
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(model.SessionStopped)

	target := s.source.Describe()
	s.setState(model.SessionConnecting)
	s.emit(model.LogConnecting, "connecting to "+target)

	if err := s.source.Open(ctx); err != nil {
		_ = s.source.Close()
		if ctx.Err() != nil {
			s.emit(model.LogDisconnected, "cancelled before connecting")
			return
		}
		s.fail(err)
		s.emit(model.LogFatal, openFailure(err))
		return
	}

	s.setState(model.SessionStreaming)
	if !s.emit(model.LogConnected, "connected to "+target) {
		s.teardown()
		return
	}
	if f, ok := s.source.(ingest.Finite); ok {
		s.emit(model.LogSystem, fmt.Sprintf("loaded %d entries", f.Len()))
	}

	reason := s.loop(ctx)
	s.teardown()
	s.emit(model.LogDisconnected, reason)
}

// loop runs until cancellation, end of stream or a terminal error, and
// returns the reason for the disconnect.
func (s *Session) loop(ctx context.Context) string {
	for {
		if ctx.Err() != nil {
			return "stopped"
		}
		batch, err := s.source.Receive(ctx)
		if err == nil {
			at := time.Now()
			s.mu.Lock()
			s.batches++
			s.mu.Unlock()
			if !s.sink.Batch(s.ID, batch, at) {
				return "pipeline closed"
			}
			continue
		}

		var frameErr *ingest.FrameError
		switch {
		case errors.Is(err, ingest.ErrHeartbeat):
			if !s.emit(model.LogHeartbeat, "no data received, connection still open") {
				return "pipeline closed"
			}
		case errors.As(err, &frameErr):
			if !s.emit(model.LogDataError, frameErr.Error()) {
				return "pipeline closed"
			}
		case errors.Is(err, ingest.ErrEndOfStream):
			if s.source.Kind() == model.SourceReplay {
				return "replay finished"
			}
			return "peer closed the stream"
		case ctx.Err() != nil:
			return "stopped"
		default:
			s.fail(err)
			s.emit(model.LogFatal, err.Error())
			return "connection lost"
		}
	}
}

func (s *Session) teardown() {
	s.setState(model.SessionStopping)
	if err := s.source.Close(); err != nil {
		s.logger.Warn("close source", "err", err)
	}
}

func openFailure(err error) string {
	var parseErr *ingest.ReplayParseError
	if errors.As(err, &parseErr) {
		return "could not load replay file: " + err.Error()
	}
	return "connection failed: " + err.Error()
}
