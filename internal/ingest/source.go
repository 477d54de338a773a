package ingest

import (
	"context"
	"errors"
	"fmt"

	"sensorwatch/internal/model"
)

// Source acquires sensor batches from one transport. Open, Receive and Close
// are called from a single goroutine for the lifetime of a session.
//
// Receive blocks for at most the source's receive timeout. It returns
// ErrHeartbeat when the timeout elapsed without data, ErrEndOfStream when the
// peer or file finished cleanly, a *FrameError for a malformed frame that can
// be skipped, and any other error when the session cannot continue.
type Source interface {
	Kind() model.SourceKind
	Describe() string
	Open(ctx context.Context) error
	Receive(ctx context.Context) ([]model.SensorReading, error)
	Close() error
}

var (
	ErrHeartbeat   = errors.New("no data within receive timeout")
	ErrEndOfStream = errors.New("end of stream")
	ErrNotOpen     = errors.New("source not open")
)

type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// RecvError is a transport fault that ends the session.
type RecvError struct {
	Err error
}

func (e *RecvError) Error() string {
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *RecvError) Unwrap() error { return e.Err }

// FrameError reports one undecodable frame. The session continues.
type FrameError struct {
	Frame string
	Err   error
}

func (e *FrameError) Error() string {
	frame := e.Frame
	if len(frame) > 80 {
		frame = frame[:80] + "..."
	}
	return fmt.Sprintf("malformed frame %q: %v", frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

type ReplayParseError struct {
	Path string
	Err  error
}

func (e *ReplayParseError) Error() string {
	return fmt.Sprintf("replay file %s: %v", e.Path, e.Err)
}

func (e *ReplayParseError) Unwrap() error { return e.Err }
