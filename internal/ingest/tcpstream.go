package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"sensorwatch/internal/model"
)

const (
	tcpReadSize     = 4096
	maxTCPFrameSize = 1024 * 1024
)

// TCPSource reads newline-delimited JSON arrays from the simulator's TCP
// port. One read may carry several frames and end in a partial one; the
// partial tail is kept until the next read completes it.
type TCPSource struct {
	addr           string
	connectTimeout time.Duration
	recvTimeout    time.Duration

	conn    net.Conn
	readBuf []byte
	partial []byte
	pending [][]byte
	eof     bool
}

func NewTCPSource(addr string, connectTimeout, recvTimeout time.Duration) *TCPSource {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if recvTimeout <= 0 {
		recvTimeout = 5 * time.Second
	}
	return &TCPSource{addr: addr, connectTimeout: connectTimeout, recvTimeout: recvTimeout}
}

func (s *TCPSource) Kind() model.SourceKind { return model.SourceTCP }

func (s *TCPSource) Describe() string { return "tcp://" + s.addr }

func (s *TCPSource) Open(ctx context.Context) error {
	d := net.Dialer{Timeout: s.connectTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return &ConnectError{Target: s.addr, Err: err}
	}
	s.conn = conn
	s.readBuf = make([]byte, tcpReadSize)
	s.partial = nil
	s.pending = nil
	s.eof = false
	return nil
}

func (s *TCPSource) Receive(ctx context.Context) ([]model.SensorReading, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	for len(s.pending) == 0 {
		if s.eof {
			return nil, ErrEndOfStream
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(s.recvTimeout)); err != nil {
			return nil, &RecvError{Err: err}
		}
		n, err := s.conn.Read(s.readBuf)
		var overflow error
		if n > 0 {
			overflow = s.split(s.readBuf[:n])
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				if len(s.pending) == 0 {
					return nil, ErrHeartbeat
				}
			case errors.Is(err, io.EOF):
				s.eof = true
				if tail := bytes.TrimSpace(s.partial); len(tail) > 0 {
					s.pending = append(s.pending, tail)
				}
				s.partial = nil
			default:
				return nil, &RecvError{Err: err}
			}
		}
		if overflow != nil {
			return nil, overflow
		}
	}
	frame := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return decodeFrame(frame, time.Now())
}

// split appends chunk to the partial buffer and moves every complete line
// into the pending queue.
func (s *TCPSource) split(chunk []byte) error {
	s.partial = append(s.partial, chunk...)
	rest := s.partial
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(rest[:idx])
		if len(line) > 0 {
			s.pending = append(s.pending, append([]byte(nil), line...))
		}
		rest = rest[idx+1:]
	}
	if len(rest) == 0 {
		s.partial = nil
		return nil
	}
	if len(rest) > maxTCPFrameSize {
		s.partial = nil
		return &FrameError{Frame: string(rest[:64]), Err: fmt.Errorf("frame exceeds %d bytes", maxTCPFrameSize)}
	}
	s.partial = append([]byte(nil), rest...)
	return nil
}

func (s *TCPSource) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
