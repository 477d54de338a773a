package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sensorwatch/internal/model"
)

type wsMessage struct {
	data []byte
	err  error
	at   time.Time
}

// WebSocketSource receives one JSON array per message. A gorilla connection
// is unusable after a read deadline fires, so a pump goroutine owned by the
// source does the blocking reads and Receive waits on it with a timer.
type WebSocketSource struct {
	url            string
	connectTimeout time.Duration
	recvTimeout    time.Duration

	conn   *websocket.Conn
	msgs   chan wsMessage
	done   chan struct{}
	exited chan struct{}
}

func NewWebSocketSource(url string, connectTimeout, recvTimeout time.Duration) *WebSocketSource {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if recvTimeout <= 0 {
		recvTimeout = 5 * time.Second
	}
	return &WebSocketSource{url: url, connectTimeout: connectTimeout, recvTimeout: recvTimeout}
}

func (s *WebSocketSource) Kind() model.SourceKind { return model.SourceWebSocket }

func (s *WebSocketSource) Describe() string { return s.url }

func (s *WebSocketSource) Open(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.connectTimeout,
	}
	dctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dctx, s.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return &ConnectError{Target: s.url, Err: err}
	}
	s.conn = conn
	s.msgs = make(chan wsMessage)
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	go s.pump(conn, s.msgs, s.done, s.exited)
	return nil
}

func (s *WebSocketSource) pump(conn *websocket.Conn, out chan<- wsMessage, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	for {
		_, data, err := conn.ReadMessage()
		select {
		case out <- wsMessage{data: data, err: err, at: time.Now()}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *WebSocketSource) Receive(ctx context.Context) ([]model.SensorReading, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	timer := time.NewTimer(s.recvTimeout)
	defer timer.Stop()
	select {
	case m, ok := <-s.msgs:
		if !ok {
			return nil, ErrEndOfStream
		}
		if m.err != nil {
			if websocket.IsCloseError(m.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrEndOfStream
			}
			return nil, &RecvError{Err: m.err}
		}
		return decodeFrame(m.data, m.at)
	case <-timer.C:
		return nil, ErrHeartbeat
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame, drops the connection and waits for the pump to
// exit so no goroutine outlives the session.
func (s *WebSocketSource) Close() error {
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	close(s.done)
	err := s.conn.Close()
	<-s.exited
	s.conn = nil
	return err
}
