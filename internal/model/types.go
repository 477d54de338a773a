package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusOK        Status = "OK"
	StatusLowAlarm  Status = "LOW ALARM"
	StatusHighAlarm Status = "HIGH ALARM"
)

// IsAlarm reports whether the status is one of the alarm states. Unknown
// statuses containing "ALARM" count as alarms, matching what the simulator
// and older archives emit.
func (s Status) IsAlarm() bool {
	switch s {
	case StatusLowAlarm, StatusHighAlarm:
		return true
	case StatusOK:
		return false
	}
	return strings.Contains(strings.ToUpper(string(s)), "ALARM")
}

type SensorReading struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
	Status    Status  `json:"status"`
}

type SensorConfig struct {
	Name      string  `json:"-" yaml:"-"`
	Low       float64 `json:"low" yaml:"low"`
	High      float64 `json:"high" yaml:"high"`
	Variation float64 `json:"variation" yaml:"variation"`
}

type WindowPoint struct {
	Time  float64 `json:"t"`
	Value float64 `json:"value"`
}

type AlarmHistoryEntry struct {
	Timestamp  string  `json:"timestamp"`
	SensorName string  `json:"sensor_name"`
	Value      float64 `json:"value"`
	Status     Status  `json:"status"`
}

type ArchiveEntry struct {
	ReceivedAt float64         `json:"timestamp_unix"`
	Sensors    []SensorReading `json:"sensors"`
}

// UnixSeconds converts a wall-clock time to the fractional unix seconds used
// by archive entries.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

type Alert struct {
	SensorName string    `json:"sensor_name"`
	Value      float64   `json:"value"`
	Status     Status    `json:"status"`
	Timestamp  string    `json:"timestamp"`
	RaisedAt   time.Time `json:"raised_at"`
}

type LogCategory string

const (
	LogConnecting   LogCategory = "connecting"
	LogConnected    LogCategory = "connected"
	LogHeartbeat    LogCategory = "heartbeat"
	LogDataError    LogCategory = "data-error"
	LogDisconnected LogCategory = "disconnected"
	LogFatal        LogCategory = "fatal"
	LogSystem       LogCategory = "system"
)

type LogEvent struct {
	Time      time.Time   `json:"time"`
	SessionID string      `json:"session_id,omitempty"`
	Category  LogCategory `json:"category"`
	Message   string      `json:"message"`
}

type SourceKind string

const (
	SourceTCP       SourceKind = "tcp"
	SourceWebSocket SourceKind = "websocket"
	SourceReplay    SourceKind = "replay"
	SourceKafka     SourceKind = "kafka"
)

type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionConnecting SessionState = "connecting"
	SessionStreaming  SessionState = "streaming"
	SessionStopping   SessionState = "stopping"
	SessionStopped    SessionState = "stopped"
)
