package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorwatch/internal/model"
)

const ClockLayout = "15:04:05"

// ReadingFields is the loosely typed wire shape of one reading. Value is a
// json.Number so quoted numbers from older simulators still decode.
type ReadingFields struct {
	Name      string      `json:"name"`
	Value     json.Number `json:"value"`
	Timestamp string      `json:"timestamp"`
	Status    string      `json:"status"`
}

func Normalize(fields ReadingFields, receivedAt time.Time) (model.SensorReading, error) {
	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return model.SensorReading{}, errors.New("reading without name")
	}
	if fields.Value == "" {
		return model.SensorReading{}, fmt.Errorf("reading %q: missing value", name)
	}
	val, err := fields.Value.Float64()
	if err != nil {
		return model.SensorReading{}, fmt.Errorf("reading %q: parse value: %w", name, err)
	}

	ts := receivedAt.Format(ClockLayout)
	if strings.TrimSpace(fields.Timestamp) != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, receivedAt.Location())
		if err != nil {
			return model.SensorReading{}, fmt.Errorf("reading %q: parse timestamp: %w", name, err)
		}
		ts = parsed.Format(ClockLayout)
	}

	return model.SensorReading{
		Name:      name,
		Value:     val,
		Timestamp: ts,
		Status:    ParseStatus(fields.Status),
	}, nil
}

// ParseStatus maps the accepted status spellings onto the canonical wire
// values. Empty input is treated as OK.
func ParseStatus(status string) model.Status {
	n := strings.ToUpper(strings.TrimSpace(status))
	n = strings.ReplaceAll(n, "_", " ")
	n = strings.Join(strings.Fields(n), " ")
	switch n {
	case "", "OK", "NORMAL":
		return model.StatusOK
	case "LOW ALARM", "LOW":
		return model.StatusLowAlarm
	case "HIGH ALARM", "HIGH":
		return model.StatusHighAlarm
	}
	return model.Status(n)
}

var timestampLayouts = []string{
	ClockLayout,
	"15:04:05.000",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts.In(loc), nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
