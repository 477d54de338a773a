package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/model"
)

func TestParseStatusSpellings(t *testing.T) {
	cases := map[string]model.Status{
		"OK":           model.StatusOK,
		"":             model.StatusOK,
		"HIGH ALARM":   model.StatusHighAlarm,
		"high_alarm":   model.StatusHighAlarm,
		"LOW_ALARM":    model.StatusLowAlarm,
		" low  alarm ": model.StatusLowAlarm,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseStatus(in), "ParseStatus(%q)", in)
	}
	assert.True(t, ParseStatus("sensor alarm").IsAlarm(), "unknown alarm spelling should still count as alarm")
}

func TestNormalizeFillsTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	r, err := Normalize(ReadingFields{Name: " Temp ", Value: json.Number("35.5"), Status: "HIGH ALARM"}, now)
	require.NoError(t, err)
	assert.Equal(t, model.SensorReading{Name: "Temp", Value: 35.5, Timestamp: "14:05:09", Status: model.StatusHighAlarm}, r)
}

func TestNormalizeKeepsClockTimestamp(t *testing.T) {
	r, err := Normalize(ReadingFields{Name: "Flow", Value: json.Number("2"), Timestamp: "08:00:01"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "08:00:01", r.Timestamp)
}

func TestNormalizeRejects(t *testing.T) {
	now := time.Now()
	_, err := Normalize(ReadingFields{Value: json.Number("1")}, now)
	assert.Error(t, err, "missing name")
	_, err = Normalize(ReadingFields{Name: "Temp"}, now)
	assert.Error(t, err, "missing value")
	_, err = Normalize(ReadingFields{Name: "Temp", Value: json.Number("1"), Timestamp: "yesterday"}, now)
	assert.Error(t, err, "bad timestamp")
}

func TestDecodeQuotedValue(t *testing.T) {
	var f ReadingFields
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Temp","value":"21.25","status":"OK"}`), &f))
	r, err := Normalize(f, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 21.25, r.Value)
}
