package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/model"
)

func entry(v float64) model.AlarmHistoryEntry {
	return model.AlarmHistoryEntry{Timestamp: "10:00:00", SensorName: "Temp", Value: v, Status: model.StatusHighAlarm}
}

func TestHistoryNewestFirst(t *testing.T) {
	h := NewHistory(0)
	for i := 1; i <= 3; i++ {
		h.Add(entry(float64(i)))
	}
	got := h.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[0].Value)
	assert.Equal(t, 1.0, got[2].Value)

	top := h.List(2)
	require.Len(t, top, 2)
	assert.Equal(t, 2.0, top[1].Value)
}

func TestHistoryLimitDropsOldest(t *testing.T) {
	h := NewHistory(2)
	for i := 1; i <= 4; i++ {
		h.Add(entry(float64(i)))
	}
	got := h.List(0)
	require.Len(t, got, 2)
	assert.Equal(t, 4.0, got[0].Value)
	assert.Equal(t, 3.0, got[1].Value)

	h.Clear()
	assert.Zero(t, h.Len())
}
