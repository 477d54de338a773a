package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

func newSQLiteForTest(t *testing.T) Store {
	t.Helper()
	st, err := NewStore(config.StorageConfig{
		Enabled: true,
		Driver:  "sqlite",
		DSN:     "file:" + filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(context.Background()))
	return st
}

func TestNewStoreDisabledAndUnknown(t *testing.T) {
	st, err := NewStore(config.StorageConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = NewStore(config.StorageConfig{Enabled: true, Driver: "oracle"})
	assert.Error(t, err)
}

func TestSQLiteSavesBatchesAndAlarms(t *testing.T) {
	st := newSQLiteForTest(t)
	ctx := context.Background()

	require.NoError(t, st.SaveBatch(ctx, "s1", model.ArchiveEntry{
		ReceivedAt: 1700000000.5,
		Sensors: []model.SensorReading{
			{Name: "Temp", Value: 35, Timestamp: "10:00:00", Status: model.StatusHighAlarm},
			{Name: "Flow", Value: 3, Timestamp: "10:00:00", Status: model.StatusOK},
		},
	}))
	require.NoError(t, st.SaveAlarm(ctx, "s1", model.AlarmHistoryEntry{Timestamp: "10:00:00", SensorName: "Temp", Value: 35, Status: model.StatusHighAlarm}))
	require.NoError(t, st.SaveAlarm(ctx, "s1", model.AlarmHistoryEntry{Timestamp: "10:00:01", SensorName: "Temp", Value: 36, Status: model.StatusHighAlarm}))
	require.NoError(t, st.SaveAlert(ctx, "s1", model.Alert{SensorName: "Temp", Value: 35, Status: model.StatusHighAlarm, Timestamp: "10:00:00", RaisedAt: time.Now()}))

	got, err := st.RecentAlarms(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 36.0, got[0].Value)
	assert.Equal(t, model.StatusHighAlarm, got[1].Status)
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	b := baseStore{numbered: true}
	assert.Equal(t, "VALUES ($1, $2, $3)", b.rebind("VALUES (?, ?, ?)"))
	b.numbered = false
	assert.Equal(t, "VALUES (?, ?)", b.rebind("VALUES (?, ?)"))
}
