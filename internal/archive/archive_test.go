package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/model"
)

func sampleEntries() []model.ArchiveEntry {
	return []model.ArchiveEntry{
		{ReceivedAt: 1700000000.25, Sensors: []model.SensorReading{
			{Name: "Temp", Value: 35, Timestamp: "10:00:00", Status: model.StatusHighAlarm},
			{Name: "Pressure", Value: 1.5, Timestamp: "10:00:00", Status: model.StatusOK},
		}},
		{ReceivedAt: 1700000000.75, Sensors: []model.SensorReading{
			{Name: "Temp", Value: 25, Timestamp: "10:00:01", Status: model.StatusOK},
		}},
	}
}

func TestExportReimportRoundTrip(t *testing.T) {
	a := New()
	for _, e := range sampleEntries() {
		a.Append(e)
	}
	var buf bytes.Buffer
	require.NoError(t, a.Export(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleEntries(), got)
}

func TestExportUsesFourSpaceIndent(t *testing.T) {
	data, err := Encode(sampleEntries()[:1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    {\n        \"timestamp_unix\": ")
}

func TestEmptyExportWritesNothing(t *testing.T) {
	a := New()
	dir := t.TempDir()

	var buf bytes.Buffer
	err := a.Export(&buf)
	require.ErrorIs(t, err, ErrNothingToExport)
	assert.Zero(t, buf.Len())

	path, err := a.ExportFile(dir, time.Unix(1700000000, 0))
	require.ErrorIs(t, err, ErrNothingToExport)
	assert.Empty(t, path)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExportFileNameAndFailure(t *testing.T) {
	a := New()
	a.Append(sampleEntries()[0])
	dir := t.TempDir()

	path, err := a.ExportFile(dir, time.Unix(1700000123, 0))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Session_1700000123.json"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = a.ExportFile(filepath.Join(dir, "missing", "dir"), time.Now())
	var exportErr *ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, 1, a.Len())
}

func TestAppendCopiesAndClear(t *testing.T) {
	a := New()
	batch := []model.SensorReading{{Name: "Temp", Value: 1, Status: model.StatusOK}}
	a.Append(model.ArchiveEntry{ReceivedAt: 1, Sensors: batch})
	batch[0].Value = 99

	assert.Equal(t, 1.0, a.Entries()[0].Sensors[0].Value)
	a.Clear()
	assert.Zero(t, a.Len())
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode(bytes.NewBufferString(`{"timestamp_unix": 1}`))
	assert.Error(t, err)
	_, err = Decode(bytes.NewBufferString(`[{"timestamp_unix": 1}]`))
	assert.Error(t, err)
}
