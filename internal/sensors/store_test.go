package sensors

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/model"
)

func testConfigs() map[string]model.SensorConfig {
	return map[string]model.SensorConfig{
		"Temp":     {Low: 20, High: 30, Variation: 5},
		"Pressure": {Low: 1, High: 3, Variation: 0.5},
	}
}

func reading(name string, value float64) model.SensorReading {
	return model.SensorReading{Name: name, Value: value, Timestamp: "10:00:00", Status: model.StatusOK}
}

func TestUnknownSensorsIgnored(t *testing.T) {
	s := NewStore(testConfigs(), DefaultSpan)
	n := s.Ingest([]model.SensorReading{reading("Temp", 21), reading("Humidity", 50)}, 0)
	assert.Equal(t, 1, n)

	_, ok := s.Latest("Humidity")
	assert.False(t, ok, "unknown sensor stored")
	assert.Nil(t, s.Window("Humidity"))
	for _, v := range s.All() {
		assert.NotEqual(t, "Humidity", v.Config.Name)
	}

	r, ok := s.Latest("Temp")
	require.True(t, ok)
	assert.Equal(t, 21.0, r.Value)
}

func TestWindowEvictsOlderThanSpan(t *testing.T) {
	s := NewStore(testConfigs(), DefaultSpan)
	for i := 0; i <= 30; i++ {
		s.Ingest([]model.SensorReading{reading("Temp", float64(i))}, float64(i))
	}
	w := s.Window("Temp")
	require.Len(t, w, 21)
	assert.Equal(t, 10.0, w[0].Time)
	assert.Equal(t, 30.0, w[len(w)-1].Time)
}

func TestWindowOrderedAndBounded(t *testing.T) {
	s := NewStore(testConfigs(), DefaultSpan)
	rng := rand.New(rand.NewSource(7))
	now := 0.0
	for i := 0; i < 2000; i++ {
		// occasionally step backwards to exercise clamping
		step := rng.Float64()*0.8 - 0.05
		now += step
		s.Ingest([]model.SensorReading{reading("Temp", rng.Float64()*40)}, now)

		w := s.Window("Temp")
		newest := w[len(w)-1].Time
		for j := 1; j < len(w); j++ {
			require.GreaterOrEqual(t, w[j].Time, w[j-1].Time, "window out of order at %d", j)
		}
		require.LessOrEqual(t, newest-w[0].Time, DefaultSpan+1e-9)
	}
}

func TestGetAndReset(t *testing.T) {
	s := NewStore(testConfigs(), DefaultSpan)
	s.Ingest([]model.SensorReading{reading("Temp", 25), reading("Pressure", 2)}, 1.5)

	v, ok := s.Get("Temp")
	require.True(t, ok)
	require.NotNil(t, v.Latest)
	assert.Equal(t, 25.0, v.Latest.Value)
	assert.Len(t, v.Window, 1)
	assert.Equal(t, "Temp", v.Config.Name)
	assert.Equal(t, 30.0, v.Config.High)

	_, ok = s.Get("Nope")
	assert.False(t, ok)

	s.Reset()
	_, ok = s.Latest("Temp")
	assert.False(t, ok, "latest survived reset")
	assert.Empty(t, s.Window("Temp"))
	assert.True(t, s.Known("Temp"), "config lost on reset")
}
