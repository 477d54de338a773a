package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
	"sensorwatch/internal/pipeline"
)

const replayDoc = `[
    {"timestamp_unix": 1700000000.0, "sensors": [{"name": "Temp", "value": 35, "timestamp": "10:00:00", "status": "HIGH ALARM"}]},
    {"timestamp_unix": 1700000000.5, "sensors": [{"name": "Temp", "value": 25, "timestamp": "10:00:01", "status": "OK"}]}
]`

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Pipeline, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sensors = map[string]model.SensorConfig{"Temp": {Name: "Temp", Low: 20, High: 30, Variation: 5}}
	cfg.Archive.ExportDir = t.TempDir()
	cfg.Ingest.ReplayInterval = 5 * time.Millisecond

	p := pipeline.New(cfg, pipeline.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(NewServer(cfg, p, nil, "test").Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, p, cfg
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestStatusAndSensors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, "test", body["version"])

	resp, body = do(t, http.MethodGet, srv.URL+"/sensors", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["count"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/sensors/Nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAlertPreference(t *testing.T) {
	srv, p, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/preferences/alerts", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["enabled"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/preferences/alerts", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, p.Engine().AlertsEnabled())

	resp, _ = do(t, http.MethodPost, srv.URL+"/preferences/alerts", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReplaySessionFlow(t *testing.T) {
	srv, p, cfg := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/archive/export", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/archive", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	path := filepath.Join(t.TempDir(), "replay.json")
	require.NoError(t, os.WriteFile(path, []byte(replayDoc), 0o644))
	payload, _ := json.Marshal(map[string]string{"source": "replay", "file": path})
	resp, body := do(t, http.MethodPost, srv.URL+"/session/start", string(payload))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "replay", body["source"])

	require.Eventually(t, func() bool { return p.Archive().Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	resp, body = do(t, http.MethodGet, srv.URL+"/alarms?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["count"])

	resp, body = do(t, http.MethodGet, srv.URL+"/alarms/active", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["operational"])

	resp, body = do(t, http.MethodGet, srv.URL+"/sensors/Temp", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	latest := body["latest"].(map[string]any)
	assert.Equal(t, 25.0, latest["value"])

	resp, body = do(t, http.MethodPost, srv.URL+"/archive/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exported := body["path"].(string)
	assert.Equal(t, cfg.Archive.ExportDir, filepath.Dir(exported))

	resp, _ = do(t, http.MethodGet, srv.URL+"/archive", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Session_")

	resp, body = do(t, http.MethodGet, srv.URL+"/logs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotZero(t, body["count"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/alarms/clear", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, p.History().Len())

	resp, _ = do(t, http.MethodPost, srv.URL+"/admin/restart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, p.Archive().Len())

	resp, body = do(t, http.MethodPost, srv.URL+"/session/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["stopped"])
}

func TestSessionStartRejectsBadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/session/start", `{"source":"serial"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/start", `{"source":"replay"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/session/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/alarms?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
