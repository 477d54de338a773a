package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensorwatch/internal/archive"
	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
	"sensorwatch/internal/pipeline"
)

type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status  string          `json:"status"`
	Time    string          `json:"time"`
	Version string          `json:"version"`
	System  pipeline.Status `json:"system"`
	Ingest  ingestStatus    `json:"ingest"`
	API     apiStatus       `json:"api"`
}

type ingestStatus struct {
	DefaultSource string `json:"default_source"`
	TCP           string `json:"tcp"`
	WebSocket     string `json:"websocket"`
	Kafka         bool   `json:"kafka"`
	Archive       bool   `json:"archive"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func NewServer(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger, version string) *Server {
	return &Server{cfg: cfg, pipeline: p, logger: logger, version: version}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sensors", s.handleSensors)
	mux.HandleFunc("/sensors/", s.handleSensors)
	mux.HandleFunc("/alarms", s.handleAlarms)
	mux.HandleFunc("/alarms/active", s.handleActiveAlarms)
	mux.HandleFunc("/alarms/clear", s.handleClearAlarms)
	mux.HandleFunc("/preferences/alerts", s.handleAlertPreference)
	mux.HandleFunc("/session/start", s.handleSessionStart)
	mux.HandleFunc("/session/stop", s.handleSessionStop)
	mux.HandleFunc("/admin/restart", s.handleRestart)
	mux.HandleFunc("/archive", s.handleArchive)
	mux.HandleFunc("/archive/export", s.handleArchiveExport)
	mux.HandleFunc("/logs", s.handleLogs)
	return mux
}

// Start serves the API until ctx is done. It returns nil when the API is
// disabled.
func Start(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger, version string) *http.Server {
	if cfg == nil || !cfg.API.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", cfg.API.Addr)
	}
	server := NewServer(cfg, p, logger, version)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sys := s.pipeline.Status()
	status := "operational"
	if !sys.Operational {
		status = "alarm"
	}
	resp := statusResponse{
		Status:  status,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Version: s.version,
		System:  sys,
		Ingest: ingestStatus{
			DefaultSource: s.cfg.Ingest.Source,
			TCP:           s.cfg.TCPAddr(),
			WebSocket:     s.cfg.WebSocketURL(),
			Kafka:         len(s.cfg.Ingest.Kafka.Brokers) > 0,
			Archive:       s.cfg.Archive.Enabled,
		},
		API: apiStatus{Enabled: s.cfg.API.Enabled, Addr: s.cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/sensors")
	name = strings.TrimPrefix(name, "/")
	store := s.pipeline.Sensors()
	if name != "" {
		view, ok := store.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown sensor "+name)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}
	all := store.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": all,
		"count":   len(all),
	})
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list := s.pipeline.History().List(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": list,
		"count":  len(list),
	})
}

func (s *Server) handleActiveAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	active := s.pipeline.Engine().Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":      active,
		"count":       len(active),
		"operational": len(active) == 0,
	})
}

func (s *Server) handleClearAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.pipeline.ClearHistory(r.Context()); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleAlertPreference(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"enabled": s.pipeline.Engine().AlertsEnabled()})
	case http.MethodPost:
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeBody(w, r, &req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
			return
		}
		if err := s.pipeline.SetAlertsEnabled(r.Context(), *req.Enabled); err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enabled": *req.Enabled})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Source string `json:"source"`
		File   string `json:"file"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = s.cfg.Ingest.Source
	}
	info, err := s.pipeline.StartSession(r.Context(), model.SourceKind(source), config.ResolvePath(req.File))
	if err != nil {
		if errors.Is(err, pipeline.ErrClosed) {
			writePipelineError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stopped := s.pipeline.StopSession()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stopped": stopped})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.pipeline.Restart(r.Context()); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := s.pipeline.Archive().Marshal()
	if errors.Is(err, archive.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archive.FileName(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path, err := s.pipeline.ExportFile()
	if errors.Is(err, archive.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Error("archive export failed", "err", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"entries": s.pipeline.Archive().Len(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	logs := s.pipeline.Logs().Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func writePipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
