package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sensorwatch/internal/model"
)

type Config struct {
	LogLevel   string                        `json:"log_level" yaml:"log_level"`
	LogFormat  string                        `json:"log_format" yaml:"log_format"`
	Connection ConnectionConfig              `json:"connection" yaml:"connection"`
	Sensors    map[string]model.SensorConfig `json:"sensors" yaml:"sensors"`
	Ingest     IngestConfig                  `json:"ingest" yaml:"ingest"`
	Alarms     AlarmsConfig                  `json:"alarms" yaml:"alarms"`
	Archive    ArchiveConfig                 `json:"archive" yaml:"archive"`
	Storage    StorageConfig                 `json:"storage" yaml:"storage"`
	Notify     NotifyConfig                  `json:"notify" yaml:"notify"`
	Mirror     MirrorConfig                  `json:"mirror" yaml:"mirror"`
	API        APIConfig                     `json:"api" yaml:"api"`
}

// ConnectionConfig mirrors the simulator's connection block. UpdateInterval
// is informational for the pipeline; the simulator paces itself with it.
type ConnectionConfig struct {
	Host           string  `json:"host" yaml:"host"`
	TCPPort        int     `json:"tcp_port" yaml:"tcp_port"`
	WSPort         int     `json:"ws_port" yaml:"ws_port"`
	UpdateInterval float64 `json:"update_interval" yaml:"update_interval"`
}

type IngestConfig struct {
	Source         string          `json:"source" yaml:"source"`
	ChannelBuffer  int             `json:"channel_buffer" yaml:"channel_buffer"`
	ConnectTimeout time.Duration   `json:"connect_timeout" yaml:"connect_timeout"`
	ReceiveTimeout time.Duration   `json:"receive_timeout" yaml:"receive_timeout"`
	ReplayInterval time.Duration   `json:"replay_interval" yaml:"replay_interval"`
	WebSocket      WebSocketConfig `json:"websocket" yaml:"websocket"`
	Kafka          KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type WebSocketConfig struct {
	URL string `json:"url" yaml:"url"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type AlarmsConfig struct {
	AlertsEnabled bool          `json:"alerts_enabled" yaml:"alerts_enabled"`
	AlertCooldown time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
	HistoryLimit  int           `json:"history_limit" yaml:"history_limit"`
}

type ArchiveConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	ExportDir string `json:"export_dir" yaml:"export_dir"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type NotifyConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	MQTT    MQTTConfig    `json:"mqtt" yaml:"mqtt"`
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
}

type MQTTConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Broker   string `json:"broker" yaml:"broker"`
	Topic    string `json:"topic" yaml:"topic"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

type MirrorConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Connection: ConnectionConfig{
			Host:           "localhost",
			TCPPort:        5000,
			WSPort:         8080,
			UpdateInterval: 0.5,
		},
		Ingest: IngestConfig{
			Source:         string(model.SourceTCP),
			ChannelBuffer:  1024,
			ConnectTimeout: 5 * time.Second,
			ReceiveTimeout: 5 * time.Second,
			ReplayInterval: 500 * time.Millisecond,
		},
		Alarms: AlarmsConfig{
			AlertsEnabled: false,
			AlertCooldown: 60 * time.Second,
		},
		Archive: ArchiveConfig{Enabled: true, ExportDir: "."},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:sensorwatch.db?_pragma=busy_timeout(5000)"},
		Notify:  NotifyConfig{Timeout: 5 * time.Second},
		Mirror:  MirrorConfig{Enabled: false, Addr: "localhost:6379", KeyPrefix: "sensorwatch:"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}

// Parse decodes a YAML or JSON document on top of DefaultConfig.
func Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1024
	}
	if cfg.Ingest.ConnectTimeout <= 0 {
		cfg.Ingest.ConnectTimeout = 5 * time.Second
	}
	if cfg.Ingest.ReceiveTimeout <= 0 {
		cfg.Ingest.ReceiveTimeout = 5 * time.Second
	}
	if cfg.Ingest.ReplayInterval <= 0 {
		cfg.Ingest.ReplayInterval = 500 * time.Millisecond
	}
	if cfg.Ingest.Source == "" {
		cfg.Ingest.Source = string(model.SourceTCP)
	}
	if cfg.Alarms.AlertCooldown <= 0 {
		cfg.Alarms.AlertCooldown = 60 * time.Second
	}
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = 5 * time.Second
	}
	if cfg.Archive.ExportDir == "" {
		cfg.Archive.ExportDir = "."
	}
	if cfg.Connection.Host == "" {
		cfg.Connection.Host = "localhost"
	}
	for name, sc := range cfg.Sensors {
		sc.Name = name
		if sc.Variation == 0 {
			sc.Variation = 5.0
		}
		cfg.Sensors[name] = sc
	}
}

func Validate(cfg *Config) error {
	if len(cfg.Sensors) == 0 {
		return errors.New("sensors: at least one sensor must be configured")
	}
	for name, sc := range cfg.Sensors {
		if strings.TrimSpace(name) == "" {
			return errors.New("sensors: empty sensor name")
		}
		if sc.Low > sc.High {
			return fmt.Errorf("sensors.%s: low (%v) greater than high (%v)", name, sc.Low, sc.High)
		}
	}
	switch model.SourceKind(cfg.Ingest.Source) {
	case model.SourceTCP, model.SourceWebSocket, model.SourceReplay, model.SourceKafka:
	default:
		return fmt.Errorf("ingest.source: unsupported source %q", cfg.Ingest.Source)
	}
	if model.SourceKind(cfg.Ingest.Source) == model.SourceKafka {
		k := cfg.Ingest.Kafka
		if len(k.Brokers) == 0 || k.Topic == "" {
			return errors.New("ingest.kafka requires brokers and topic")
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Notify.MQTT.Enabled && (cfg.Notify.MQTT.Broker == "" || cfg.Notify.MQTT.Topic == "") {
		return errors.New("notify.mqtt requires broker and topic")
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL == "" {
		return errors.New("notify.webhook.url required when notify.webhook.enabled is true")
	}
	if cfg.Mirror.Enabled && cfg.Mirror.Addr == "" {
		return errors.New("mirror.addr required when mirror.enabled is true")
	}
	if cfg.Alarms.HistoryLimit < 0 {
		return errors.New("alarms.history_limit must be >= 0")
	}
	return nil
}

// SensorNames returns the configured sensor names in sorted order.
func (c *Config) SensorNames() []string {
	names := make([]string, 0, len(c.Sensors))
	for name := range c.Sensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) TCPAddr() string {
	return net.JoinHostPort(c.Connection.Host, strconv.Itoa(c.Connection.TCPPort))
}

func (c *Config) WebSocketURL() string {
	if c.Ingest.WebSocket.URL != "" {
		return c.Ingest.WebSocket.URL
	}
	return "ws://" + net.JoinHostPort(c.Connection.Host, strconv.Itoa(c.Connection.WSPort))
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
