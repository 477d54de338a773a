package sensors

import (
	"sort"
	"sync"
	"time"

	"sensorwatch/internal/model"
)

// DefaultSpan is the window length in seconds.
const DefaultSpan = 20.0

// Store owns the latest reading and the sliding window of every configured
// sensor. Only the pipeline consumer writes; any goroutine may read.
type Store struct {
	mu        sync.RWMutex
	span      float64
	configs   map[string]model.SensorConfig
	windows   map[string]*Window
	latest    map[string]model.SensorReading
	updatedAt map[string]time.Time
}

// View is the read model of one sensor.
type View struct {
	Config    model.SensorConfig   `json:"config"`
	Latest    *model.SensorReading `json:"latest,omitempty"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
	Window    []model.WindowPoint  `json:"window,omitempty"`
}

func NewStore(configs map[string]model.SensorConfig, span float64) *Store {
	if span <= 0 {
		span = DefaultSpan
	}
	s := &Store{span: span, configs: make(map[string]model.SensorConfig, len(configs))}
	for name, cfg := range configs {
		cfg.Name = name
		s.configs[name] = cfg
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.windows = make(map[string]*Window, len(s.configs))
	s.latest = make(map[string]model.SensorReading, len(s.configs))
	s.updatedAt = make(map[string]time.Time, len(s.configs))
	for name := range s.configs {
		s.windows[name] = NewWindow(s.span)
	}
}

// Ingest records a batch received at relative time t (seconds). Readings for
// unknown sensors are ignored. It returns how many readings were accepted.
func (s *Store) Ingest(batch []model.SensorReading, t float64) int {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	accepted := 0
	for _, r := range batch {
		w, ok := s.windows[r.Name]
		if !ok {
			continue
		}
		w.Add(t, r.Value)
		s.latest[r.Name] = r
		s.updatedAt[r.Name] = now
		accepted++
	}
	return accepted
}

func (s *Store) Known(name string) bool {
	_, ok := s.configs[name]
	return ok
}

func (s *Store) Config(name string) (model.SensorConfig, bool) {
	cfg, ok := s.configs[name]
	return cfg, ok
}

func (s *Store) Latest(name string) (model.SensorReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[name]
	return r, ok
}

func (s *Store) Window(name string) []model.WindowPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[name]
	if !ok {
		return nil
	}
	return w.Points()
}

// Get returns the full view of one sensor, including its window.
func (s *Store) Get(name string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	if !ok {
		return View{}, false
	}
	v := s.view(cfg)
	v.Window = s.windows[name].Points()
	return v, true
}

// All returns every configured sensor sorted by name, without windows.
func (s *Store) All() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]View, 0, len(names))
	for _, name := range names {
		out = append(out, s.view(s.configs[name]))
	}
	return out
}

func (s *Store) view(cfg model.SensorConfig) View {
	v := View{Config: cfg}
	if r, ok := s.latest[cfg.Name]; ok {
		r := r
		v.Latest = &r
		at := s.updatedAt[cfg.Name]
		v.UpdatedAt = &at
	}
	return v
}

// Reset drops every window and latest reading.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}
