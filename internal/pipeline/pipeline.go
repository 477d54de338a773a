package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/archive"
	"sensorwatch/internal/config"
	"sensorwatch/internal/engine"
	"sensorwatch/internal/ingest"
	"sensorwatch/internal/model"
	"sensorwatch/internal/sensors"
	"sensorwatch/internal/session"
	"sensorwatch/internal/storage"
)

var (
	ErrClosed         = errors.New("pipeline is not running")
	ErrAlreadyRunning = errors.New("pipeline already running")
)

const storeTimeout = 5 * time.Second

type eventKind int

const (
	eventBatch eventKind = iota
	eventLog
	eventControl
)

// event is the single item type crossing from sessions and callers into the
// consumer goroutine.
type event struct {
	kind       eventKind
	sessionID  string
	batch      []model.SensorReading
	receivedAt time.Time
	log        model.LogEvent
	apply      func()
	done       chan struct{}
}

type Options struct {
	Notifier  engine.Notifier
	Store     storage.Store
	Observers []Observer
	Logger    *slog.Logger
	LogBuffer int
}

// Pipeline owns the sensor store, alarm engine, history and archive. All of
// them are mutated only by the consumer goroutine started by Run.
type Pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	sensors   *sensors.Store
	engine    *engine.Engine
	history   *alerts.History
	archive   *archive.Archive
	store     storage.Store
	observers []Observer
	logs      *LogBuffer

	events     chan event
	closed     chan struct{}
	running    atomic.Bool
	started    time.Time
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	session   *session.Session
	current   atomic.Pointer[session.Session]
	newSource func(cfg *config.Config, kind model.SourceKind, replayPath string) (ingest.Source, error)
}

func New(cfg *config.Config, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.Ingest.ChannelBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		sensors: sensors.NewStore(cfg.Sensors, sensors.DefaultSpan),
		engine: engine.NewEngine(engine.Options{
			Cooldown:      cfg.Alarms.AlertCooldown,
			AlertsEnabled: cfg.Alarms.AlertsEnabled,
			NotifyTimeout: cfg.Notify.Timeout,
		}, opts.Notifier, logger),
		history:    alerts.NewHistory(cfg.Alarms.HistoryLimit),
		archive:    archive.New(),
		store:      opts.Store,
		observers:  opts.Observers,
		logs:       NewLogBuffer(opts.LogBuffer),
		events:     make(chan event, buffer),
		closed:     make(chan struct{}),
		started:    time.Now(),
		baseCtx:    baseCtx,
		baseCancel: cancel,
		newSource:  ingest.NewSource,
	}
}

func (p *Pipeline) Sensors() *sensors.Store   { return p.sensors }
func (p *Pipeline) Engine() *engine.Engine    { return p.engine }
func (p *Pipeline) History() *alerts.History  { return p.history }
func (p *Pipeline) Archive() *archive.Archive { return p.archive }
func (p *Pipeline) Logs() *LogBuffer          { return p.logs }

// Run consumes events until ctx is done, then stops the active session.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		close(p.closed)
		p.baseCancel()
		p.mu.Lock()
		p.stopLocked()
		p.mu.Unlock()
	}()
	p.logger.Info("pipeline started", "sensors", len(p.cfg.Sensors))
	for {
		select {
		case ev := <-p.events:
			p.handle(ctx, ev)
		case <-ctx.Done():
			p.logger.Info("pipeline stopping")
			return nil
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventBatch:
		p.consumeBatch(ctx, ev)
	case eventLog:
		p.recordLog(ev.log)
	case eventControl:
		ev.apply()
		close(ev.done)
	}
}

func (p *Pipeline) consumeBatch(ctx context.Context, ev event) {
	rel := ev.receivedAt.Sub(p.started).Seconds()
	p.sensors.Ingest(ev.batch, rel)

	for _, r := range ev.batch {
		if !p.sensors.Known(r.Name) {
			continue
		}
		eff := p.engine.Evaluate(ctx, r)
		if eff.History != nil {
			entry := *eff.History
			p.history.Add(entry)
			p.persist(ctx, "save alarm", func(c context.Context) error {
				return p.store.SaveAlarm(c, ev.sessionID, entry)
			})
			for _, o := range p.observers {
				o.OnAlarmHistory(entry)
			}
		}
		if eff.Alert != nil {
			alert := *eff.Alert
			p.persist(ctx, "save alert", func(c context.Context) error {
				return p.store.SaveAlert(c, ev.sessionID, alert)
			})
			for _, o := range p.observers {
				o.OnAlert(alert)
			}
		}
	}

	if p.cfg.Archive.Enabled {
		entry := model.ArchiveEntry{ReceivedAt: model.UnixSeconds(ev.receivedAt), Sensors: ev.batch}
		p.archive.Append(entry)
		p.persist(ctx, "save batch", func(c context.Context) error {
			return p.store.SaveBatch(c, ev.sessionID, entry)
		})
	}

	for _, o := range p.observers {
		o.OnBatch(ev.batch)
	}
}

func (p *Pipeline) persist(ctx context.Context, what string, fn func(context.Context) error) {
	if p.store == nil {
		return
	}
	c, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := fn(c); err != nil {
		p.logger.Warn(what, "err", err)
	}
}

func (p *Pipeline) recordLog(ev model.LogEvent) {
	p.logs.Add(ev)
	for _, o := range p.observers {
		o.OnLog(ev)
	}
}

// systemLog records a system event. It must run on the consumer goroutine.
func (p *Pipeline) systemLog(msg string) {
	p.logger.Info(msg, "category", string(model.LogSystem))
	p.recordLog(model.LogEvent{Time: time.Now().UTC(), Category: model.LogSystem, Message: msg})
}

func (p *Pipeline) resetObservers(history, readings bool) {
	for _, o := range p.observers {
		if r, ok := o.(Resetter); ok {
			r.OnReset(history, readings)
		}
	}
}

func (p *Pipeline) send(ev event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.closed:
		return false
	}
}

// do runs fn on the consumer goroutine after every event already queued,
// and waits for it to finish.
func (p *Pipeline) do(ctx context.Context, fn func()) error {
	ev := event{kind: eventControl, apply: fn, done: make(chan struct{})}
	select {
	case p.events <- ev:
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ev.done:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// sink adapts the pipeline's event channel to session.Sink.
type sink struct{ p *Pipeline }

func (s sink) Batch(sessionID string, readings []model.SensorReading, receivedAt time.Time) bool {
	return s.p.send(event{kind: eventBatch, sessionID: sessionID, batch: readings, receivedAt: receivedAt})
}

func (s sink) Log(ev model.LogEvent) bool {
	return s.p.send(event{kind: eventLog, log: ev})
}

// StartSession builds a source of the given kind and starts it, replacing
// any active session.
func (p *Pipeline) StartSession(ctx context.Context, kind model.SourceKind, replayPath string) (session.Info, error) {
	src, err := p.newSource(p.cfg, kind, replayPath)
	if err != nil {
		return session.Info{}, err
	}
	return p.StartSource(ctx, src)
}

// StartSource stops the active session, waits for its teardown, and starts
// a new session on src. Replay sessions begin from an empty alarm history,
// sensor view and log; active alarms carry over.
func (p *Pipeline) StartSource(ctx context.Context, src ingest.Source) (session.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed() {
		return session.Info{}, ErrClosed
	}
	p.stopLocked()

	if src.Kind() == model.SourceReplay {
		err := p.do(ctx, func() {
			p.history.Clear()
			p.sensors.Reset()
			p.logs.Clear()
			p.resetObservers(true, true)
		})
		if err != nil {
			return session.Info{}, err
		}
	}
	return p.startLocked(src), nil
}

func (p *Pipeline) startLocked(src ingest.Source) session.Info {
	s := session.New(src, sink{p}, p.logger)
	s.Start(p.baseCtx)
	p.session = s
	p.current.Store(s)
	p.logger.Info("session started", "session_id", s.ID, "source", string(src.Kind()), "target", src.Describe())
	return s.Info()
}

// StopSession stops the active session and reports whether one was running.
func (p *Pipeline) StopSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() bool {
	if p.session == nil {
		return false
	}
	running := p.session.State() != model.SessionStopped
	p.session.Stop()
	return running
}

// Session returns the current or most recent session.
func (p *Pipeline) Session() (session.Info, bool) {
	s := p.current.Load()
	if s == nil {
		return session.Info{}, false
	}
	return s.Info(), true
}

// Restart stops the session and returns the pipeline to its initial state:
// no readings, no alarms, empty archive, alerts disabled. A live session
// that was streaming is reconnected on a fresh source afterwards.
func (p *Pipeline) Restart(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var reconnect model.SourceKind
	if p.session != nil {
		if info := p.session.Info(); info.State == model.SessionStreaming && isLive(info.Source) {
			reconnect = info.Source
		}
	}
	p.stopLocked()
	err := p.do(ctx, func() {
		p.sensors.Reset()
		p.engine.Reset()
		p.engine.SetAlertsEnabled(false)
		p.history.Clear()
		p.archive.Clear()
		p.resetObservers(true, true)
		p.systemLog("system restarted")
	})
	if err != nil || reconnect == "" {
		return err
	}
	src, err := p.newSource(p.cfg, reconnect, "")
	if err != nil {
		return err
	}
	p.startLocked(src)
	return nil
}

func isLive(kind model.SourceKind) bool {
	switch kind {
	case model.SourceTCP, model.SourceWebSocket, model.SourceKafka:
		return true
	}
	return false
}

func (p *Pipeline) ClearHistory(ctx context.Context) error {
	return p.do(ctx, func() {
		p.history.Clear()
		p.resetObservers(true, false)
		p.systemLog("alarm history cleared")
	})
}

func (p *Pipeline) SetAlertsEnabled(ctx context.Context, enabled bool) error {
	return p.do(ctx, func() {
		p.engine.SetAlertsEnabled(enabled)
		if enabled {
			p.systemLog("alerts enabled")
		} else {
			p.systemLog("alerts disabled")
		}
	})
}

func (p *Pipeline) Export(w io.Writer) error {
	return p.archive.Export(w)
}

// ExportFile writes the archive into the configured export directory.
func (p *Pipeline) ExportFile() (string, error) {
	path, err := p.archive.ExportFile(p.cfg.Archive.ExportDir, time.Now())
	if err != nil {
		return "", err
	}
	p.logger.Info("archive exported", "path", path, "entries", p.archive.Len())
	return path, nil
}

type Status struct {
	Operational    bool          `json:"operational"`
	ActiveAlarms   []string      `json:"active_alarms"`
	AlertsEnabled  bool          `json:"alerts_enabled"`
	Session        *session.Info `json:"session,omitempty"`
	ArchiveEntries int           `json:"archive_entries"`
	HistoryEntries int           `json:"history_entries"`
	Uptime         string        `json:"uptime"`
}

func (p *Pipeline) Status() Status {
	st := Status{
		Operational:    p.engine.Operational(),
		ActiveAlarms:   p.engine.Active(),
		AlertsEnabled:  p.engine.AlertsEnabled(),
		ArchiveEntries: p.archive.Len(),
		HistoryEntries: p.history.Len(),
		Uptime:         time.Since(p.started).Truncate(time.Second).String(),
	}
	if info, ok := p.Session(); ok {
		st.Session = &info
	}
	return st
}
