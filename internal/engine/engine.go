package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"sensorwatch/internal/model"
)

const DefaultAlertCooldown = 60 * time.Second

// Notifier delivers an alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert model.Alert) error
}

// Effect is what one reading did to the alarm state.
type Effect struct {
	Reading model.SensorReading
	// History is set for every alarming reading.
	History *model.AlarmHistoryEntry
	Entered bool
	Cleared bool
	// Alert is set only when an alert was delivered.
	Alert *model.Alert
	// Suppressed is set when an edge fell inside the cooldown.
	Suppressed bool
}

type Options struct {
	Cooldown      time.Duration
	AlertsEnabled bool
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Engine derives alarm transitions from readings. Evaluate is called from a
// single goroutine; the accessors are safe from any goroutine.
type Engine struct {
	logger        *slog.Logger
	notifier      Notifier
	active        *ActiveSet
	cooldown      *Cooldown
	cooldownDur   time.Duration
	notifyTimeout time.Duration
	alertsEnabled atomic.Bool
	now           func() time.Time
}

func NewEngine(opts Options, notifier Notifier, logger *slog.Logger) *Engine {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultAlertCooldown
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		logger:        logger,
		notifier:      notifier,
		active:        NewActiveSet(),
		cooldown:      NewCooldown(),
		cooldownDur:   opts.Cooldown,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
	}
	e.alertsEnabled.Store(opts.AlertsEnabled)
	return e
}

func (e *Engine) SetAlertsEnabled(enabled bool) {
	e.alertsEnabled.Store(enabled)
}

func (e *Engine) AlertsEnabled() bool {
	return e.alertsEnabled.Load()
}

// Active returns the sensors currently alarming, sorted.
func (e *Engine) Active() []string {
	return e.active.Names()
}

func (e *Engine) IsActive(name string) bool {
	return e.active.Contains(name)
}

// Operational reports whether no sensor is alarming.
func (e *Engine) Operational() bool {
	return e.active.Len() == 0
}

// Reset empties the active set. Cooldown stamps survive so a restart cannot
// be used to bypass the alert rate limit.
func (e *Engine) Reset() {
	e.active.Reset()
}

func (e *Engine) Evaluate(ctx context.Context, r model.SensorReading) Effect {
	eff := Effect{Reading: r}
	if !r.Status.IsAlarm() {
		eff.Cleared = e.active.Leave(r.Name)
		return eff
	}

	eff.History = &model.AlarmHistoryEntry{
		Timestamp:  r.Timestamp,
		SensorName: r.Name,
		Value:      r.Value,
		Status:     r.Status,
	}
	eff.Entered = e.active.Enter(r.Name)
	if !eff.Entered || !e.alertsEnabled.Load() {
		return eff
	}

	now := e.now()
	if !e.cooldown.Ready(r.Name, now, e.cooldownDur) {
		eff.Suppressed = true
		if e.logger != nil {
			last, _ := e.cooldown.Last(r.Name)
			e.logger.Debug("alert suppressed by cooldown", "sensor", r.Name, "last_alert", last, "retry_after", last.Add(e.cooldownDur))
		}
		return eff
	}

	alert := model.Alert{
		SensorName: r.Name,
		Value:      r.Value,
		Status:     r.Status,
		Timestamp:  r.Timestamp,
		RaisedAt:   now.UTC(),
	}
	if err := e.deliver(ctx, alert); err != nil {
		if e.logger != nil {
			e.logger.Warn("alert delivery failed", "sensor", r.Name, "err", err)
		}
		return eff
	}
	e.cooldown.Stamp(r.Name, now)
	eff.Alert = &alert
	if e.logger != nil {
		e.logger.Warn("alert raised", "sensor", r.Name, "value", r.Value, "status", string(r.Status))
	}
	return eff
}

func (e *Engine) deliver(ctx context.Context, alert model.Alert) error {
	if e.notifier == nil {
		return nil
	}
	nctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()
	return e.notifier.Notify(nctx, alert)
}
