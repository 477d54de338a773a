package notify

import (
	"context"
	"errors"
	"log/slog"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

type Notifier interface {
	Notify(ctx context.Context, alert model.Alert) error
}

// LogNotifier writes alerts to the structured log. It always succeeds.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert model.Alert) error {
	n.logger.Warn("sensor alarm",
		"sensor", alert.SensorName,
		"value", alert.Value,
		"status", string(alert.Status),
		"timestamp", alert.Timestamp,
	)
	return nil
}

// Multi fans an alert out to several notifiers. Delivery counts as
// successful when at least one of them accepted the alert; the other
// failures are logged. Journal notifiers see every alert but do not count
// towards delivery.
type Multi struct {
	notifiers []Notifier
	journal   []Notifier
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &Multi{notifiers: out, logger: logger}
}

// WithJournal adds notifiers whose outcome is ignored.
func (m *Multi) WithJournal(notifiers ...Notifier) *Multi {
	for _, n := range notifiers {
		if n != nil {
			m.journal = append(m.journal, n)
		}
	}
	return m
}

func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, alert model.Alert) error {
	for _, n := range m.journal {
		_ = n.Notify(ctx, alert)
	}
	if len(m.notifiers) == 0 {
		return nil
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
			if m.logger != nil {
				m.logger.Warn("notifier failed", "sensor", alert.SensorName, "err", err)
			}
		}
	}
	if len(errs) == len(m.notifiers) {
		return errors.Join(errs...)
	}
	return nil
}

// Build wires the notifiers enabled in cfg behind a Multi. The log notifier
// always runs; it decides delivery only when no other channel is enabled.
// The returned closer releases broker connections.
func Build(cfg config.NotifyConfig, logger *slog.Logger) (*Multi, func(), error) {
	var notifiers []Notifier
	var closers []func()
	if cfg.MQTT.Enabled {
		n, err := NewMQTTNotifier(cfg.MQTT, cfg.Timeout, logger)
		if err != nil {
			return nil, func() {}, err
		}
		notifiers = append(notifiers, n)
		closers = append(closers, n.Close)
	}
	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, NewWebhookNotifier(cfg.Webhook.URL, cfg.Timeout))
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	logNotifier := NewLogNotifier(logger)
	if len(notifiers) == 0 {
		return NewMulti(logger, logNotifier), closeAll, nil
	}
	return NewMulti(logger, notifiers...).WithJournal(logNotifier), closeAll, nil
}
