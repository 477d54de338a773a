package pipeline

import "sensorwatch/internal/model"

// Observer is notified of pipeline output. Every call is made from the
// consumer goroutine, in the order the items were processed.
type Observer interface {
	OnBatch(readings []model.SensorReading)
	OnLog(ev model.LogEvent)
	OnAlarmHistory(entry model.AlarmHistoryEntry)
	OnAlert(alert model.Alert)
}

// Resetter is implemented by observers that keep their own copy of pipeline
// state and need to drop it on restart or when history is cleared.
type Resetter interface {
	OnReset(history, readings bool)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Batch        func(readings []model.SensorReading)
	Log          func(ev model.LogEvent)
	AlarmHistory func(entry model.AlarmHistoryEntry)
	Alert        func(alert model.Alert)
}

func (o ObserverFuncs) OnBatch(readings []model.SensorReading) {
	if o.Batch != nil {
		o.Batch(readings)
	}
}

func (o ObserverFuncs) OnLog(ev model.LogEvent) {
	if o.Log != nil {
		o.Log(ev)
	}
}

func (o ObserverFuncs) OnAlarmHistory(entry model.AlarmHistoryEntry) {
	if o.AlarmHistory != nil {
		o.AlarmHistory(entry)
	}
}

func (o ObserverFuncs) OnAlert(alert model.Alert) {
	if o.Alert != nil {
		o.Alert(alert)
	}
}
