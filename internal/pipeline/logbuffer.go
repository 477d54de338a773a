package pipeline

import (
	"sync"

	"sensorwatch/internal/model"
)

// LogBuffer is a thread-safe ring of recent session log events.
type LogBuffer struct {
	entries []model.LogEvent
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 500
	}
	return &LogBuffer{entries: make([]model.LogEvent, size), size: size}
}

func (lb *LogBuffer) Add(ev model.LogEvent) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries[lb.head] = ev
	lb.head = (lb.head + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}
}

// Entries returns the buffered events in chronological order.
func (lb *LogBuffer) Entries() []model.LogEvent {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	result := make([]model.LogEvent, lb.count)
	start := 0
	if lb.count == lb.size {
		start = lb.head
	}
	for i := 0; i < lb.count; i++ {
		result[i] = lb.entries[(start+i)%lb.size]
	}
	return result
}

// Recent returns the last n events.
func (lb *LogBuffer) Recent(n int) []model.LogEvent {
	entries := lb.Entries()
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.head = 0
	lb.count = 0
}
