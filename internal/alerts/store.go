package alerts

import (
	"sync"

	"sensorwatch/internal/model"
)

// History is the alarm history, read newest first. A zero limit keeps every
// entry; otherwise the oldest entries are dropped once limit is reached.
type History struct {
	mu    sync.RWMutex
	buf   []model.AlarmHistoryEntry
	limit int
}

func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

func (h *History) Add(entry model.AlarmHistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit == 0 || len(h.buf) < h.limit {
		h.buf = append(h.buf, entry)
		return
	}
	copy(h.buf, h.buf[1:])
	h.buf[len(h.buf)-1] = entry
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (h *History) List(limit int) []model.AlarmHistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.buf) {
		limit = len(h.buf)
	}
	out := make([]model.AlarmHistoryEntry, 0, limit)
	for i := len(h.buf) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.buf[i])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buf)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
}
