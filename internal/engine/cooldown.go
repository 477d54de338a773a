package engine

import (
	"sync"
	"time"
)

// Cooldown remembers when each sensor last had an alert delivered.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

// Ready reports whether at least d has passed since the last stamp for key.
func (c *Cooldown) Ready(key string, now time.Time, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[key]
	return !ok || now.Sub(ts) >= d
}

func (c *Cooldown) Stamp(key string, now time.Time) {
	c.mu.Lock()
	c.last[key] = now
	c.mu.Unlock()
}

func (c *Cooldown) Last(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[key]
	return ts, ok
}
