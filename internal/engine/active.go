package engine

import (
	"sort"
	"sync"
)

// ActiveSet holds the sensors currently in an alarm run.
type ActiveSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func NewActiveSet() *ActiveSet {
	return &ActiveSet{items: make(map[string]struct{})}
}

// Enter adds name and reports whether it was absent.
func (a *ActiveSet) Enter(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.items[name]; ok {
		return false
	}
	a.items[name] = struct{}{}
	return true
}

// Leave removes name and reports whether it was present.
func (a *ActiveSet) Leave(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.items[name]; !ok {
		return false
	}
	delete(a.items, name)
	return true
}

func (a *ActiveSet) Contains(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.items[name]
	return ok
}

func (a *ActiveSet) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

func (a *ActiveSet) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.items))
	for name := range a.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (a *ActiveSet) Reset() {
	a.mu.Lock()
	a.items = make(map[string]struct{})
	a.mu.Unlock()
}
