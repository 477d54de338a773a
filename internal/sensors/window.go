package sensors

import "sensorwatch/internal/model"

// Window holds the points of one sensor covering the last span seconds of
// pipeline-relative time. Points are appended in non-decreasing time order.
type Window struct {
	span   float64
	points []model.WindowPoint
	head   int
}

func NewWindow(span float64) *Window {
	return &Window{span: span, points: make([]model.WindowPoint, 0, 64)}
}

// Add appends a point and evicts everything older than t-span. A t earlier
// than the newest point is clamped so the window stays ordered.
func (w *Window) Add(t, value float64) {
	if n := len(w.points); n > w.head && t < w.points[n-1].Time {
		t = w.points[n-1].Time
	}
	w.points = append(w.points, model.WindowPoint{Time: t, Value: value})
	w.Evict(t - w.span)
}

func (w *Window) Evict(cutoff float64) {
	for w.head < len(w.points) && w.points[w.head].Time < cutoff {
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.points) {
		w.points = append(make([]model.WindowPoint, 0, len(w.points)-w.head), w.points[w.head:]...)
		w.head = 0
	}
}

func (w *Window) Len() int { return len(w.points) - w.head }

func (w *Window) Points() []model.WindowPoint {
	out := make([]model.WindowPoint, w.Len())
	copy(out, w.points[w.head:])
	return out
}
