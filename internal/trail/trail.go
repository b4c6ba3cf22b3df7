// Package trail keeps the short live movement trail of one device.
package trail

import "time"

// Defaults for the live trail.
const (
	DefaultWindow    = 10 * time.Minute
	DefaultMaxPoints = 300
)

// Point is one raw position on the trail.
type Point struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	TimeMs int64   `json:"time_ms"` // epoch milliseconds
}

// Buffer holds the recent positions of a device. After every Push all
// points are younger than the window and there are at most MaxPoints.
type Buffer struct {
	window    time.Duration
	maxPoints int
	points    []Point
}

// New creates a Buffer. Non-positive arguments fall back to the defaults.
func New(window time.Duration, maxPoints int) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Buffer{window: window, maxPoints: maxPoints}
}

// Push appends a position stamped with ts (epoch seconds) or now when ts is
// nil, then prunes by age relative to now and by count. It is a no-op when
// either coordinate is unknown and reports whether a point was added.
func (b *Buffer) Push(lat, lon *float64, ts *int64, now time.Time) bool {
	if lat == nil || lon == nil {
		return false
	}
	tms := now.UnixMilli()
	if ts != nil {
		tms = *ts * 1000
	}
	b.points = append(b.points, Point{Lat: *lat, Lon: *lon, TimeMs: tms})
	b.prune(now)
	return true
}

func (b *Buffer) prune(now time.Time) {
	cutoff := now.Add(-b.window).UnixMilli()
	kept := b.points[:0]
	for _, p := range b.points {
		if p.TimeMs >= cutoff {
			kept = append(kept, p)
		}
	}
	clear(b.points[len(kept):])
	b.points = kept

	if excess := len(b.points) - b.maxPoints; excess > 0 {
		b.points = append(b.points[:0], b.points[excess:]...)
	}
}

// Points returns a copy of the trail, oldest first.
func (b *Buffer) Points() []Point {
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Len is the number of points on the trail.
func (b *Buffer) Len() int { return len(b.points) }
