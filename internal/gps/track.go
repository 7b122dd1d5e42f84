package gps

import (
	"time"

	"navcore/internal/geo"
)

// Track replays a fixed list of positions, one per second, looping at the
// end. It stands in for the receiver when demonstrating somewhere a real fix
// is unavailable, so it ignores the lock state.
type Track struct {
	points []geo.Position
	start  time.Time
	now    func() time.Time
}

func NewTrack(points []geo.Position) *Track {
	return &Track{points: append([]geo.Position(nil), points...), now: time.Now}
}

// Latch returns the track point for the current second.
func (t *Track) Latch(bool) geo.Position {
	if len(t.points) == 0 {
		return geo.Invalid()
	}
	n := t.now()
	if t.start.IsZero() {
		t.start = n
	}
	i := int(n.Sub(t.start)/time.Second) % len(t.points)
	p := t.points[i]
	p.Age = 0
	return p
}

// Walk builds n points starting at from, each displaced by (dLat, dLon).
func Walk(from geo.Position, dLat, dLon int32, n int) []geo.Position {
	out := make([]geo.Position, 0, n)
	p := geo.Position{Lat: from.Lat, Lon: from.Lon}
	for i := 0; i < n; i++ {
		out = append(out, p)
		p.Lat += dLat
		p.Lon += dLon
	}
	return out
}
