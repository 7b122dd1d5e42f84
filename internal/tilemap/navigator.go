package tilemap

import (
	"fmt"

	"navcore/internal/geo"
)

// Viewport is the visible window in level pixel space.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// Cursor is the selection point in level pixel space.
type Cursor struct {
	X, Y int
}

// Point is a screen-space pixel relative to the viewport origin.
type Point struct {
	X, Y int
}

type Segment struct {
	From, To Point
}

type Config struct {
	// Margin is how close (px) the cursor may get to a viewport edge before
	// the window scrolls.
	Margin int
	// Delta is how far (px) one scroll moves the window.
	Delta int
}

// Navigator owns the current level, the viewport and the cursor.
type Navigator struct {
	cfg    Config
	levels []Level
	cur    int
	view   Viewport
	cursor Cursor
}

// NewNavigator starts at levels[start] with a width x height window.
func NewNavigator(levels []Level, start, width, height int, cfg Config) (*Navigator, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("tilemap: no levels")
	}
	if start < 0 || start >= len(levels) {
		return nil, fmt.Errorf("tilemap: start level %d out of range", start)
	}
	for _, l := range levels {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("tilemap: window must be positive")
	}
	if cfg.Margin < 0 || 2*cfg.Margin >= width || 2*cfg.Margin >= height {
		return nil, fmt.Errorf("tilemap: margin %d does not fit a %dx%d window", cfg.Margin, width, height)
	}
	if cfg.Delta <= 0 {
		return nil, fmt.Errorf("tilemap: scroll delta must be > 0")
	}
	n := &Navigator{
		cfg:    cfg,
		levels: append([]Level(nil), levels...),
		cur:    start,
		view:   Viewport{Width: width, Height: height},
	}
	l := n.Level()
	n.MoveCursorTo(l.Width/2, l.Height/2)
	n.centerOnCursor()
	return n, nil
}

func (n *Navigator) Level() Level       { return n.levels[n.cur] }
func (n *Navigator) Viewport() Viewport { return n.view }
func (n *Navigator) Cursor() Cursor     { return n.cursor }

// MoveWindowTo places the window's top-left corner, clamped so that the
// window stays inside the level extent.
func (n *Navigator) MoveWindowTo(x, y int) {
	l := n.Level()
	n.view.X = clampInt(x, 0, l.Width-n.view.Width)
	n.view.Y = clampInt(y, 0, l.Height-n.view.Height)
}

func (n *Navigator) MoveWindowBy(dx, dy int) {
	n.MoveWindowTo(n.view.X+dx, n.view.Y+dy)
}

// MoveCursorTo places the cursor, clamped to the level extent.
func (n *Navigator) MoveCursorTo(x, y int) {
	l := n.Level()
	n.cursor.X = clampInt(x, 0, l.Width-1)
	n.cursor.Y = clampInt(y, 0, l.Height-1)
}

func (n *Navigator) MoveCursorBy(dx, dy int) {
	n.MoveCursorTo(n.cursor.X+dx, n.cursor.Y+dy)
}

// CursorScreen is the cursor relative to the window; ok is false when the
// cursor is outside it.
func (n *Navigator) CursorScreen() (x, y int, ok bool) {
	x, y = n.cursor.X-n.view.X, n.cursor.Y-n.view.Y
	return x, y, x >= 0 && x < n.view.Width && y >= 0 && y < n.view.Height
}

// CursorPosition is the geographic position under the cursor.
func (n *Navigator) CursorPosition() geo.Position {
	lat, lon := n.Level().MapToGeo(n.cursor.X, n.cursor.Y)
	return geo.Position{Lat: lat, Lon: lon}
}

// IsVisible reports whether p falls strictly inside the window.
func (n *Navigator) IsVisible(p geo.Position) bool {
	if !p.Valid() {
		return false
	}
	x, y := n.Level().GeoToMap(p.Lat, p.Lon)
	return n.view.X < x && x < n.view.X+n.view.Width &&
		n.view.Y < y && y < n.view.Y+n.view.Height
}

// Step applies one joystick displacement. When the cursor sits within the
// margin of an edge the window jumps by Delta along that axis and the cursor
// stays put this step; otherwise the cursor moves. It reports whether the
// window moved, meaning tiles must be reloaded.
func (n *Navigator) Step(dx, dy int) bool {
	if dx == 0 && dy == 0 {
		return false
	}
	sx, sy, ok := n.CursorScreen()
	if !ok {
		n.centerOnCursor()
		return true
	}

	nx, ny := n.view.X, n.view.Y
	move := false
	if sx < n.cfg.Margin {
		nx -= n.cfg.Delta
		move = true
	} else if sx > n.view.Width-1-n.cfg.Margin {
		nx += n.cfg.Delta
		move = true
	}
	if sy < n.cfg.Margin {
		ny -= n.cfg.Delta
		move = true
	} else if sy > n.view.Height-1-n.cfg.Margin {
		ny += n.cfg.Delta
		move = true
	}

	if move {
		before := n.view
		n.MoveWindowTo(nx, ny)
		if n.view != before {
			return true
		}
		// Pinned against the level edge; let the cursor travel.
	}
	n.MoveCursorBy(dx, dy)
	return false
}

// CenterOn moves the cursor to p and centers the window on it.
func (n *Navigator) CenterOn(p geo.Position) error {
	if !p.Valid() {
		return fmt.Errorf("tilemap: cannot center on invalid position")
	}
	x, y := n.Level().GeoToMap(p.Lat, p.Lon)
	n.MoveCursorTo(x, y)
	n.centerOnCursor()
	return nil
}

// Zoom switches level by delta, keeping the cursor over the same place.
// It reports whether the level changed.
func (n *Navigator) Zoom(delta int) bool {
	next := clampInt(n.cur+delta, 0, len(n.levels)-1)
	if next == n.cur {
		return false
	}
	p := n.CursorPosition()
	n.cur = next
	x, y := n.Level().GeoToMap(p.Lat, p.Lon)
	n.MoveCursorTo(x, y)
	n.centerOnCursor()
	return true
}

// ScreenPoint projects p into window coordinates without clipping.
func (n *Navigator) ScreenPoint(p geo.Position) Point {
	x, y := n.Level().GeoToMap(p.Lat, p.Lon)
	return Point{X: x - n.view.X, Y: y - n.view.Y}
}

// RouteSegments returns the route legs with at least one visible endpoint,
// in window coordinates. Legs touching an invalid point are dropped.
func (n *Navigator) RouteSegments(points []geo.Position) []Segment {
	var out []Segment
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		if !a.Valid() || !b.Valid() {
			continue
		}
		if !n.IsVisible(a) && !n.IsVisible(b) {
			continue
		}
		out = append(out, Segment{From: n.ScreenPoint(a), To: n.ScreenPoint(b)})
	}
	return out
}

// Tiles lists the tiles the current window needs.
func (n *Navigator) Tiles() []Tile {
	return n.Level().TilesFor(n.view)
}

func (n *Navigator) centerOnCursor() {
	n.MoveWindowTo(n.cursor.X-n.view.Width/2, n.cursor.Y-n.view.Height/2)
}
