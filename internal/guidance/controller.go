// Package guidance runs the device main loop: it reads the fix, position,
// heading and joystick, scrolls the map, requests routes and drives the
// direction indicator.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"navcore/internal/fix"
	"navcore/internal/geo"
	"navcore/internal/path"
	"navcore/internal/tilemap"
)

type FixSource interface {
	Poll() fix.State
}

// PositionSource refreshes the held position only while locked is true.
type PositionSource interface {
	Latch(locked bool) geo.Position
}

type HeadingSource interface {
	Poll() (deg int, fresh bool)
}

// Event is one joystick sample. DX and DY are already dead-zone filtered;
// Select is a press-then-release edge.
type Event struct {
	DX, DY int
	Select bool
	Zoom   int
}

type Input interface {
	Read() Event
}

type RouteClient interface {
	Query(start, end geo.Position) (path.Route, error)
}

type Indicator interface {
	Show(bearingError int) error
}

type Display interface {
	Render(Frame)
}

type Publisher interface {
	Publish(Snapshot) error
}

// Asserter halts the device when ok is false.
type Asserter interface {
	Assert(ok bool, code int)
}

const (
	StatusDestination = "DESTINATION?"
	StatusWaiting     = "WAITING"

	NoticePathError = "Path error!"
	NoticeNoFix     = "NO GPS FIX"

	FixLocked    = "USING GPS COORDS"
	FixSearching = "SEARCHING SATELLITES"
	FixSimulated = "USING FAKE DATA"
)

// AssertRouteLength is signalled when a route's point count disagrees with
// its declared length.
const AssertRouteLength = 13

type Config struct {
	// MoveThreshold is the fixed-point distance, per axis, the device must
	// travel from the route start before a re-query.
	MoveThreshold int32
	// RequeryInterval is the minimum time between queries.
	RequeryInterval time.Duration
	// Simulated marks the position source as fake data.
	Simulated bool
}

func (c Config) withDefaults() Config {
	if c.MoveThreshold <= 0 {
		c.MoveThreshold = 5
	}
	if c.RequeryInterval <= 0 {
		c.RequeryInterval = 5 * time.Second
	}
	return c
}

// Deps are the collaborators. Navigator, Fix, Position, Heading, Input and
// Client are required.
type Deps struct {
	Navigator *tilemap.Navigator
	Fix       FixSource
	Position  PositionSource
	Heading   HeadingSource
	Input     Input
	Client    RouteClient

	Indicator Indicator
	Display   Display
	Publisher Publisher
	Asserter  Asserter
}

// Frame is everything the display needs for one loop iteration.
type Frame struct {
	Level    int
	Viewport tilemap.Viewport
	Tiles    []tilemap.Tile
	// Reload is set when the map tiles under the window changed.
	Reload bool

	Cursor   tilemap.Point
	Segments []tilemap.Segment

	Position        geo.Position
	PositionVisible bool
	PositionScreen  tilemap.Point

	Heading      int
	BearingError int
	HasBearing   bool

	Status    string
	FixLine   string
	Heartbeat bool
}

type Snapshot struct {
	Locked    bool         `json:"locked"`
	Position  geo.Position `json:"position"`
	Heading   int          `json:"heading"`
	HeadingOK bool         `json:"heading_fresh"`

	HasRoute      bool         `json:"has_route"`
	RouteLength   int          `json:"route_len"`
	TargetBearing int          `json:"target_bearing,omitempty"`
	BearingError  int          `json:"bearing_error,omitempty"`
	Start         geo.Position `json:"start"`
	Destination   geo.Position `json:"destination"`

	Status    string    `json:"status"`
	Notice    string    `json:"notice,omitempty"`
	Queries   uint64    `json:"queries"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Controller struct {
	cfg Config
	d   Deps

	// Main loop state.
	route     path.Route
	start     geo.Position
	dest      geo.Position
	lastQuery time.Time
	queries   uint64
	status    string
	notice    string
	lastErr   error
	reload    bool
	fixState  fix.State
	position  geo.Position
	heading   int
	headingOK bool
	bearing   int
	indErr    string

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config, d Deps) (*Controller, error) {
	if d.Navigator == nil || d.Fix == nil || d.Position == nil || d.Heading == nil || d.Input == nil || d.Client == nil {
		return nil, fmt.Errorf("guidance: missing collaborator")
	}
	return &Controller{
		cfg:      cfg.withDefaults(),
		d:        d,
		start:    geo.Invalid(),
		dest:     geo.Invalid(),
		position: geo.Invalid(),
		status:   StatusDestination,
		reload:   true,
	}, nil
}

// Step runs one loop iteration at time now.
func (c *Controller) Step(now time.Time) {
	c.fixState = c.d.Fix.Poll()
	c.position = c.d.Position.Latch(c.fixState.Locked)
	c.heading, c.headingOK = c.d.Heading.Poll()

	c.steer()

	ev := c.d.Input.Read()
	if ev.Zoom != 0 && c.d.Navigator.Zoom(ev.Zoom) {
		c.reload = true
	}
	if ev.DX != 0 || ev.DY != 0 {
		if c.d.Navigator.Step(ev.DX, ev.DY) {
			c.reload = true
		}
	}

	if ev.Select {
		c.selectDestination(now)
	} else {
		c.maybeRequery(now)
	}

	c.render()
	c.publishSnapshot(now, false)
}

// Run steps every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("guidance: loop interval must be > 0")
	}
	log.Printf("guidance running interval=%s requery=%s threshold=%d", interval, c.cfg.RequeryInterval, c.cfg.MoveThreshold)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			c.Step(now)
		}
	}
}

// Route is the route currently steered by.
func (c *Controller) Route() path.Route { return c.route }

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Controller) steer() {
	if c.route.Length == 0 || !c.route.HasBearing {
		return
	}
	c.bearing = geo.NormalizeDegrees(c.route.TargetBearing - c.heading)
	if c.d.Indicator == nil {
		return
	}
	if err := c.d.Indicator.Show(c.bearing); err != nil {
		if err.Error() != c.indErr {
			log.Printf("guidance indicator failed: %v", err)
		}
		c.indErr = err.Error()
	} else {
		c.indErr = ""
	}
}

func (c *Controller) selectDestination(now time.Time) {
	if !c.position.Valid() {
		c.notice = NoticeNoFix
		return
	}
	c.start = c.position
	c.dest = c.d.Navigator.CursorPosition()
	c.query(now)
}

// maybeRequery re-issues the route request once the interval has elapsed and
// the device has moved past the threshold. When it has not moved the timer is
// re-armed without a request.
func (c *Controller) maybeRequery(now time.Time) {
	if c.route.Length == 0 || now.Sub(c.lastQuery) < c.cfg.RequeryInterval {
		return
	}
	if c.position.MovedBeyond(c.start, c.cfg.MoveThreshold) {
		c.start = c.position
		c.query(now)
		return
	}
	c.lastQuery = now
}

func (c *Controller) query(now time.Time) {
	c.status = StatusWaiting
	c.render()

	r, err := c.d.Client.Query(c.start, c.dest)
	c.lastQuery = now
	c.queries++
	c.status = StatusDestination
	c.reload = true

	if err != nil {
		c.route = path.Route{}
		c.lastErr = err
		c.notice = NoticePathError
		var pe *path.Error
		if errors.As(err, &pe) {
			log.Printf("guidance route query failed code=%d: %v", pe.Code, err)
		} else {
			log.Printf("guidance route query failed: %v", err)
		}
	} else {
		if c.d.Asserter != nil {
			c.d.Asserter.Assert(len(r.Points) == r.Length, AssertRouteLength)
		}
		c.route = r
		c.lastErr = nil
		c.notice = ""
		log.Printf("guidance route received len=%d bearing=%d", r.Length, r.TargetBearing)
	}
	c.publishSnapshot(now, true)
}

func (c *Controller) render() {
	if c.d.Display == nil {
		c.reload = false
		return
	}
	nav := c.d.Navigator
	cx, cy, _ := nav.CursorScreen()
	f := Frame{
		Level:     nav.Level().Index,
		Viewport:  nav.Viewport(),
		Reload:    c.reload,
		Cursor:    tilemap.Point{X: cx, Y: cy},
		Position:  c.position,
		Heading:   c.heading,
		Status:    c.status,
		FixLine:   c.fixLine(),
		Heartbeat: c.fixState.Heartbeat,
	}
	if f.Reload {
		f.Tiles = nav.Tiles()
	}
	if c.route.Length > 0 {
		f.Segments = nav.RouteSegments(c.route.Points)
		f.HasBearing = c.route.HasBearing
		f.BearingError = c.bearing
	}
	if nav.IsVisible(c.position) {
		f.PositionVisible = true
		f.PositionScreen = nav.ScreenPoint(c.position)
	}
	c.d.Display.Render(f)
	c.reload = false
}

func (c *Controller) fixLine() string {
	switch {
	case c.notice != "":
		return c.notice
	case c.cfg.Simulated:
		return FixSimulated
	case c.fixState.Locked:
		return FixLocked
	default:
		return FixSearching
	}
}

func (c *Controller) publishSnapshot(now time.Time, event bool) {
	s := Snapshot{
		Locked:      c.fixState.Locked,
		Position:    c.position,
		Heading:     c.heading,
		HeadingOK:   c.headingOK,
		HasRoute:    c.route.Length > 0,
		RouteLength: c.route.Length,
		Start:       c.start,
		Destination: c.dest,
		Status:      c.status,
		Notice:      c.notice,
		Queries:     c.queries,
		UpdatedAt:   now,
	}
	if c.route.HasBearing {
		s.TargetBearing = c.route.TargetBearing
		s.BearingError = c.bearing
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()

	if event && c.d.Publisher != nil {
		if err := c.d.Publisher.Publish(s); err != nil {
			log.Printf("guidance publish failed: %v", err)
		}
	}
}
