// Package path speaks the line-oriented route protocol with the routing
// server.
//
// Request:  "<startLat> <startLon> <endLat> <endLon>\n"
// Response: "<N>\n" followed by N lines of "<lat> <lon>\n"
//
// All coordinates are 1e-5 degree fixed-point integers.
package path

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"navcore/internal/geo"
)

type State int

const (
	Idle State = iota
	AwaitingResponse
	RouteReady
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting"
	case RouteReady:
		return "ready"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Route is an ordered list of waypoints. Length == 0 means no route.
type Route struct {
	Length int
	Points []geo.Position

	// TargetBearing is only meaningful when HasBearing is set (Length >= 2).
	TargetBearing int
	HasBearing    bool
}

type ClientConfig struct {
	// SafetyMargin is subtracted from the budget before sizing a route.
	// Zero selects DefaultSafetyMargin.
	SafetyMargin int
	// Allocator defaults to HeapAllocator{}.
	Allocator Allocator
}

// Client is not safe for concurrent use; the guidance loop owns it.
type Client struct {
	w      io.Writer
	r      *bufio.Reader
	budget MemoryBudget
	cfg    ClientConfig

	state State
	route Route
	err   error
}

func NewClient(rw io.ReadWriter, budget MemoryBudget, cfg ClientConfig) *Client {
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.Allocator == nil {
		cfg.Allocator = HeapAllocator{}
	}
	return &Client{w: rw, r: bufio.NewReader(rw), budget: budget, cfg: cfg}
}

func (c *Client) State() State { return c.state }

// Route is the most recent successful route; zero after a failed request.
func (c *Client) Route() Route { return c.route }

// Err is the failure of the last request, if any.
func (c *Client) Err() error { return c.err }

// RequestRoute writes one request line and waits for ReceiveRoute.
//
// After a failed response, residue that is already buffered is dropped. A
// response rejected at its length line has no usable count, so lines of it
// that arrive after this call are read as the next response.
func (c *Client) RequestRoute(start, end geo.Position) error {
	if c.state == AwaitingResponse {
		return ErrBusy
	}
	if c.state == Errored {
		_, _ = c.r.Discard(c.r.Buffered())
	}
	c.state = Idle
	if !start.Valid() || !end.Valid() {
		return ErrInvalidPoint
	}
	if _, err := fmt.Fprintf(c.w, "%d %d %d %d\n", start.Lat, start.Lon, end.Lat, end.Lon); err != nil {
		return c.fail(newError(CodeTransport, err, "write request"))
	}
	c.state = AwaitingResponse
	return nil
}

// ReceiveRoute blocks until the response arrives and parses it.
//
// The declared count is checked against the memory budget before any storage
// is requested. On success the previous route is released and replaced.
func (c *Client) ReceiveRoute() (Route, error) {
	if c.state != AwaitingResponse {
		return Route{}, ErrNotAwaiting
	}

	line, err := c.readLine(true)
	if err != nil {
		return Route{}, c.fail(newError(CodeTransport, err, "read length"))
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Route{}, c.fail(newError(CodeLengthInvalid, nil, "empty length line"))
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return Route{}, c.fail(newError(CodeLengthInvalid, nil, "length %q", fields[0]))
	}
	limit := MaxPoints(c.budget, c.cfg.SafetyMargin)
	if n < 0 || n > limit {
		return Route{}, c.fail(newError(CodeLengthInvalid, nil, "length %d outside [0,%d]", n, limit))
	}

	pts, err := c.cfg.Allocator.Allocate(n)
	if err != nil || len(pts) < n {
		return Route{}, c.fail(newError(CodeAllocationFailed, err, "%d points", n))
	}
	pts = pts[:n]

	for i := 0; i < n; i++ {
		line, err := c.readLine(false)
		if err != nil {
			return Route{}, c.fail(newError(CodeTransport, err, "read point %d", i))
		}
		p, err := parsePoint(line)
		if err != nil {
			c.skipLines(n - i - 1)
			return Route{}, c.fail(newError(CodeMalformedPoint, err, "point %d", i))
		}
		pts[i] = p
	}

	r := Route{Length: n, Points: pts}
	if n >= 2 {
		r.TargetBearing = geo.Bearing(pts[0], pts[1])
		r.HasBearing = true
	}
	c.route = r
	c.err = nil
	c.state = RouteReady
	return r, nil
}

// Query is RequestRoute followed by ReceiveRoute.
func (c *Client) Query(start, end geo.Position) (Route, error) {
	if err := c.RequestRoute(start, end); err != nil {
		return Route{}, err
	}
	return c.ReceiveRoute()
}

func (c *Client) fail(err error) error {
	c.route = Route{}
	c.err = err
	c.state = Errored
	return err
}

// skipLines consumes the rest of a rejected response so the next request
// starts on a clean line boundary.
func (c *Client) skipLines(n int) {
	for ; n > 0; n-- {
		if _, err := c.readLine(false); err != nil {
			return
		}
	}
}

// readLine returns the next line without its terminator. Blank lines are
// skipped while waiting for the length line.
func (c *Client) readLine(skipBlank bool) (string, error) {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if skipBlank && strings.TrimSpace(line) == "" {
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			continue
		}
		return line, nil
	}
}

func parsePoint(line string) (geo.Position, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return geo.Position{}, fmt.Errorf("want 2 fields, got %d in %q", len(fields), line)
	}
	lat, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return geo.Position{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return geo.Position{}, fmt.Errorf("lon: %w", err)
	}
	return geo.Position{Lat: int32(lat), Lon: int32(lon)}, nil
}
