package path

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"navcore/internal/geo"
	"navcore/internal/serialport"
)

type fakeLink struct {
	in  *strings.Reader
	out bytes.Buffer
}

func newFakeLink(response string) *fakeLink {
	return &fakeLink{in: strings.NewReader(response)}
}

func (l *fakeLink) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *fakeLink) Write(p []byte) (int, error) { return l.out.Write(p) }

type countingAllocator struct {
	calls  int
	refuse bool
}

func (a *countingAllocator) Allocate(n int) ([]geo.Position, error) {
	a.calls++
	if a.refuse {
		return nil, errors.New("out of memory")
	}
	return make([]geo.Position, n), nil
}

var (
	from = geo.Position{Lat: 100, Lon: 200}
	to   = geo.Position{Lat: 300, Lon: 400}
)

func TestQuery_TwoPointScenario(t *testing.T) {
	link := newFakeLink("2\n100 200\n300 400\n")
	c := NewClient(link, StaticBudget(4096), ClientConfig{})

	got, err := c.Query(from, to)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if req := link.out.String(); req != "100 200 300 400\n" {
		t.Fatalf("request=%q", req)
	}
	want := Route{
		Length:        2,
		Points:        []geo.Position{{Lat: 100, Lon: 200}, {Lat: 300, Lon: 400}},
		TargetBearing: 225,
		HasBearing:    true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("route mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, c.Route()); diff != "" {
		t.Fatalf("retained route mismatch (-want +got):\n%s", diff)
	}
	if c.State() != RouteReady {
		t.Fatalf("state=%v", c.State())
	}
}

func TestReceiveRoute_LengthBoundRejectedBeforeAllocation(t *testing.T) {
	// Room for exactly three points after the margin.
	budget := StaticBudget(DefaultSafetyMargin + 3*PointSize)
	cases := []struct {
		name     string
		response string
	}{
		{name: "OverBudget", response: "4\n1 1\n2 2\n3 3\n4 4\n"},
		{name: "Negative", response: "-1\n"},
		{name: "NotANumber", response: "many\n"},
		{name: "TrailingJunk", response: "12abc\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc := &countingAllocator{}
			c := NewClient(newFakeLink(tc.response), budget, ClientConfig{Allocator: alloc})
			_, err := c.Query(from, to)
			if !errors.Is(err, ErrLengthInvalid) {
				t.Fatalf("err=%v want ErrLengthInvalid", err)
			}
			if ErrorCode(err) != CodeLengthInvalid {
				t.Fatalf("code=%v", ErrorCode(err))
			}
			if alloc.calls != 0 {
				t.Fatalf("allocator called %d times", alloc.calls)
			}
			if c.State() != Errored {
				t.Fatalf("state=%v", c.State())
			}
		})
	}
}

func TestReceiveRoute_AtBudgetLimitAccepted(t *testing.T) {
	alloc := &countingAllocator{}
	budget := StaticBudget(DefaultSafetyMargin + 3*PointSize)
	c := NewClient(newFakeLink("3\n1 1\n2 2\n3 3\n"), budget, ClientConfig{Allocator: alloc})
	r, err := c.Query(from, to)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if r.Length != 3 || alloc.calls != 1 {
		t.Fatalf("route=%+v calls=%d", r, alloc.calls)
	}
}

func TestReceiveRoute_AllocationRefused(t *testing.T) {
	alloc := &countingAllocator{refuse: true}
	c := NewClient(newFakeLink("2\n100 200\n300 400\n"), StaticBudget(4096), ClientConfig{Allocator: alloc})
	_, err := c.Query(from, to)
	if !errors.Is(err, ErrAllocationFailed) || ErrorCode(err) != CodeAllocationFailed {
		t.Fatalf("err=%v", err)
	}
}

func TestReceiveRoute_FailureDropsPreviousRoute(t *testing.T) {
	link := newFakeLink("2\n100 200\n300 400\n2\n1 2\nbad line\n")
	c := NewClient(link, StaticBudget(4096), ClientConfig{})
	if _, err := c.Query(from, to); err != nil {
		t.Fatalf("first Query: %v", err)
	}
	if c.Route().Length != 2 {
		t.Fatalf("route not retained")
	}

	// The failed response is still buffered; keep it by not going through
	// the discard on RequestRoute.
	c.state = AwaitingResponse
	_, err := c.ReceiveRoute()
	if !errors.Is(err, ErrMalformedPoint) || ErrorCode(err) != CodeMalformedPoint {
		t.Fatalf("err=%v", err)
	}
	if diff := cmp.Diff(Route{}, c.Route()); diff != "" {
		t.Fatalf("stale route kept (-want +got):\n%s", diff)
	}
	if !errors.Is(c.Err(), ErrMalformedPoint) {
		t.Fatalf("Err()=%v", c.Err())
	}
}

func TestReceiveRoute_ShortResponseIsTransportError(t *testing.T) {
	c := NewClient(newFakeLink("3\n1 2\n"), StaticBudget(4096), ClientConfig{})
	_, err := c.Query(from, to)
	if ErrorCode(err) != CodeTransport || !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v code=%v", err, ErrorCode(err))
	}
}

func TestReceiveRoute_ShortRoutesHaveNoBearing(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     Route
	}{
		{name: "Empty", response: "0\n", want: Route{Points: []geo.Position{}}},
		{name: "Single", response: "1\n5 6\n", want: Route{Length: 1, Points: []geo.Position{{Lat: 5, Lon: 6}}}},
		{name: "BlankLinesAndCRLF", response: "\r\n\n1\r\n-5 -6\r\n", want: Route{Length: 1, Points: []geo.Position{{Lat: -5, Lon: -6}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(newFakeLink(tc.response), StaticBudget(4096), ClientConfig{})
			got, err := c.Query(from, to)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("route mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStateMachine(t *testing.T) {
	link := newFakeLink("1\n1 1\n")
	c := NewClient(link, StaticBudget(4096), ClientConfig{})

	if _, err := c.ReceiveRoute(); !errors.Is(err, ErrNotAwaiting) {
		t.Fatalf("receive while idle err=%v", err)
	}
	if err := c.RequestRoute(from, geo.Invalid()); !errors.Is(err, ErrInvalidPoint) {
		t.Fatalf("invalid endpoint err=%v", err)
	}
	if link.out.Len() != 0 {
		t.Fatalf("invalid request was written: %q", link.out.String())
	}
	if err := c.RequestRoute(from, to); err != nil {
		t.Fatalf("RequestRoute: %v", err)
	}
	if c.State() != AwaitingResponse {
		t.Fatalf("state=%v", c.State())
	}
	if err := c.RequestRoute(from, to); !errors.Is(err, ErrBusy) {
		t.Fatalf("second request err=%v", err)
	}
	if _, err := c.ReceiveRoute(); err != nil {
		t.Fatalf("ReceiveRoute: %v", err)
	}
	if c.State() != RouteReady {
		t.Fatalf("state=%v", c.State())
	}
}

func TestErrorCode(t *testing.T) {
	if ErrorCode(nil) != CodeNone {
		t.Fatalf("nil code")
	}
	if ErrorCode(io.EOF) != CodeTransport {
		t.Fatalf("foreign error code")
	}
	detailed := newError(CodeLengthInvalid, nil, "length %d", 9)
	if !errors.Is(detailed, ErrLengthInvalid) || errors.Is(detailed, ErrAllocationFailed) {
		t.Fatalf("errors.Is mismatch for %v", detailed)
	}
	if !strings.Contains(detailed.Error(), "length 9") {
		t.Fatalf("message=%q", detailed.Error())
	}
}

func TestMaxPointsAndRuntimeBudget(t *testing.T) {
	if PointSize != 12 {
		t.Fatalf("PointSize=%d", PointSize)
	}
	if got := MaxPoints(StaticBudget(1000), DefaultSafetyMargin); got != 62 {
		t.Fatalf("MaxPoints=%d want 62", got)
	}
	if got := MaxPoints(StaticBudget(100), DefaultSafetyMargin); got >= 0 {
		t.Fatalf("MaxPoints below margin=%d want negative", got)
	}

	if os.Getenv("GOMEMLIMIT") != "" {
		t.Skip("GOMEMLIMIT set")
	}
	prev := readMemStats
	readMemStats = func(ms *runtime.MemStats) { ms.HeapAlloc = 1000 }
	t.Cleanup(func() { readMemStats = prev })

	if got := (RuntimeBudget{Ceiling: 5000}).AvailableBytes(); got != 4000 {
		t.Fatalf("AvailableBytes=%d want 4000", got)
	}
	if got := (RuntimeBudget{Ceiling: 500}).AvailableBytes(); got != 0 {
		t.Fatalf("AvailableBytes=%d want 0", got)
	}
}

func TestStraightLine_ServesClient(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { _ = clientEnd.Close() })

	srv := StraightLine{Steps: 4}
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(serverEnd)
		_ = serverEnd.Close()
	}()

	c := NewClient(clientEnd, StaticBudget(4096), ClientConfig{})
	start := geo.Position{Lat: 5350000, Lon: -11350000}
	end := geo.Position{Lat: 5350400, Lon: -11350800}
	r, err := c.Query(start, end)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if diff := cmp.Diff(srv.Route(start, end), r.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
	if r.Points[0] != start || r.Points[4] != end {
		t.Fatalf("endpoints=%v %v", r.Points[0], r.Points[4])
	}

	_ = clientEnd.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestDial(t *testing.T) {
	prevSerial, prevTCP := openSerial, dialTCP
	t.Cleanup(func() { openSerial, dialTCP = prevSerial, prevTCP })

	var gotOpts serialport.Options
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	openSerial = func(path string, opts serialport.Options) (serialport.Port, error) {
		gotOpts = opts
		return a, nil
	}
	if _, err := Dial(context.Background(), LinkConfig{Device: "/dev/ttyUSB1", Serial: serialport.Options{ReadTimeout: time.Second}}); err != nil {
		t.Fatalf("serial Dial: %v", err)
	}
	if gotOpts.ReadTimeout != 0 {
		t.Fatalf("read timeout not cleared: %v", gotOpts.ReadTimeout)
	}

	var gotAddr string
	dialTCP = func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
		gotAddr = addr
		return b, nil
	}
	if _, err := Dial(context.Background(), LinkConfig{Mode: "TCP", Addr: "127.0.0.1:7070"}); err != nil {
		t.Fatalf("tcp Dial: %v", err)
	}
	if gotAddr != "127.0.0.1:7070" {
		t.Fatalf("addr=%q", gotAddr)
	}

	if _, err := Dial(context.Background(), LinkConfig{Mode: "tcp"}); err == nil {
		t.Fatalf("expected missing addr error")
	}
	if _, err := Dial(context.Background(), LinkConfig{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}

// lateLink delivers each queued chunk on its own Read, like a slow serial line.
type lateLink struct {
	chunks []string
	out    bytes.Buffer
}

func (l *lateLink) Read(p []byte) (int, error) {
	if len(l.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, l.chunks[0])
	l.chunks[0] = l.chunks[0][n:]
	if l.chunks[0] == "" {
		l.chunks = l.chunks[1:]
	}
	return n, nil
}

func (l *lateLink) Write(p []byte) (int, error) { return l.out.Write(p) }

func TestReceiveRoute_MalformedPointDrainsResponse(t *testing.T) {
	link := &lateLink{chunks: []string{
		"3\n1 2\nbad\n",
		"5 6\n",
		"2\n100 200\n300 400\n",
	}}
	c := NewClient(link, StaticBudget(4096), ClientConfig{})

	if _, err := c.Query(from, to); ErrorCode(err) != CodeMalformedPoint {
		t.Fatalf("first Query err=%v", err)
	}
	got, err := c.Query(from, to)
	if err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if got.Length != 2 || got.Points[1] != (geo.Position{Lat: 300, Lon: 400}) {
		t.Fatalf("route=%+v", got)
	}
}
