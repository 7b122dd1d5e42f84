package path

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"navcore/internal/geo"
)

// StraightLine is a stand-in routing server for the simulator and bench
// tests. It answers every request with Steps+1 evenly spaced points from
// start to end.
type StraightLine struct {
	Steps int
}

func (s StraightLine) Route(start, end geo.Position) []geo.Position {
	steps := s.Steps
	if steps < 1 {
		steps = 1
	}
	out := make([]geo.Position, 0, steps+1)
	dLat := int64(end.Lat) - int64(start.Lat)
	dLon := int64(end.Lon) - int64(start.Lon)
	for i := 0; i <= steps; i++ {
		out = append(out, geo.Position{
			Lat: int32(int64(start.Lat) + dLat*int64(i)/int64(steps)),
			Lon: int32(int64(start.Lon) + dLon*int64(i)/int64(steps)),
		})
	}
	return out
}

// Serve answers requests on rw until it is closed. A malformed request gets
// an empty route.
func (s StraightLine) Serve(rw io.ReadWriter) error {
	sc := bufio.NewScanner(rw)
	w := bufio.NewWriter(rw)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var pts []geo.Position
		if start, end, err := parseRequest(line); err == nil {
			pts = s.Route(start, end)
		} else {
			log.Printf("path server: bad request %q: %v", line, err)
		}
		fmt.Fprintf(w, "%d\n", len(pts))
		for _, p := range pts {
			fmt.Fprintf(w, "%d %d\n", p.Lat, p.Lon)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ListenAndServe accepts TCP connections on addr until ctx is done.
func (s StraightLine) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("path server: listen %s: %w", addr, err)
	}
	log.Printf("path server listening addr=%s steps=%d", ln.Addr(), s.Steps)

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("path server: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			if err := s.Serve(conn); err != nil && ctx.Err() == nil {
				log.Printf("path server: conn %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func parseRequest(line string) (start, end geo.Position, err error) {
	f := strings.Fields(line)
	if len(f) != 4 {
		return start, end, fmt.Errorf("want 4 fields, got %d", len(f))
	}
	var v [4]int32
	for i, s := range f {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return start, end, err
		}
		v[i] = int32(n)
	}
	return geo.Position{Lat: v[0], Lon: v[1]}, geo.Position{Lat: v[2], Lon: v[3]}, nil
}
