package gps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"navcore/internal/geo"
	"navcore/internal/serialport"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

var (
	rmcValid   = nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	rmcVoid    = nmeaLine("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	ggaFix     = nmeaLine("GNGGA,123520,4807.040,N,01131.002,E,1,08,0.9,545.4,M,46.9,M,,")
	ggaNoFix   = nmeaLine("GNGGA,123521,4807.040,N,01131.002,E,0,00,99.9,,M,,M,,")
	wantLatFix = int32(4811733)
	wantLonFix = int32(1151670)
)

func withNow(t *testing.T, fn func() time.Time) {
	t.Helper()
	prev := now
	now = fn
	t.Cleanup(func() { now = prev })
}

func mustParse(t *testing.T, line string) nmea.Sentence {
	t.Helper()
	s, err := nmea.Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return s
}

func TestReceiverState_RMCAloneIsIncomplete(t *testing.T) {
	var st receiverState
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.apply(t0, mustParse(t, rmcValid)) {
		t.Fatalf("expected RMC to be applied")
	}
	if st.position(t0).Valid() {
		t.Fatalf("position valid without satellites/hdop")
	}
	snap := st.snapshot(t0)
	if snap.Valid || snap.Position.Lat != 4811730 || snap.Position.Lon != 1151667 {
		t.Fatalf("snap=%+v", snap)
	}
}

func TestReceiverState_GGACompletesFix(t *testing.T) {
	var st receiverState
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	st.apply(t0, mustParse(t, rmcValid))
	st.apply(t0, mustParse(t, ggaFix))

	p := st.position(t0.Add(1500 * time.Millisecond))
	if !p.Valid() {
		t.Fatalf("expected valid position")
	}
	if p.Lat != wantLatFix || p.Lon != wantLonFix || p.Age != 1500 {
		t.Fatalf("position=%+v", p)
	}
	snap := st.snapshot(t0)
	if snap.Satellites == nil || *snap.Satellites != 8 {
		t.Fatalf("satellites=%v", snap.Satellites)
	}
	if snap.HDOP == nil || math.Abs(*snap.HDOP-0.9) > 1e-6 {
		t.Fatalf("hdop=%v", snap.HDOP)
	}
	if snap.FixQuality != nmea.GPS {
		t.Fatalf("quality=%q", snap.FixQuality)
	}
}

func TestReceiverState_LossOfFixInvalidates(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{name: "RMCVoid", line: rmcVoid},
		{name: "GGANoFix", line: ggaNoFix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var st receiverState
			t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			st.apply(t0, mustParse(t, ggaFix))
			if !st.position(t0).Valid() {
				t.Fatalf("setup: expected valid")
			}
			st.apply(t0, mustParse(t, tc.line))
			if st.position(t0).Valid() {
				t.Fatalf("still valid after %s", tc.name)
			}
		})
	}
}

func TestReceiverState_IgnoresOtherSentences(t *testing.T) {
	var st receiverState
	vtg := nmea.BaseSentence{Talker: "GP", Type: nmea.TypeVTG}
	if st.apply(time.Now(), vtg) {
		t.Fatalf("VTG should not be applied")
	}
}

func TestService_LatchOnlyWhileLocked(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := t0
	withNow(t, func() time.Time { return cur })

	s := New(Config{Enable: true})
	if p := s.Latch(true); p.Valid() {
		t.Fatalf("no data yet, got %v", p)
	}

	s.ingest(ggaFix)
	if p := s.Latch(false); p.Valid() {
		t.Fatalf("unlocked latch returned %v before any lock", p)
	}
	p := s.Latch(true)
	if !p.Valid() || p.Lat != wantLatFix {
		t.Fatalf("locked latch=%+v", p)
	}

	// The receiver moves on but the lock is lost; the held position stays.
	s.ingest(nmeaLine("GNGGA,123530,4808.000,N,01131.002,E,1,08,0.9,545.4,M,46.9,M,,"))
	cur = t0.Add(2 * time.Second)
	if got := s.Latch(false); got != p {
		t.Fatalf("unlocked latch=%+v want held %+v", got, p)
	}
	if got := s.Latch(true); got.Lat == p.Lat {
		t.Fatalf("locked latch did not refresh: %+v", got)
	}
}

func TestService_IngestKeepsLastError(t *testing.T) {
	s := New(Config{Enable: true})
	s.ingest(ggaFix)
	bad := ggaFix[:len(ggaFix)-2] + "00"
	s.ingest(bad)
	s.ingest("garbage without dollar")

	snap := s.Snapshot()
	if snap.LastError == "" {
		t.Fatalf("expected checksum error to be recorded")
	}
	if !snap.Valid {
		t.Fatalf("parse error flipped validity")
	}
}

type fakePort struct {
	*strings.Reader
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func TestService_StartReadsUntilEOF(t *testing.T) {
	fp := &fakePort{Reader: strings.NewReader(rmcValid + "\r\n" + ggaFix + "\r\n")}
	prevOpen := openPort
	var gotOpts serialport.Options
	openPort = func(path string, opts serialport.Options) (serialport.Port, error) {
		gotOpts = opts
		return fp, nil
	}
	t.Cleanup(func() { openPort = prevOpen })

	s := New(Config{Enable: true, Device: "/dev/ttyFAKE"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(s.Snapshot().LastError, "read stopped") {
		if time.Now().After(deadline) {
			t.Fatalf("reader did not stop: %+v", s.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()

	if gotOpts.BaudRate != defaultBaud {
		t.Fatalf("baud=%d want %d", gotOpts.BaudRate, defaultBaud)
	}
	snap := s.Snapshot()
	if !snap.Valid || snap.Device != "/dev/ttyFAKE" || snap.Sentences != 2 {
		t.Fatalf("snap=%+v", snap)
	}
	if !fp.closed {
		t.Fatalf("port not closed")
	}
}

func TestService_StartFailures(t *testing.T) {
	if err := New(Config{}).Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}

	prevDetect, prevOpen := detect, openPort
	t.Cleanup(func() { detect, openPort = prevDetect, prevOpen })

	detect = func() ([]string, error) { return nil, nil }
	s := New(Config{Enable: true})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected auto-detect failure")
	}
	if !strings.Contains(s.Snapshot().LastError, "auto-detect") {
		t.Fatalf("last error=%q", s.Snapshot().LastError)
	}

	detect = func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }
	openPort = func(string, serialport.Options) (serialport.Port, error) { return nil, errors.New("busy") }
	s = New(Config{Enable: true})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected open failure")
	}
	if !strings.Contains(s.Snapshot().LastError, "/dev/ttyACM0") {
		t.Fatalf("last error=%q", s.Snapshot().LastError)
	}
}

func TestTrack_OnePointPerSecond(t *testing.T) {
	pts := Walk(geo.Position{Lat: 5350000, Lon: -11350000}, 0, -3, 3)
	tr := NewTrack(pts)
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := t0
	tr.now = func() time.Time { return cur }

	for i, off := range []time.Duration{0, 999 * time.Millisecond, time.Second, 2500 * time.Millisecond, 3 * time.Second} {
		cur = t0.Add(off)
		want := pts[int(off/time.Second)%3]
		if got := tr.Latch(false); got != want {
			t.Fatalf("step %d at %v: got %+v want %+v", i, off, got, want)
		}
	}
	if pts[2].Lon != -11350006 {
		t.Fatalf("walk lon=%d", pts[2].Lon)
	}
	if p := NewTrack(nil).Latch(true); p.Valid() {
		t.Fatalf("empty track returned %v", p)
	}
}
