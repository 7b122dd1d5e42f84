package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"navcore/internal/geo"
	"navcore/internal/serialport"
)

// Config controls the receiver reader.
//
// Device may be empty to auto-detect the first /dev/ttyACM* or /dev/ttyUSB*.
type Config struct {
	Enable bool
	Device string
	Baud   int
}

const defaultBaud = 4800

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	Position   geo.Position `json:"position"`
	LatDeg     float64      `json:"lat_deg,omitempty"`
	LonDeg     float64      `json:"lon_deg,omitempty"`
	FixQuality string       `json:"fix_quality,omitempty"`
	Satellites *int         `json:"satellites,omitempty"`
	HDOP       *float64     `json:"hdop,omitempty"`
	FixAgeSec  float64      `json:"fix_age_sec,omitempty"`
	Sentences  uint64       `json:"sentences"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

var (
	now      = time.Now
	openPort = serialport.Open
	detect   = serialport.Candidates
)

type Service struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
	st     receiverState

	// Main loop only.
	held geo.Position
}

func New(cfg Config) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}
	s := &Service{cfg: cfg, held: geo.Invalid()}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Device: cfg.Device, Baud: cfg.Baud, Position: geo.Invalid()})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		candidates, err := detect()
		if err != nil || len(candidates) == 0 {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
		device = candidates[0]
	}

	port, err := openPort(device, serialport.Options{BaudRate: s.cfg.Baud})
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err))
		return err
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.last.Store(Snapshot{Enabled: true, Device: device, Baud: s.cfg.Baud, Position: geo.Invalid()})
	log.Printf("gps enabled device=%s baud=%d", device, s.cfg.Baud)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = port.Close() }()
		s.readLoop(childCtx, port, device)
	}()
	return nil
}

func (s *Service) readLoop(ctx context.Context, r io.Reader, device string) {
	sc := bufio.NewScanner(r)
	// NMEA sentences are at most 82 chars; leave headroom for chatter.
	sc.Buffer(make([]byte, 0, 256), 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sc.Scan() {
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("gps read stopped device=%s: %v", device, err))
			return
		}
		s.ingest(sc.Text())
	}
}

// ingest parses one line and publishes an updated snapshot.
func (s *Service) ingest(line string) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}
	sent, err := nmea.Parse(line)
	if err != nil {
		// Keep the last error instead of logging every bit of line noise.
		s.setError(fmt.Sprintf("gps: %v", err))
		return
	}

	t := now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.apply(t, sent) {
		return
	}
	prev := s.Snapshot()
	snap := s.st.snapshot(t)
	snap.Device, snap.Baud = prev.Device, prev.Baud
	s.last.Store(snap)
}

// Latch refreshes the held position from the receiver while locked is true
// and returns it. Without a lock the previously held position is returned
// untouched; before the first lock it is the invalid sentinel.
func (s *Service) Latch(locked bool) geo.Position {
	if locked {
		s.mu.Lock()
		s.held = s.st.position(now())
		s.mu.Unlock()
	}
	return s.held
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	// Transient parse issues do not flip validity.
	s.last.Store(cur)
}
