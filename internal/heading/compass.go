package heading

import (
	"errors"
	"log"
	"sync"
	"time"

	"navcore/internal/sensors/lsm303"
)

// Reader yields raw sensor samples; *lsm303.Device satisfies it.
type Reader interface {
	Read() (lsm303.Sample, error)
}

type Snapshot struct {
	Heading   int       `json:"heading"`
	Valid     bool      `json:"valid"`
	Timeouts  uint64    `json:"timeouts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Compass polls the sensor from the main loop and feeds the filter.
type Compass struct {
	r Reader
	f *Filter

	mu   sync.RWMutex
	snap Snapshot
}

func NewCompass(r Reader, f *Filter) *Compass {
	return &Compass{r: r, f: f}
}

// Poll reads one sample. On any read failure, including a timeout, the
// previous smoothed heading is returned with fresh=false.
func (c *Compass) Poll() (deg int, fresh bool) {
	s, err := c.r.Read()
	if err != nil {
		c.mu.Lock()
		if errors.Is(err, lsm303.ErrTimeout) {
			c.snap.Timeouts++
		} else if c.snap.LastError != err.Error() {
			log.Printf("compass read failed: %v", err)
		}
		c.snap.LastError = err.Error()
		c.mu.Unlock()
		return c.f.Heading(), false
	}

	deg = c.f.Update(s.Accel, s.Mag)
	c.mu.Lock()
	c.snap.Heading = deg
	c.snap.Valid = c.f.Warm()
	c.snap.LastError = ""
	c.snap.UpdatedAt = s.Time
	c.mu.Unlock()
	return deg, true
}

func (c *Compass) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
