package indicator

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Halter is the crash policy: stop the tick goroutine, then blink the status
// LED and repeat the code forever.
type Halter struct {
	Status Line
	// Stop quiesces the timer-driven tick before the halt loop starts.
	Stop func()
	// Out receives the code once per blink; os.Stderr when nil.
	Out io.Writer
}

const blinkHalfPeriod = 500 * time.Millisecond

var (
	// haltCycles bounds the halt loop; negative means forever.
	haltCycles = -1
	spin       = busyWait
)

// Assert halts with code when ok is false.
func (h *Halter) Assert(ok bool, code int) {
	if ok {
		return
	}
	h.Halt(code)
}

// Halt never returns in production.
func (h *Halter) Halt(code int) {
	log.Printf("assertion failure code=%d", code)
	if h.Stop != nil {
		h.Stop()
	}
	out := h.Out
	if out == nil {
		out = os.Stderr
	}
	for i := 0; haltCycles < 0 || i < haltCycles; i++ {
		fmt.Fprintln(out, code)
		h.set(0)
		spin(blinkHalfPeriod)
		h.set(1)
		spin(blinkHalfPeriod)
	}
}

func (h *Halter) set(v int) {
	if h.Status != nil {
		_ = h.Status.SetValue(v)
	}
}

// busyWait spins without touching the scheduler's timers.
func busyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
