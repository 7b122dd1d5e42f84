// Package heading computes a tilt-compensated compass bearing from raw
// accelerometer and magnetometer vectors and smooths it over the last three
// samples.
package heading

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"navcore/internal/geo"
)

// HistoryLen is the number of samples averaged.
const HistoryLen = 3

// History is a fixed ring of recent headings in degrees.
type History struct {
	slots [HistoryLen]int
	next  int
	n     int
}

// Push overwrites the oldest slot. The first push seeds every slot so the
// mean is not dragged toward zero while the ring warms up.
func (h *History) Push(deg int) {
	if h.n == 0 {
		for i := range h.slots {
			h.slots[i] = deg
		}
	}
	h.slots[h.next] = deg
	h.next = (h.next + 1) % HistoryLen
	if h.n < HistoryLen {
		h.n++
	}
}

// Mean is the integer mean of the slots modulo 360. It is a plain arithmetic
// mean, so samples straddling north (359, 1) average toward south.
func (h *History) Mean() int {
	sum := 0
	for _, v := range h.slots {
		sum += v
	}
	return (sum / HistoryLen) % 360
}

func (h *History) Len() int { return h.n }

// Filter owns the history and the magnetometer hard-iron offset.
type Filter struct {
	offset r3.Vec
	hist   History
	last   int
}

// NewFilter returns a filter that adds magOffset to every magnetometer
// sample before compensation.
func NewFilter(magOffset r3.Vec) *Filter {
	return &Filter{offset: magOffset}
}

// Update folds one sample into the history and returns the smoothed heading
// in [0,360). A degenerate sample (zero gravity vector, NaN from the pitch
// singularity) is skipped and the previous smoothed value returned.
//
// Near +/-90 degrees of pitch cos(pitch) approaches zero and the output
// swings wildly; that is inherent to the compensation formula.
func (f *Filter) Update(accel, mag r3.Vec) int {
	raw, ok := Raw(accel, r3.Add(mag, f.offset))
	if !ok {
		return f.last
	}
	f.hist.Push(raw)
	f.last = f.hist.Mean()
	return f.last
}

// Heading is the last smoothed value.
func (f *Filter) Heading() int { return f.last }

// Warm reports whether at least one sample has been accepted.
func (f *Filter) Warm() bool { return f.hist.Len() > 0 }

// Raw returns the single-sample tilt-compensated heading in [0,360).
func Raw(accel, mag r3.Vec) (int, bool) {
	if r3.Norm(accel) == 0 {
		return 0, false
	}
	a := r3.Unit(accel)

	pitch := math.Asin(-a.X)
	roll := math.Asin(a.Y / math.Cos(pitch))
	sp, cp := math.Sincos(pitch)
	sr, cr := math.Sincos(roll)

	xh := mag.X*cp + mag.Z*sp
	yh := mag.X*sr*sp + mag.Y*cr - mag.Z*sr*cp

	deg := 180 * math.Atan2(yh, xh) / math.Pi
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, false
	}
	return Normalize(int(deg)), true
}

// Normalize folds any integer angle into [0,360).
func Normalize(deg int) int { return geo.NormalizeDegrees(deg) }
