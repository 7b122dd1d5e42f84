// Package indicator drives the three-LED direction display and the status
// LED used to signal a fatal halt.
package indicator

import (
	"errors"
	"fmt"

	"navcore/internal/geo"
)

// Line is one digital output. gpiocdev lines satisfy it.
type Line interface {
	SetValue(int) error
}

// Index maps a bearing error to the 3-bit pattern shown on the LEDs: one step
// per 45 degrees.
func Index(bearingError int) int {
	return (geo.NormalizeDegrees(bearingError) / 45) % 8
}

// Direction shows a bearing error as a binary index on three LEDs, lowest
// bit first.
type Direction struct {
	lines [3]Line
	last  int
}

func NewDirection(bit0, bit1, bit2 Line) (*Direction, error) {
	if bit0 == nil || bit1 == nil || bit2 == nil {
		return nil, fmt.Errorf("indicator: three lines are required")
	}
	return &Direction{lines: [3]Line{bit0, bit1, bit2}, last: -1}, nil
}

// Show lights the pattern for bearingError. Every line is written on every
// call so LEDs outside the pattern are driven off.
func (d *Direction) Show(bearingError int) error {
	idx := Index(bearingError)
	var errs []error
	for bit, l := range d.lines {
		v := 0
		if idx&(1<<bit) != 0 {
			v = 1
		}
		if err := l.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("indicator: bit %d: %w", bit, err))
		}
	}
	d.last = idx
	return errors.Join(errs...)
}

// Off turns all three LEDs off.
func (d *Direction) Off() error {
	var errs []error
	for _, l := range d.lines {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, err)
		}
	}
	d.last = -1
	return errors.Join(errs...)
}

// Last is the index most recently shown, or -1.
func (d *Direction) Last() int { return d.last }
