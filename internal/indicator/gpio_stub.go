//go:build !linux

package indicator

import "fmt"

type GPIOLine struct{}

func OpenLine(chip string, pin int) (*GPIOLine, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

func (g *GPIOLine) SetValue(int) error { return fmt.Errorf("indicator: gpio unsupported on this platform") }
func (g *GPIOLine) Close() error       { return nil }
