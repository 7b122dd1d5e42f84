//go:build linux

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenLine requests the named header GPIO as an output driven low. When chip
// is empty every /dev/gpiochip* is searched for a line called "GPIO<pin>".
func OpenLine(chip string, pin int) (*GPIOLine, error) {
	if pin < 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	if chip != "" {
		line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("navcore-led"))
		if err != nil {
			return nil, fmt.Errorf("indicator: request %s line %d: %w", chip, pin, err)
		}
		return &GPIOLine{line: line}, nil
	}

	lineName := fmt.Sprintf("GPIO%d", pin)
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		c, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := c.FindLine(lineName)
		if err != nil {
			_ = c.Close()
			continue
		}
		line, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("navcore-led"))
		if err != nil {
			_ = c.Close()
			continue
		}
		return &GPIOLine{chip: c, line: line}, nil
	}
	return nil, fmt.Errorf("indicator: gpio line %q not found (or busy)", lineName)
}

type GPIOLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *GPIOLine) SetValue(v int) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("indicator: gpio line not open")
	}
	return g.line.SetValue(v)
}

// Close drives the line low and releases it.
func (g *GPIOLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
