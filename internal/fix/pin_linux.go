//go:build linux

package fix

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOPin is the fix input on a GPIO character device line.
type GPIOPin struct {
	line *gpiocdev.Line
}

func OpenPin(chip string, offset int) (*GPIOPin, error) {
	if offset < 0 {
		return nil, fmt.Errorf("fix: invalid gpio offset %d", offset)
	}
	if chip == "" {
		chip = "gpiochip0"
	}
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput, gpiocdev.WithConsumer("navcore-fix"))
	if err != nil {
		return nil, fmt.Errorf("fix: request %s line %d: %w", chip, offset, err)
	}
	return &GPIOPin{line: line}, nil
}

func (p *GPIOPin) Value() (int, error) {
	if p == nil || p.line == nil {
		return 0, fmt.Errorf("fix: pin not open")
	}
	return p.line.Value()
}

func (p *GPIOPin) Close() error {
	if p == nil || p.line == nil {
		return nil
	}
	err := p.line.Close()
	p.line = nil
	return err
}
