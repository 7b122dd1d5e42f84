//go:build !linux

package fix

import "fmt"

type GPIOPin struct{}

func OpenPin(chip string, offset int) (*GPIOPin, error) {
	return nil, fmt.Errorf("fix: gpio unsupported on this platform")
}

func (p *GPIOPin) Value() (int, error) { return 0, fmt.Errorf("fix: gpio unsupported on this platform") }
func (p *GPIOPin) Close() error        { return nil }
