//go:build !linux

package i2c

import (
	"fmt"
	"time"
)

type Bus struct{}

func Open(path string) (*Bus, error) { return nil, fmt.Errorf("i2c: unsupported OS (need linux)") }

func (b *Bus) Close() error { return nil }

func (b *Bus) WriteRegister(addr uint16, reg, value byte) error {
	return fmt.Errorf("i2c: unsupported OS")
}

func (b *Bus) ReadRegisters(addr uint16, reg byte, count int, timeout time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("i2c: unsupported OS")
}

func isTimeoutErr(err error) bool { return false }
