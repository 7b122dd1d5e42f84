// Package i2c is the sensor bus: register writes and timed register reads
// against 7-bit device addresses on a Linux /dev/i2c-* adapter.
package i2c

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a read does not complete within its deadline.
var ErrTimeout = errors.New("i2c: read timed out")

var now = time.Now

func checkAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	return nil
}

// finish maps a completed transfer onto the caller's deadline. A transfer
// that succeeded after the deadline still counts as a timeout.
func finish(start time.Time, timeout time.Duration, err error) error {
	if err != nil {
		if isTimeoutErr(err) {
			return ErrTimeout
		}
		return err
	}
	if timeout > 0 && now().Sub(start) > timeout {
		return ErrTimeout
	}
	return nil
}
