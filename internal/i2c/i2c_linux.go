//go:build linux

package i2c

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Transfers use I2C_RDWR so a register select and its read share one
// repeated-start transaction.

const (
	i2cMrd     = 0x0001
	i2cTimeout = 0x0702
	i2cRdwr    = 0x0707
)

type msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened adapter such as /dev/i2c-1. Transfers are serialized.
type Bus struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	timeout time.Duration
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) WriteRegister(addr uint16, reg, value byte) error {
	if b == nil {
		return errors.New("i2c bus is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx(addr, []byte{reg, value}, nil)
}

// ReadRegisters reads count bytes starting at reg. A non-zero timeout bounds
// the transfer; exceeding it yields ErrTimeout.
func (b *Bus) ReadRegisters(addr uint16, reg byte, count int, timeout time.Duration) ([]byte, error) {
	if b == nil {
		return nil, errors.New("i2c bus is nil")
	}
	if count <= 0 {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if timeout > 0 && timeout != b.timeout {
		if err := b.setAdapterTimeout(timeout); err != nil {
			return nil, err
		}
	}
	dst := make([]byte, count)
	start := now()
	err := b.tx(addr, []byte{reg}, dst)
	if err := finish(start, timeout, err); err != nil {
		return nil, err
	}
	return dst, nil
}

// setAdapterTimeout programs the kernel adapter timeout (10ms units).
func (b *Bus) setAdapterTimeout(d time.Duration) error {
	if b.f == nil {
		return errors.New("i2c bus is closed")
	}
	ticks := d.Milliseconds() / 10
	if ticks < 1 {
		ticks = 1
	}
	if err := unix.IoctlSetInt(int(b.f.Fd()), i2cTimeout, int(ticks)); err != nil {
		return err
	}
	b.timeout = d
	return nil
}

func (b *Bus) tx(addr uint16, w, r []byte) error {
	if b.f == nil {
		return errors.New("i2c bus is closed")
	}
	if err := checkAddr(addr); err != nil {
		return err
	}

	msgs := make([]msg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, msg{addr: addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return errno
	}
	return nil
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, unix.ETIMEDOUT)
}
