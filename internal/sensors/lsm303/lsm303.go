package lsm303

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"navcore/internal/i2c"
)

var sleep = time.Sleep

// Minimal LSM303DLH / LSM303DLHC driver: probe, enable, raw accel+mag reads.
// Values are left in raw counts; heading math only needs directions.

const (
	AccelAddrDLH  = 0x18
	AccelAddrDLHC = 0x19
	MagAddr       = 0x1E

	// Accelerometer.
	regCtrl1A = 0x20
	regCtrl4A = 0x23
	regOutXLA = 0x28
	autoIncr  = 0x80

	ctrl1Normal50Hz = 0x27 // normal power, 50 Hz, XYZ enabled

	// Magnetometer.
	regCRAM   = 0x00
	regCRBM   = 0x01
	regMRM    = 0x02
	regOutXHM = 0x03
	regIRAM   = 0x0A
	iraVal    = 0x48 // 'H'

	craRate30Hz    = 0x14
	crbGain47      = 0xA0 // +/-4.7 gauss
	mrContinuous   = 0x00
	defaultTimeout = 50 * time.Millisecond
)

// Variant selects the magnetometer output register order.
type Variant int

const (
	DLH Variant = iota
	DLHC
)

// ErrTimeout is the bus timeout; match with errors.Is.
var ErrTimeout = i2c.ErrTimeout

type Sample struct {
	Time  time.Time
	Accel r3.Vec
	Mag   r3.Vec
}

type regIO interface {
	WriteRegister(addr uint16, reg, value byte) error
	ReadRegisters(addr uint16, reg byte, count int, timeout time.Duration) ([]byte, error)
}

type Config struct {
	Variant   Variant
	AccelAddr uint16
	MagAddr   uint16
	// Timeout bounds each register read; zero uses 50ms.
	Timeout time.Duration
}

type Device struct {
	bus regIO
	cfg Config
}

func New(bus *i2c.Bus, cfg Config) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("lsm303: bus is nil")
	}
	return newWithIO(bus, cfg)
}

func newWithIO(bus regIO, cfg Config) (*Device, error) {
	if bus == nil {
		return nil, fmt.Errorf("lsm303: bus is nil")
	}
	if cfg.AccelAddr == 0 {
		cfg.AccelAddr = AccelAddrDLH
		if cfg.Variant == DLHC {
			cfg.AccelAddr = AccelAddrDLHC
		}
	}
	if cfg.MagAddr == 0 {
		cfg.MagAddr = MagAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	d := &Device{bus: bus, cfg: cfg}

	ira, err := bus.ReadRegisters(cfg.MagAddr, regIRAM, 1, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("lsm303: identity read failed: %w", err)
	}
	if ira[0] != iraVal {
		return nil, fmt.Errorf("lsm303: ira=0x%02X want 0x%02X", ira[0], iraVal)
	}

	if err := d.enable(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) enable() error {
	writes := []struct {
		addr     uint16
		reg, val byte
		what     string
	}{
		{d.cfg.AccelAddr, regCtrl1A, ctrl1Normal50Hz, "accel enable"},
		{d.cfg.AccelAddr, regCtrl4A, 0x00, "accel scale"},
		{d.cfg.MagAddr, regCRAM, craRate30Hz, "mag rate"},
		{d.cfg.MagAddr, regCRBM, crbGain47, "mag gain"},
		{d.cfg.MagAddr, regMRM, mrContinuous, "mag mode"},
	}
	for _, w := range writes {
		if err := d.bus.WriteRegister(w.addr, w.reg, w.val); err != nil {
			return fmt.Errorf("lsm303: %s failed: %w", w.what, err)
		}
	}
	// Let the first conversion land.
	sleep(20 * time.Millisecond)
	return nil
}

// Read returns one accel+mag sample. A slow bus yields an error matching
// ErrTimeout; callers keep their previous estimate in that case.
func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("lsm303: device is nil")
	}
	a, err := d.bus.ReadRegisters(d.cfg.AccelAddr, regOutXLA|autoIncr, 6, d.cfg.Timeout)
	if err != nil {
		return Sample{}, fmt.Errorf("lsm303: accel read: %w", err)
	}
	m, err := d.bus.ReadRegisters(d.cfg.MagAddr, regOutXHM, 6, d.cfg.Timeout)
	if err != nil {
		return Sample{}, fmt.Errorf("lsm303: mag read: %w", err)
	}
	if len(a) < 6 || len(m) < 6 {
		return Sample{}, fmt.Errorf("lsm303: short read accel=%d mag=%d bytes", len(a), len(m))
	}
	return Sample{
		Time:  time.Now(),
		Accel: decodeAccel(a),
		Mag:   decodeMag(m, d.cfg.Variant),
	}, nil
}

// decodeAccel: little-endian, left-justified 12-bit.
func decodeAccel(b []byte) r3.Vec {
	x := int16(uint16(b[1])<<8|uint16(b[0])) >> 4
	y := int16(uint16(b[3])<<8|uint16(b[2])) >> 4
	z := int16(uint16(b[5])<<8|uint16(b[4])) >> 4
	return r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
}

// decodeMag: big-endian; DLH orders X,Y,Z while DLHC orders X,Z,Y.
func decodeMag(b []byte, v Variant) r3.Vec {
	x := int16(uint16(b[0])<<8 | uint16(b[1]))
	p := int16(uint16(b[2])<<8 | uint16(b[3]))
	q := int16(uint16(b[4])<<8 | uint16(b[5]))
	if v == DLHC {
		return r3.Vec{X: float64(x), Y: float64(q), Z: float64(p)}
	}
	return r3.Vec{X: float64(x), Y: float64(p), Z: float64(q)}
}
