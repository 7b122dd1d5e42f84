// Package serialport opens byte-stream serial devices (GPS receiver, routing
// server link) with normalized line settings.
package serialport

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Options describes the line settings used when opening a port.
type Options struct {
	BaudRate int    `yaml:"baud" json:"baud"`
	DataBits int    `yaml:"data_bits" json:"data_bits"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits"`
	Parity   string `yaml:"parity" json:"parity"`

	// ReadTimeout bounds a single Read call. Zero blocks until data arrives.
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

const DefaultBaud = 9600

// Normalize validates the options and fills defaults for unset values.
func (o Options) Normalize() (Options, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaud
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("serialport: invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("serialport: invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}
	if opts.ReadTimeout < 0 {
		return opts, fmt.Errorf("serialport: read timeout must be >= 0")
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("serialport: unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity
	return opts, nil
}

// Mode converts the options into the go.bug.st/serial mode.
func (o Options) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}

	// serial.StopBits is an enum, not a count.
	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// Port is the subset of serial.Port the rest of the module uses.
type Port interface {
	io.ReadWriteCloser
}

var openFn = func(path string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(path, mode)
}

// Open opens the device at path with the given options.
func Open(path string, opts Options) (Port, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("serialport: device path is required")
	}
	n, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := n.Mode()
	if err != nil {
		return nil, err
	}
	p, err := openFn(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}
	if n.ReadTimeout > 0 {
		if err := p.SetReadTimeout(n.ReadTimeout); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("serialport: set read timeout on %s: %w", path, err)
		}
	}
	return p, nil
}

// Candidates lists the device paths probed when no device is configured.
func Candidates() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialport: list ports: %w", err)
	}
	var out []string
	for _, p := range ports {
		if strings.HasPrefix(p, "/dev/ttyACM") || strings.HasPrefix(p, "/dev/ttyUSB") {
			out = append(out, p)
		}
	}
	return out, nil
}
