package serialport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

type fakePort struct {
	timeout    time.Duration
	timeoutErr error
	closed     bool
}

func (p *fakePort) Read(b []byte) (int, error)                          { return 0, nil }
func (p *fakePort) Write(b []byte) (int, error)                         { return len(b), nil }
func (p *fakePort) SetMode(mode *serial.Mode) error                      { return nil }
func (p *fakePort) Drain() error                                         { return nil }
func (p *fakePort) ResetInputBuffer() error                              { return nil }
func (p *fakePort) ResetOutputBuffer() error                             { return nil }
func (p *fakePort) SetDTR(dtr bool) error                                { return nil }
func (p *fakePort) SetRTS(rts bool) error                                { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakePort) Break(time.Duration) error                            { return nil }
func (p *fakePort) Close() error                                         { p.closed = true; return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return p.timeoutErr
}

func withOpen(t *testing.T, fn func(string, *serial.Mode) (serial.Port, error)) {
	t.Helper()
	prev := openFn
	openFn = fn
	t.Cleanup(func() { openFn = prev })
}

func TestNormalize_Defaults(t *testing.T) {
	got, err := Options{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := Options{BaudRate: DefaultBaud, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	cases := []struct {
		name string
		in   Options
		want string
	}{
		{name: "DataBits", in: Options{DataBits: 9}, want: "data bits"},
		{name: "StopBits", in: Options{StopBits: 3}, want: "stop bits"},
		{name: "Parity", in: Options{Parity: "mark"}, want: "parity"},
		{name: "Timeout", in: Options{ReadTimeout: -time.Second}, want: "read timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.in.Normalize()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want mention of %q", err, tc.want)
			}
		})
	}
}

func TestMode_MapsStopBitsAndParity(t *testing.T) {
	m, err := Options{BaudRate: 4800, StopBits: 2, Parity: "even"}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if m.BaudRate != 4800 || m.DataBits != 8 {
		t.Fatalf("mode=%+v", m)
	}
	if m.StopBits != serial.TwoStopBits {
		t.Fatalf("stop bits=%v want TwoStopBits", m.StopBits)
	}
	if m.Parity != serial.EvenParity {
		t.Fatalf("parity=%v want EvenParity", m.Parity)
	}

	m, err = Options{}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if m.StopBits != serial.OneStopBit || m.Parity != serial.NoParity {
		t.Fatalf("default mode=%+v", m)
	}
}

func TestOpen_AppliesReadTimeout(t *testing.T) {
	fp := &fakePort{}
	var gotPath string
	var gotMode *serial.Mode
	withOpen(t, func(path string, mode *serial.Mode) (serial.Port, error) {
		gotPath, gotMode = path, mode
		return fp, nil
	})

	p, err := Open(" /dev/ttyUSB0 ", Options{BaudRate: 9600, ReadTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p != fp {
		t.Fatalf("unexpected port")
	}
	if gotPath != "/dev/ttyUSB0" || gotMode.BaudRate != 9600 {
		t.Fatalf("path=%q mode=%+v", gotPath, gotMode)
	}
	if fp.timeout != 200*time.Millisecond {
		t.Fatalf("timeout=%v", fp.timeout)
	}
}

func TestOpen_ClosesWhenTimeoutFails(t *testing.T) {
	fp := &fakePort{timeoutErr: errors.New("einval")}
	withOpen(t, func(string, *serial.Mode) (serial.Port, error) { return fp, nil })

	if _, err := Open("/dev/ttyACM0", Options{ReadTimeout: time.Second}); err == nil {
		t.Fatalf("expected error")
	}
	if !fp.closed {
		t.Fatalf("port left open")
	}
}

func TestOpen_Errors(t *testing.T) {
	withOpen(t, func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	})
	if _, err := Open("", Options{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
	_, err := Open("/dev/ttyUSB9", Options{})
	if err == nil || !strings.Contains(err.Error(), "/dev/ttyUSB9") {
		t.Fatalf("err=%v", err)
	}
}
