package path

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"navcore/internal/serialport"
)

// LinkConfig selects the byte stream to the routing server.
type LinkConfig struct {
	// Mode is "serial" (default) or "tcp".
	Mode string

	Device string
	Serial serialport.Options

	Addr        string
	DialTimeout time.Duration
}

var (
	openSerial = serialport.Open
	dialTCP    = func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		return d.DialContext(ctx, "tcp", addr)
	}
)

// Dial opens the link. Reads on the returned stream block until a full
// response is available; the protocol has no read deadline.
func Dial(ctx context.Context, cfg LinkConfig) (io.ReadWriteCloser, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case "", "serial":
		opts := cfg.Serial
		// A read timeout would surface as empty reads mid-response.
		opts.ReadTimeout = 0
		p, err := openSerial(cfg.Device, opts)
		if err != nil {
			return nil, fmt.Errorf("path: link: %w", err)
		}
		return p, nil
	case "tcp":
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("path: link: tcp address is required")
		}
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c, err := dialTCP(ctx, cfg.Addr, timeout)
		if err != nil {
			return nil, fmt.Errorf("path: link: dial %s: %w", cfg.Addr, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("path: link: unsupported mode %q", cfg.Mode)
	}
}
