package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"navcore/internal/guidance"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type (
	resolveFunc func(network, address string) (*net.UDPAddr, error)
	dialFunc    func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
)

// UDPPublisher sends each snapshot as one JSON datagram, for a companion
// display on the same network.
type UDPPublisher struct {
	dest string
	conn udpConn
}

func NewUDPPublisher(dest string) (*UDPPublisher, error) {
	return newUDPPublisher(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newUDPPublisher(dest string, resolve resolveFunc, dial dialFunc) (*UDPPublisher, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolve %s: %w", dest, err)
	}
	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial udp %s: %w", dest, err)
	}
	return &UDPPublisher{dest: dest, conn: conn}, nil
}

func (u *UDPPublisher) Publish(s guidance.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}
	if _, err := u.conn.Write(payload); err != nil {
		return fmt.Errorf("telemetry: send %s: %w", u.dest, err)
	}
	return nil
}

func (u *UDPPublisher) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}

// Fanout publishes to every sink, reporting all failures.
type Fanout []guidance.Publisher

func (f Fanout) Publish(s guidance.Snapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
