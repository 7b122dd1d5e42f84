package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"navcore/internal/config"
	"navcore/internal/fix"
	"navcore/internal/geo"
	"navcore/internal/gps"
	"navcore/internal/guidance"
	"navcore/internal/heading"
	"navcore/internal/i2c"
	"navcore/internal/indicator"
	"navcore/internal/path"
	"navcore/internal/sensors/lsm303"
	"navcore/internal/serialport"
	"navcore/internal/telemetry"
	"navcore/internal/tilemap"
)

func buildLevels(m config.MapConfig) []tilemap.Level {
	out := make([]tilemap.Level, 0, len(m.Levels))
	for i, l := range m.Levels {
		out = append(out, tilemap.Level{
			Index:      i,
			North:      l.North,
			West:       l.West,
			South:      l.South,
			East:       l.East,
			Width:      l.Width,
			Height:     l.Height,
			TileWidth:  l.TileWidth,
			TileHeight: l.TileHeight,
		})
	}
	return out
}

func buildNavigator(cfg config.Config) (*tilemap.Navigator, error) {
	nav, err := tilemap.NewNavigator(buildLevels(cfg.Map), cfg.Map.StartLevel, cfg.Display.Width, cfg.Display.Height, tilemap.Config{
		Margin: cfg.Guidance.ScrollMargin,
		Delta:  cfg.Guidance.ScrollDelta,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Map.StartLat != 0 || cfg.Map.StartLon != 0 {
		p := geo.Position{Lat: cfg.Map.StartLat, Lon: cfg.Map.StartLon}
		if !nav.Level().Covers(p) {
			return nil, fmt.Errorf("map start %s is outside level %d", p, cfg.Map.StartLevel)
		}
		if err := nav.CenterOn(p); err != nil {
			return nil, err
		}
	}
	return nav, nil
}

func linkConfig(l config.LinkConfig) path.LinkConfig {
	return path.LinkConfig{
		Mode:   l.Mode,
		Device: l.Device,
		Serial: serialport.Options{
			BaudRate: l.Baud,
			DataBits: l.DataBits,
			StopBits: l.StopBits,
			Parity:   l.Parity,
		},
		Addr:        l.Addr,
		DialTimeout: l.DialTimeout,
	}
}

func routeBudget(l config.LinkConfig) path.MemoryBudget {
	return path.RuntimeBudget{Ceiling: l.MemoryBudget}
}

func guidanceConfig(cfg config.Config, simulated bool) guidance.Config {
	return guidance.Config{
		MoveThreshold:   cfg.Guidance.MoveThreshold,
		RequeryInterval: cfg.Guidance.RequeryInterval,
		Simulated:       simulated,
	}
}

func magOffset(c config.CompassConfig) r3.Vec {
	if c.MagOffset == nil {
		return r3.Vec{}
	}
	return r3.Vec{X: c.MagOffset.X, Y: c.MagOffset.Y, Z: c.MagOffset.Z}
}

// telemetryPublishers opens the enabled sinks. The returned publisher is nil
// when telemetry is off.
func telemetryPublishers(c config.TelemetryConfig) (guidance.Publisher, []func() error, error) {
	if !c.Enable {
		return nil, nil, nil
	}
	var (
		sinks   telemetry.Fanout
		closers []func() error
	)
	if c.Broker != "" {
		pub, err := telemetry.Dial(telemetry.Config{
			Enable:   c.Enable,
			Broker:   c.Broker,
			Topic:    c.Topic,
			ClientID: c.ClientID,
			Retain:   c.Retain,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}
	if c.UDPDest != "" {
		u, err := telemetry.NewUDPPublisher(c.UDPDest)
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		sinks = append(sinks, u)
		closers = append(closers, u.Close)
	}
	if len(sinks) == 1 {
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}

// offHeading stands in when the compass is disabled.
type offHeading struct{}

func (offHeading) Poll() (int, bool) { return 0, false }

// idleInput is the input collaborator until a joystick driver exists.
type idleInput struct{}

func (idleInput) Read() guidance.Event { return guidance.Event{} }

// deviceRuntime owns the hardware collaborators of "navcore run".
type deviceRuntime struct {
	ctl     *guidance.Controller
	closers []func() error
}

func (rt *deviceRuntime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (rt *deviceRuntime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// openDevice acquires every collaborator of the device loop. On failure the
// resources opened so far are released before the error is returned.
func openDevice(ctx context.Context, cfg config.Config) (*deviceRuntime, error) {
	rt := &deviceRuntime{}
	ctl, err := rt.open(ctx, cfg)
	if err != nil {
		if cerr := rt.Close(); cerr != nil {
			log.Printf("navcore cleanup after failed start: %v", cerr)
		}
		return nil, err
	}
	rt.ctl = ctl
	return rt, nil
}

func (rt *deviceRuntime) open(ctx context.Context, cfg config.Config) (*guidance.Controller, error) {
	nav, err := buildNavigator(cfg)
	if err != nil {
		return nil, err
	}

	// Fix debouncer.
	pin, err := fix.OpenPin(cfg.GPS.FixChip, cfg.GPS.FixPin)
	if err != nil {
		return nil, err
	}
	rt.onClose(pin.Close)
	deb := fix.NewDebouncer(pin)
	if err := deb.Start(ctx, cfg.GPS.TickInterval); err != nil {
		return nil, err
	}
	rt.onClose(func() error { deb.Stop(); return nil })

	// Receiver.
	var position guidance.PositionSource
	if cfg.GPS.Enable {
		svc := gps.New(gps.Config{Enable: true, Device: cfg.GPS.Device, Baud: cfg.GPS.Baud})
		if err := svc.Start(ctx); err != nil {
			return nil, err
		}
		rt.onClose(func() error { svc.Close(); return nil })
		position = svc
	} else {
		log.Printf("gps disabled; position stays invalid")
		position = gps.NewTrack(nil)
	}

	// Compass.
	var hdg guidance.HeadingSource = offHeading{}
	if cfg.Compass.Enable {
		bus, err := i2c.Open(fmt.Sprintf("/dev/i2c-%d", cfg.Compass.I2CBus))
		if err != nil {
			return nil, err
		}
		rt.onClose(bus.Close)
		variant := lsm303.DLH
		if cfg.Compass.Variant == "dlhc" {
			variant = lsm303.DLHC
		}
		dev, err := lsm303.New(bus, lsm303.Config{
			Variant:   variant,
			AccelAddr: cfg.Compass.AccelAddr,
			MagAddr:   cfg.Compass.MagAddr,
			Timeout:   cfg.Compass.ReadTimeout,
		})
		if err != nil {
			return nil, err
		}
		hdg = heading.NewCompass(dev, heading.NewFilter(magOffset(cfg.Compass)))
	}

	// Routing link.
	link, err := path.Dial(ctx, linkConfig(cfg.Link))
	if err != nil {
		return nil, err
	}
	rt.onClose(link.Close)
	client := path.NewClient(link, routeBudget(cfg.Link), path.ClientConfig{SafetyMargin: cfg.Link.SafetyMargin})

	deps := guidance.Deps{
		Navigator: nav,
		Fix:       deb,
		Position:  position,
		Heading:   hdg,
		Input:     idleInput{},
		Client:    client,
	}

	// Direction LEDs and the halt status LED.
	if cfg.Indicator.Enable {
		var lines [3]indicator.Line
		for i, pinNo := range cfg.Indicator.Lines {
			l, err := indicator.OpenLine(cfg.Indicator.Chip, pinNo)
			if err != nil {
				return nil, err
			}
			rt.onClose(l.Close)
			lines[i] = l
		}
		dir, err := indicator.NewDirection(lines[0], lines[1], lines[2])
		if err != nil {
			return nil, err
		}
		rt.onClose(dir.Off)
		deps.Indicator = dir

		status, err := indicator.OpenLine(cfg.Indicator.Chip, cfg.Indicator.StatusLine)
		if err != nil {
			return nil, err
		}
		rt.onClose(status.Close)
		deps.Asserter = &indicator.Halter{Status: status, Stop: deb.Stop}
	}

	pub, closers, err := telemetryPublishers(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	for _, fn := range closers {
		rt.onClose(fn)
	}
	deps.Publisher = pub

	return guidance.New(guidanceConfig(cfg, false), deps)
}
