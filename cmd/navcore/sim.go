package main

import (
	"context"
	"io"
	"log"
	"math"
	"net"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"navcore/internal/config"
	"navcore/internal/console"
	"navcore/internal/fix"
	"navcore/internal/gps"
	"navcore/internal/guidance"
	"navcore/internal/heading"
	"navcore/internal/indicator"
	"navcore/internal/path"
	"navcore/internal/sensors/lsm303"
)

func newSimCmd() *cobra.Command {
	var (
		logPath string
		steps   int
		turn    float64
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Drive the guidance loop from the keyboard with fake data",
		Long: `sim walks a fake receiver across the map, sweeps a fake compass, and
answers route requests with a built-in straight-line server. Arrow keys move
the cursor, enter selects the destination, +/- zoom, q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Log lines would tear the full-screen view.
			var logOut io.Writer = io.Discard
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}
			log.SetOutput(logOut)
			defer log.SetOutput(os.Stderr)

			rig, err := newSimRig(cfg, steps, turn)
			if err != nil {
				return err
			}
			defer rig.Close()

			model := console.New(rig.ctl, rig.kbd, rig.screen, console.Options{
				Interval: cfg.Guidance.LoopInterval,
				OnQuit:   rig.stopTicks,
			})
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "Append log output to this file")
	cmd.Flags().IntVar(&steps, "steps", 8, "Segments per simulated route")
	cmd.Flags().Float64Var(&turn, "turn", 10, "Simulated compass sweep in degrees per second")
	return cmd
}

// sweepSensor is a level compass whose heading turns at a fixed rate.
type sweepSensor struct {
	start  time.Time
	rate   float64
	offset r3.Vec
	now    func() time.Time
}

func (s *sweepSensor) Read() (lsm303.Sample, error) {
	t := s.now()
	deg := math.Mod(t.Sub(s.start).Seconds()*s.rate, 360)
	rad := deg * math.Pi / 180
	// The filter adds the hard-iron offset back.
	mag := r3.Sub(r3.Vec{X: 500 * math.Cos(rad), Y: 500 * math.Sin(rad)}, s.offset)
	return lsm303.Sample{Time: t, Accel: r3.Vec{Z: 1000}, Mag: mag}, nil
}

// memLine is an LED that only remembers its level.
type memLine struct{ v int }

func (l *memLine) SetValue(v int) error { l.v = v; return nil }

// simRig wires the guidance loop to fake peripherals.
type simRig struct {
	ctl    *guidance.Controller
	kbd    *console.Keyboard
	screen *console.Screen
	deb    *fix.Debouncer

	link, server net.Conn
	done         chan struct{}
	stopOnce     sync.Once
}

func newSimRig(cfg config.Config, steps int, turn float64) (*simRig, error) {
	nav, err := buildNavigator(cfg)
	if err != nil {
		return nil, err
	}

	// The fix line idles low while locked, so a constant level is a steady
	// lock.
	deb := fix.NewDebouncer(fix.ConstPin(0))
	deb.Tick()

	origin := nav.CursorPosition()
	track := gps.NewTrack(gps.Walk(origin, -20, 30, 600))

	offset := magOffset(cfg.Compass)
	compass := heading.NewCompass(&sweepSensor{start: time.Now(), rate: turn, offset: offset, now: time.Now}, heading.NewFilter(offset))

	dir, err := indicator.NewDirection(&memLine{}, &memLine{}, &memLine{})
	if err != nil {
		return nil, err
	}

	link, server := net.Pipe()
	rig := &simRig{
		kbd:    console.NewKeyboard(4),
		screen: &console.Screen{},
		deb:    deb,
		link:   link,
		server: server,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(rig.done)
		if err := (path.StraightLine{Steps: steps}).Serve(server); err != nil {
			log.Printf("sim path server stopped: %v", err)
		}
	}()

	client := path.NewClient(link, routeBudget(cfg.Link), path.ClientConfig{SafetyMargin: cfg.Link.SafetyMargin})
	ctl, err := guidance.New(guidanceConfig(cfg, true), guidance.Deps{
		Navigator: nav,
		Fix:       deb,
		Position:  track,
		Heading:   compass,
		Input:     rig.kbd,
		Client:    client,
		Indicator: dir,
		Display:   rig.screen,
		Asserter:  assertLogger{},
	})
	if err != nil {
		_ = rig.Close()
		return nil, err
	}
	rig.ctl = ctl

	if err := deb.Start(context.Background(), cfg.GPS.TickInterval); err != nil {
		_ = rig.Close()
		return nil, err
	}
	return rig, nil
}

func (r *simRig) stopTicks() { r.deb.Stop() }

func (r *simRig) Close() error {
	var err error
	r.stopOnce.Do(func() {
		r.deb.Stop()
		err = r.link.Close()
		_ = r.server.Close()
		<-r.done
	})
	return err
}

// assertLogger reports assertion failures without halting the simulator.
type assertLogger struct{}

func (assertLogger) Assert(ok bool, code int) {
	if !ok {
		log.Printf("sim assertion failure code=%d", code)
	}
}
