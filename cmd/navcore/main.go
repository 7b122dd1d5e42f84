package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"navcore/internal/config"
	"navcore/internal/geo"
	"navcore/internal/path"
)

var flagConfig string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "navcore",
		Short: "Handheld GPS guidance core",
		Long: `navcore steers a handheld unit toward a destination picked on a tiled map.
It reads a GPS receiver and a tilt-compensated compass, asks a routing server
for a path over a serial or TCP link, and shows the direction on three LEDs.

Use "navcore sim" to drive the same loop from the keyboard without hardware.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (built-in defaults when empty)")
	root.AddCommand(newRunCmd(), newSimCmd(), newRouteCmd(), newServeCmd())
	return root
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the guidance loop on device hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openDevice(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			log.Printf("navcore starting link=%s", cfg.Link.Mode)
			err = rt.ctl.Run(ctx, cfg.Guidance.LoopInterval)
			log.Printf("navcore stopping")
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route START_LAT START_LON END_LAT END_LON",
		Short: "Request one route from the routing server and print it",
		Long: `Coordinates are decimal degrees, or fixed-point 1e-5 degree integers
when every argument is an integer. Put -- before the coordinates when any
is negative.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRouteArgs(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			link, err := path.Dial(ctx, linkConfig(cfg.Link))
			if err != nil {
				return err
			}
			defer link.Close()

			client := path.NewClient(link, routeBudget(cfg.Link), path.ClientConfig{SafetyMargin: cfg.Link.SafetyMargin})
			r, err := client.Query(start, end)
			if err != nil {
				return fmt.Errorf("route query failed (code %d): %w", path.ErrorCode(err), err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "points=%d", r.Length)
			if r.HasBearing {
				fmt.Fprintf(out, " bearing=%d", r.TargetBearing)
			}
			fmt.Fprintln(out)
			for _, p := range r.Points {
				fmt.Fprintln(out, p.String())
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		addr  string
		steps int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a straight-line routing server for bench testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return path.StraightLine{Steps: steps}.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7000", "TCP listen address")
	cmd.Flags().IntVar(&steps, "steps", 8, "Segments per route")
	return cmd
}

// parseRouteArgs accepts four decimal-degree values, or four fixed-point
// integers.
func parseRouteArgs(args []string) (start, end geo.Position, err error) {
	if len(args) != 4 {
		return start, end, fmt.Errorf("want 4 coordinates, got %d", len(args))
	}
	fixed := true
	for _, a := range args {
		if _, err := strconv.ParseInt(a, 10, 32); err != nil {
			fixed = false
			break
		}
	}
	vals := make([]float64, 4)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return start, end, fmt.Errorf("coordinate %d: %w", i+1, err)
		}
		vals[i] = v
	}
	if fixed {
		return geo.Position{Lat: int32(vals[0]), Lon: int32(vals[1])},
			geo.Position{Lat: int32(vals[2]), Lon: int32(vals[3])}, nil
	}
	for i, v := range vals {
		limit := 90.0
		if i%2 == 1 {
			limit = 180
		}
		if v < -limit || v > limit {
			return start, end, fmt.Errorf("coordinate %d out of range: %v", i+1, v)
		}
	}
	return geo.FromDegrees(vals[0], vals[1]), geo.FromDegrees(vals[2], vals[3]), nil
}
