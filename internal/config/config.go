package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS       GPSConfig       `yaml:"gps"`
	Compass   CompassConfig   `yaml:"compass"`
	Map       MapConfig       `yaml:"map"`
	Display   DisplayConfig   `yaml:"display"`
	Guidance  GuidanceConfig  `yaml:"guidance"`
	Link      LinkConfig      `yaml:"link"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`
	// Device is the NMEA serial port; empty auto-detects.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	FixChip      string        `yaml:"fix_chip"`
	FixPin       int           `yaml:"fix_pin"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type CompassConfig struct {
	Enable      bool          `yaml:"enable"`
	I2CBus      int           `yaml:"i2c_bus"`
	Variant     string        `yaml:"variant"`
	AccelAddr   uint16        `yaml:"accel_addr"`
	MagAddr     uint16        `yaml:"mag_addr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	MagOffset   *Vec3         `yaml:"mag_offset"`
}

type LevelConfig struct {
	North      int32 `yaml:"north"`
	West       int32 `yaml:"west"`
	South      int32 `yaml:"south"`
	East       int32 `yaml:"east"`
	Width      int   `yaml:"width"`
	Height     int   `yaml:"height"`
	TileWidth  int   `yaml:"tile_width"`
	TileHeight int   `yaml:"tile_height"`
}

type MapConfig struct {
	Levels     []LevelConfig `yaml:"levels"`
	StartLevel int           `yaml:"start_level"`
	// Initial cursor position, fixed-point. Zero selects the centre of the
	// start level.
	StartLat int32 `yaml:"start_lat"`
	StartLon int32 `yaml:"start_lon"`
}

type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type GuidanceConfig struct {
	ScrollMargin    int           `yaml:"scroll_margin"`
	ScrollDelta     int           `yaml:"scroll_delta"`
	MoveThreshold   int32         `yaml:"move_threshold"`
	RequeryInterval time.Duration `yaml:"requery_interval"`
	LoopInterval    time.Duration `yaml:"loop_interval"`
}

type LinkConfig struct {
	Mode     string `yaml:"mode"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`

	Addr        string        `yaml:"addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	SafetyMargin int `yaml:"safety_margin"`
	// MemoryBudget caps the bytes a route may occupy; zero derives it from
	// the runtime.
	MemoryBudget int `yaml:"memory_budget"`
}

type IndicatorConfig struct {
	Enable     bool   `yaml:"enable"`
	Chip       string `yaml:"chip"`
	Lines      []int  `yaml:"lines"`
	StatusLine int    `yaml:"status_line"`
}

type TelemetryConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Retain   bool   `yaml:"retain"`
	// UDPDest additionally sends each snapshot as a JSON datagram.
	UDPDest string `yaml:"udp_dest"`
}

// DefaultLevels covers a 1x1 degree box at two zoom steps. Used when
// map.levels is absent.
func DefaultLevels() []LevelConfig {
	box := LevelConfig{North: 5400000, South: 5300000, West: -11400000, East: -11300000, TileWidth: 256, TileHeight: 256}
	l0, l1 := box, box
	l0.Width, l0.Height = 1024, 1024
	l1.Width, l1.Height = 4096, 4096
	return []LevelConfig{l0, l1}
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown fields, then applies defaults and
// validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			msgs := stripLinePrefix(te.Errors)
			if strings.Contains(msgs[0], "not found in type") {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
			}
			return Config{}, fmt.Errorf("config contains invalid values: %s", strings.Join(msgs, "; "))
		}
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration of an empty file.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func stripLinePrefix(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if i := strings.Index(e, ": "); strings.HasPrefix(e, "line ") && i > 0 {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}

func (cfg *Config) applyDefaults() error {
	// GPS.
	if cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 4800
	}
	if cfg.GPS.FixChip == "" {
		cfg.GPS.FixChip = "gpiochip0"
	}
	if cfg.GPS.FixPin == 0 {
		cfg.GPS.FixPin = 11
	}
	if cfg.GPS.FixPin < 0 {
		return fmt.Errorf("gps.fix_pin must be >= 0")
	}
	if cfg.GPS.TickInterval <= 0 {
		cfg.GPS.TickInterval = 1 * time.Second
	}

	// Compass.
	if cfg.Compass.I2CBus < 0 {
		return fmt.Errorf("compass.i2c_bus must be >= 0")
	}
	if cfg.Compass.I2CBus == 0 {
		cfg.Compass.I2CBus = 1
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Compass.Variant)) {
	case "", "dlh":
		cfg.Compass.Variant = "dlh"
	case "dlhc":
		cfg.Compass.Variant = "dlhc"
	default:
		return fmt.Errorf("compass.variant must be 'dlh' or 'dlhc'")
	}
	if cfg.Compass.ReadTimeout <= 0 {
		cfg.Compass.ReadTimeout = 50 * time.Millisecond
	}
	if cfg.Compass.MagOffset == nil {
		cfg.Compass.MagOffset = &Vec3{X: 105, Y: -115}
	}

	// Map.
	if len(cfg.Map.Levels) == 0 {
		cfg.Map.Levels = DefaultLevels()
	}
	for i, l := range cfg.Map.Levels {
		if l.North <= l.South {
			return fmt.Errorf("map.levels[%d].north must be > south", i)
		}
		if l.East <= l.West {
			return fmt.Errorf("map.levels[%d].east must be > west", i)
		}
		if l.Width <= 0 || l.Height <= 0 {
			return fmt.Errorf("map.levels[%d].width and height must be > 0", i)
		}
		if l.TileWidth <= 0 {
			cfg.Map.Levels[i].TileWidth = 256
		}
		if l.TileHeight <= 0 {
			cfg.Map.Levels[i].TileHeight = 256
		}
	}
	if cfg.Map.StartLevel < 0 || cfg.Map.StartLevel >= len(cfg.Map.Levels) {
		return fmt.Errorf("map.start_level must be within map.levels")
	}

	// Display.
	if cfg.Display.Width <= 0 {
		cfg.Display.Width = 128
	}
	if cfg.Display.Height <= 0 {
		cfg.Display.Height = 128
	}

	// Guidance.
	g := &cfg.Guidance
	if g.ScrollMargin <= 0 {
		g.ScrollMargin = 10
	}
	if g.ScrollDelta <= 0 {
		g.ScrollDelta = 64
	}
	if 2*g.ScrollMargin >= cfg.Display.Width || 2*g.ScrollMargin >= cfg.Display.Height {
		return fmt.Errorf("guidance.scroll_margin must be less than half the display")
	}
	if g.MoveThreshold <= 0 {
		g.MoveThreshold = 5
	}
	if g.RequeryInterval <= 0 {
		g.RequeryInterval = 5 * time.Second
	}
	if g.LoopInterval <= 0 {
		g.LoopInterval = 50 * time.Millisecond
	}

	// Link.
	l := &cfg.Link
	l.Mode = strings.ToLower(strings.TrimSpace(l.Mode))
	switch l.Mode {
	case "":
		l.Mode = "serial"
	case "serial", "tcp":
	default:
		return fmt.Errorf("link.mode must be 'serial' or 'tcp'")
	}
	if l.Baud <= 0 {
		l.Baud = 9600
	}
	if l.DialTimeout <= 0 {
		l.DialTimeout = 5 * time.Second
	}
	if l.SafetyMargin <= 0 {
		l.SafetyMargin = 256
	}
	if l.MemoryBudget < 0 {
		return fmt.Errorf("link.memory_budget must be >= 0")
	}

	// Indicator.
	if cfg.Indicator.Chip == "" {
		cfg.Indicator.Chip = "gpiochip0"
	}
	if len(cfg.Indicator.Lines) == 0 {
		cfg.Indicator.Lines = []int{22, 23, 24}
	}
	if len(cfg.Indicator.Lines) != 3 {
		return fmt.Errorf("indicator.lines must list exactly 3 pins")
	}
	if cfg.Indicator.StatusLine == 0 {
		cfg.Indicator.StatusLine = 13
	}

	// Telemetry.
	t := &cfg.Telemetry
	if t.Topic == "" {
		t.Topic = "navcore/guidance"
	}
	if t.ClientID == "" {
		t.ClientID = "navcore"
	}
	if t.Enable && t.Broker == "" && t.UDPDest == "" {
		return fmt.Errorf("telemetry.broker or telemetry.udp_dest is required when telemetry.enable is true")
	}
	return nil
}

// Validate checks the settings the hardware run needs beyond the defaults.
func (cfg Config) Validate() error {
	switch cfg.Link.Mode {
	case "serial":
		if cfg.Link.Device == "" {
			return fmt.Errorf("link.device is required when link.mode is 'serial'")
		}
	case "tcp":
		if cfg.Link.Addr == "" {
			return fmt.Errorf("link.addr is required when link.mode is 'tcp'")
		}
	}
	return nil
}
