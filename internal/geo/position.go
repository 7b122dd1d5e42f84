// Package geo holds the fixed-point geographic position shared by the
// receiver, the route protocol and the map transform.
package geo

import (
	"fmt"
	"math"
)

// Scale is the number of fixed-point units per degree (1 unit = 1e-5 deg).
const Scale = 100000

const (
	// InvalidAngle marks a latitude or longitude the receiver never reported.
	InvalidAngle int32 = 999999999
	// InvalidAge marks a position with no known fix time.
	InvalidAge uint32 = 0xFFFFFFFF
)

// Position is a latitude/longitude pair in 1e-5 degree units plus the age of
// the fix in milliseconds.
type Position struct {
	Lat int32
	Lon int32
	Age uint32
}

// Invalid returns the sentinel position.
func Invalid() Position {
	return Position{Lat: InvalidAngle, Lon: InvalidAngle, Age: InvalidAge}
}

// Valid reports whether p may be rendered or used in distance math.
func (p Position) Valid() bool {
	return p.Lat != InvalidAngle && p.Lon != InvalidAngle
}

func FromDegrees(lat, lon float64) Position {
	return Position{
		Lat: int32(math.Round(lat * Scale)),
		Lon: int32(math.Round(lon * Scale)),
	}
}

func (p Position) Degrees() (lat, lon float64) {
	return float64(p.Lat) / Scale, float64(p.Lon) / Scale
}

// MovedBeyond reports whether p differs from o by more than threshold units
// in latitude or longitude. Invalid positions never count as movement.
func (p Position) MovedBeyond(o Position, threshold int32) bool {
	if !p.Valid() || !o.Valid() {
		return false
	}
	return absDiff(p.Lat, o.Lat) > int64(threshold) || absDiff(p.Lon, o.Lon) > int64(threshold)
}

func (p Position) String() string {
	if !p.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d %d", p.Lat, p.Lon)
}

func absDiff(a, b int32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}

// NormalizeDegrees folds any integer angle into [0,360).
func NormalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Bearing is the initial heading from a toward b on the flat fixed-point
// grid, flipped by 180 degrees for the device's forward-facing axis. The
// angle is truncated toward zero before folding into [0,360).
func Bearing(a, b Position) int {
	dLat := float64(int64(b.Lat) - int64(a.Lat))
	dLon := float64(int64(b.Lon) - int64(a.Lon))
	return NormalizeDegrees(int(math.Atan2(dLon, dLat)*180/math.Pi - 180))
}
