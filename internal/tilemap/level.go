// Package tilemap maps fixed-point geographic positions onto the pixel space
// of a tiled map and manages the visible window and cursor over it.
package tilemap

import (
	"fmt"
	"math"

	"navcore/internal/geo"
)

// Level is one zoom step: a north-up map image covering a lat/lon box.
type Level struct {
	Index int

	// Bounding box in 1e-5 degree units.
	North, West, South, East int32

	// Extent of the whole level in pixels.
	Width, Height int

	// Tile size; the viewport never asks for tiles outside the extent.
	TileWidth, TileHeight int
}

func (l Level) Validate() error {
	if l.North <= l.South {
		return fmt.Errorf("tilemap: level %d north must be > south", l.Index)
	}
	if l.East <= l.West {
		return fmt.Errorf("tilemap: level %d east must be > west", l.Index)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("tilemap: level %d extent must be positive", l.Index)
	}
	if l.TileWidth <= 0 || l.TileHeight <= 0 {
		return fmt.Errorf("tilemap: level %d tile size must be positive", l.Index)
	}
	return nil
}

// DegreesPerPixel returns the fixed-point units covered by one pixel along
// latitude and longitude.
func (l Level) DegreesPerPixel() (lat, lon float64) {
	return float64(int64(l.North)-int64(l.South)) / float64(l.Height),
		float64(int64(l.East)-int64(l.West)) / float64(l.Width)
}

// GeoToMap returns pixel coordinates for lat/lon. x grows with longitude,
// y grows southward. Positions outside the box map outside the extent.
func (l Level) GeoToMap(lat, lon int32) (x, y int) {
	latPx, lonPx := l.DegreesPerPixel()
	x = int(math.Round(float64(int64(lon)-int64(l.West)) / lonPx))
	y = int(math.Round(float64(int64(l.North)-int64(lat)) / latPx))
	return x, y
}

// MapToGeo is the inverse of GeoToMap up to one pixel of quantization.
func (l Level) MapToGeo(x, y int) (lat, lon int32) {
	latPx, lonPx := l.DegreesPerPixel()
	lon = int32(int64(l.West) + int64(math.Round(float64(x)*lonPx)))
	lat = int32(int64(l.North) - int64(math.Round(float64(y)*latPx)))
	return lat, lon
}

// Contains reports whether the pixel lies within the level extent.
func (l Level) Contains(x, y int) bool {
	return x >= 0 && x < l.Width && y >= 0 && y < l.Height
}

// Covers reports whether p lies inside the level's bounding box.
func (l Level) Covers(p geo.Position) bool {
	return p.Valid() && p.Lat <= l.North && p.Lat >= l.South && p.Lon >= l.West && p.Lon <= l.East
}

// TilesFor lists the tile indices intersecting a pixel rectangle, clipped to
// the level extent.
func (l Level) TilesFor(v Viewport) []Tile {
	x0, y0 := clampInt(v.X, 0, l.Width-1), clampInt(v.Y, 0, l.Height-1)
	x1, y1 := clampInt(v.X+v.Width-1, 0, l.Width-1), clampInt(v.Y+v.Height-1, 0, l.Height-1)
	var out []Tile
	for ty := y0 / l.TileHeight; ty <= y1/l.TileHeight; ty++ {
		for tx := x0 / l.TileWidth; tx <= x1/l.TileWidth; tx++ {
			out = append(out, Tile{Level: l.Index, Col: tx, Row: ty})
		}
	}
	return out
}

type Tile struct {
	Level, Col, Row int
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
