package console

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"navcore/internal/guidance"
	"navcore/internal/indicator"
	"navcore/internal/tilemap"
)

var (
	ColorBright = lipgloss.Color("#00FF41")
	ColorNormal = lipgloss.Color("#00AA22")
	ColorDim    = lipgloss.Color("#005511")
	ColorRoute  = lipgloss.Color("#33AAFF")
	ColorError  = lipgloss.Color("#FF3300")
	ColorWarn   = lipgloss.Color("#FFAA00")

	StyleTitle = lipgloss.NewStyle().
			Background(lipgloss.Color("#002200")).
			Foreground(ColorBright).
			Bold(true).
			Padding(0, 1)

	StyleMap = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNormal)

	StyleStatus = lipgloss.NewStyle().
			Background(lipgloss.Color("#004400")).
			Foreground(ColorBright).
			Bold(true)

	StyleFixLine = lipgloss.NewStyle().
			Foreground(ColorNormal)

	StyleNotice = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorDim)

	StyleCursor   = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	StylePosition = lipgloss.NewStyle().Foreground(ColorBright).Bold(true)
	StyleRoute    = lipgloss.NewStyle().Foreground(ColorRoute)
	StyleGrid     = lipgloss.NewStyle().Foreground(ColorDim)
)

const (
	glyphEmpty    = ' '
	glyphGrid     = '·'
	glyphRoute    = '*'
	glyphCursor   = '+'
	glyphPosition = '@'
)

// mapGrid rasterizes a frame into cols x rows cells. Each cell covers
// Viewport.Width/cols by Viewport.Height/rows pixels.
func mapGrid(f guidance.Frame, cols, rows int) [][]rune {
	grid := make([][]rune, rows)
	for r := range grid {
		grid[r] = make([]rune, cols)
		for c := range grid[r] {
			grid[r][c] = glyphEmpty
			if r%4 == 0 && c%8 == 0 {
				grid[r][c] = glyphGrid
			}
		}
	}
	v := f.Viewport
	if v.Width <= 0 || v.Height <= 0 {
		return grid
	}
	cell := func(p tilemap.Point) (int, int, bool) {
		c := p.X * cols / v.Width
		r := p.Y * rows / v.Height
		return c, r, p.X >= 0 && p.Y >= 0 && c < cols && r < rows
	}
	set := func(p tilemap.Point, g rune) {
		if c, r, ok := cell(p); ok {
			grid[r][c] = g
		}
	}

	for _, s := range f.Segments {
		dx, dy := s.To.X-s.From.X, s.To.Y-s.From.Y
		n := int(math.Max(math.Abs(float64(dx)), math.Abs(float64(dy))))
		if n == 0 {
			set(s.From, glyphRoute)
			continue
		}
		for i := 0; i <= n; i++ {
			set(tilemap.Point{X: s.From.X + dx*i/n, Y: s.From.Y + dy*i/n}, glyphRoute)
		}
	}
	if f.PositionVisible && (f.Heartbeat || len(f.Segments) == 0) {
		set(f.PositionScreen, glyphPosition)
	}
	set(f.Cursor, glyphCursor)
	return grid
}

func renderMap(f guidance.Frame, cols, rows int) string {
	grid := mapGrid(f, cols, rows)
	var b strings.Builder
	for r, line := range grid {
		for _, g := range line {
			s := string(g)
			switch g {
			case glyphCursor:
				s = StyleCursor.Render(s)
			case glyphPosition:
				s = StylePosition.Render(s)
			case glyphRoute:
				s = StyleRoute.Render(s)
			case glyphGrid:
				s = StyleGrid.Render(s)
			}
			b.WriteString(s)
		}
		if r < len(grid)-1 {
			b.WriteByte('\n')
		}
	}
	return StyleMap.Render(b.String())
}

func renderHeader(f guidance.Frame, s guidance.Snapshot) string {
	parts := []string{
		"navcore sim",
		fmt.Sprintf("level %d", f.Level),
		fmt.Sprintf("heading %3d°", f.Heading),
	}
	if f.HasBearing {
		parts = append(parts, fmt.Sprintf("steer %3d° %s", f.BearingError, arrow(f.BearingError)))
	}
	if s.HasRoute {
		parts = append(parts, fmt.Sprintf("route %d pts", s.RouteLength))
	}
	parts = append(parts, fmt.Sprintf("queries %d", s.Queries))
	return StyleTitle.Render(strings.Join(parts, "  "))
}

func renderFooter(f guidance.Frame, width int) string {
	status := StyleStatus.Width(width).Render(f.Status)
	fixStyle := StyleFixLine
	switch f.FixLine {
	case guidance.NoticePathError, guidance.NoticeNoFix:
		fixStyle = StyleNotice
	}
	help := StyleHelp.Render("arrows/hjkl move · enter select · +/- zoom · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, status, fixStyle.Render(f.FixLine), help)
}

// arrow is the eight-way direction the indicator LEDs encode for a bearing
// error, relative to straight ahead.
func arrow(bearingError int) string {
	arrows := [...]string{"↑", "↗", "→", "↘", "↓", "↙", "←", "↖"}
	return arrows[indicator.Index(bearingError)]
}

func tileName(level, col, row int) string {
	return fmt.Sprintf("%d/%d_%d", level, col, row)
}
