package console

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"navcore/internal/guidance"
)

// TickMsg runs one guidance loop iteration.
type TickMsg time.Time

// Controller is the part of guidance.Controller the console drives.
type Controller interface {
	Step(now time.Time)
	Snapshot() guidance.Snapshot
}

// shared is held by pointer so every copy of the value-receiver model sees
// the same keyboard and screen.
type shared struct {
	ctl    Controller
	kbd    *Keyboard
	screen *Screen
	onQuit func()
}

type Model struct {
	width, height int
	interval      time.Duration
	cols, rows    int

	sh *shared
}

type Options struct {
	// Interval between loop iterations.
	Interval time.Duration
	// Cols and Rows size the map panel in characters.
	Cols, Rows int
	// OnQuit runs once when the user quits.
	OnQuit func()
}

func New(ctl Controller, kbd *Keyboard, screen *Screen, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	if opts.Cols <= 0 {
		opts.Cols = 64
	}
	if opts.Rows <= 0 {
		opts.Rows = 32
	}
	return Model{
		interval: opts.Interval,
		cols:     opts.Cols,
		rows:     opts.Rows,
		sh:       &shared{ctl: ctl, kbd: kbd, screen: screen, onQuit: opts.OnQuit},
	}
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.sh.ctl.Step(time.Time(msg))
		return m, m.tickCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.sh.onQuit != nil {
			m.sh.onQuit()
			m.sh.onQuit = nil
		}
		return m, tea.Quit
	case "up", "k":
		m.sh.kbd.Move(0, -1)
	case "down", "j":
		m.sh.kbd.Move(0, 1)
	case "left", "h":
		m.sh.kbd.Move(-1, 0)
	case "right", "l":
		m.sh.kbd.Move(1, 0)
	case "enter", " ":
		m.sh.kbd.Select()
	case "+", "=":
		m.sh.kbd.Zoom(1)
	case "-", "_":
		m.sh.kbd.Zoom(-1)
	}
	return m, nil
}

func (m Model) View() string {
	f, n := m.sh.screen.Frame()
	if n == 0 {
		return "Starting navcore..."
	}
	header := renderHeader(f, m.sh.ctl.Snapshot())
	body := renderMap(f, m.cols, m.rows)
	footer := renderFooter(f, lipgloss.Width(body))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
