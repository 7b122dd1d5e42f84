// Package console is the terminal front end used by the simulator: a
// keyboard joystick feeding the guidance loop and a text rendering of its
// frames.
package console

import (
	"sync"

	"navcore/internal/guidance"
)

// Keyboard accumulates key presses between loop iterations. It satisfies
// guidance.Input.
type Keyboard struct {
	mu   sync.Mutex
	ev   guidance.Event
	step int // pixels per arrow press
}

func NewKeyboard(step int) *Keyboard {
	if step <= 0 {
		step = 1
	}
	return &Keyboard{step: step}
}

// Move records one arrow press in the given direction (-1, 0, 1 per axis).
func (k *Keyboard) Move(dirX, dirY int) {
	k.mu.Lock()
	k.ev.DX += dirX * k.step
	k.ev.DY += dirY * k.step
	k.mu.Unlock()
}

func (k *Keyboard) Select() {
	k.mu.Lock()
	k.ev.Select = true
	k.mu.Unlock()
}

func (k *Keyboard) Zoom(delta int) {
	k.mu.Lock()
	k.ev.Zoom += delta
	k.mu.Unlock()
}

// Read drains the pending event.
func (k *Keyboard) Read() guidance.Event {
	k.mu.Lock()
	defer k.mu.Unlock()
	ev := k.ev
	k.ev = guidance.Event{}
	return ev
}

// Screen keeps the latest frame. It satisfies guidance.Display.
type Screen struct {
	mu     sync.RWMutex
	frame  guidance.Frame
	frames uint64
	tiles  []string
}

func (s *Screen) Render(f guidance.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.frames++
	if f.Reload {
		s.tiles = s.tiles[:0]
		for _, t := range f.Tiles {
			s.tiles = append(s.tiles, tileName(t.Level, t.Col, t.Row))
		}
	}
}

func (s *Screen) Frame() (guidance.Frame, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.frames
}

// Tiles lists the tiles loaded by the last reload.
func (s *Screen) Tiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tiles...)
}
