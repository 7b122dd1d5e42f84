// Package fix turns the receiver's 2D/3D fix pin into a debounced lock state.
//
// The pin is sampled from a dedicated tick goroutine that plays the role of
// the hardware timer interrupt. It does nothing but sample, compare and post;
// the receiver and compass are never touched from it.
package fix

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pin is the fix-indicator input. gpiocdev lines satisfy it.
type Pin interface {
	Value() (int, error)
}

// State is published once per tick.
type State struct {
	Locked bool
	Raw    bool
	// Heartbeat flips on every tick.
	Heartbeat bool
	Ticks     uint64
	ReadErrs  uint64
}

type Debouncer struct {
	pin Pin

	// Owned by Tick.
	prevRaw   bool
	heartbeat bool
	ticks     uint64
	readErrs  uint64

	box *Mailbox[State]

	// Owned by the main loop.
	cur State

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDebouncer(pin Pin) *Debouncer {
	// The input latch powers up high.
	return &Debouncer{pin: pin, prevRaw: true, box: NewMailbox[State]()}
}

// Tick samples the pin once.
//
// Two identical consecutive samples count as a lock; the device idles low on
// both samples while it holds a fix. Any change between samples clears the
// lock. A failed read clears the lock without disturbing the previous sample.
func (d *Debouncer) Tick() {
	d.ticks++
	d.heartbeat = !d.heartbeat

	locked := false
	raw := d.prevRaw
	v, err := d.pin.Value()
	if err != nil {
		d.readErrs++
	} else {
		raw = v != 0
		locked = raw == d.prevRaw
		d.prevRaw = raw
	}

	d.box.Post(State{
		Locked:    locked,
		Raw:       raw,
		Heartbeat: d.heartbeat,
		Ticks:     d.ticks,
		ReadErrs:  d.readErrs,
	})
}

// Poll returns the latest published state. Main loop only.
func (d *Debouncer) Poll() State {
	if st, ok := d.box.Take(); ok {
		d.cur = st
	}
	return d.cur
}

// Start runs Tick every interval until Stop or ctx is done.
func (d *Debouncer) Start(ctx context.Context, interval time.Duration) error {
	if d == nil {
		return fmt.Errorf("fix: debouncer is nil")
	}
	if interval <= 0 {
		return fmt.Errorf("fix: tick interval must be > 0")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-childCtx.Done():
				return
			case <-t.C:
				d.Tick()
			}
		}
	}()
	return nil
}

// Stop halts ticking and waits for the tick goroutine to exit.
func (d *Debouncer) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// ConstPin reports a fixed level. Used by the simulator.
type ConstPin int

func (p ConstPin) Value() (int, error) { return int(p), nil }
