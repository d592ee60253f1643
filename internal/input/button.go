// Package input turns a raw button line into debounced press events.
package input

import (
	"context"
	"time"

	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/system"
)

// Event is the result of one WaitForPress. Pressed is false when the timeout
// elapsed first, in which case HoldDuration is zero.
type Event struct {
	Pressed      bool
	HoldDuration time.Duration
}

// Button polls an input line at a fixed interval. Every poll feeds the
// watchdog, so the interval bounds the time between feeds while idle.
type Button struct {
	line      device.InputLine
	activeLow bool
	interval  time.Duration
	watchdog  device.Watchdog
	clock     system.Clock
}

type Option func(*Button)

func WithClock(c system.Clock) Option {
	return func(b *Button) { b.clock = c }
}

func WithWatchdog(w device.Watchdog) Option {
	return func(b *Button) { b.watchdog = w }
}

// NewButton polls line every interval. activeLow is set when a press pulls
// the line low.
func NewButton(line device.InputLine, activeLow bool, interval time.Duration, opts ...Option) *Button {
	b := &Button{
		line:      line,
		activeLow: activeLow,
		interval:  interval,
		watchdog:  device.NopWatchdog{},
		clock:     system.RealClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetInterval changes the polling interval used by later waits.
func (b *Button) SetInterval(d time.Duration) {
	b.interval = d
}

// Pressed reports whether the button is held right now.
func (b *Button) Pressed() bool {
	return b.line.Read() != b.activeLow
}

// WaitForPress blocks until the button is pressed and released and reports
// how long it was held. A positive timeout bounds the wait for the press
// only; once pressed, the hold is measured however long it lasts. ctx
// cancels the wait for the press and is ignored during the hold.
func (b *Button) WaitForPress(ctx context.Context, timeout time.Duration) (Event, error) {
	start := b.clock.Now()
	for !b.Pressed() {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		b.clock.Sleep(b.interval)
		b.watchdog.Feed()
		if timeout > 0 && b.clock.Now().Sub(start) >= timeout {
			return Event{}, nil
		}
	}

	return Event{Pressed: true, HoldDuration: b.WaitForRelease()}, nil
}

// WaitForRelease polls until the button is released and returns how long
// that took.
func (b *Button) WaitForRelease() time.Duration {
	start := b.clock.Now()
	for b.Pressed() {
		b.clock.Sleep(b.interval)
		b.watchdog.Feed()
	}
	return b.clock.Now().Sub(start)
}
