package mock

import (
	"sync"
	"time"
)

type press struct {
	at   time.Time
	hold time.Duration
}

// Line is a scripted input line. Presses are scheduled against Clock and the
// line reads active during [at, at+hold).
type Line struct {
	Clock     *Clock
	ActiveLow bool

	mu      sync.Mutex
	presses []press
	reads   int
}

// NewLine returns an idle line driven by clock.
func NewLine(clock *Clock, activeLow bool) *Line {
	return &Line{Clock: clock, ActiveLow: activeLow}
}

// PressAfter schedules a press delay from the clock's current time, held for
// hold.
func (l *Line) PressAfter(delay, hold time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.presses = append(l.presses, press{at: l.Clock.Now().Add(delay), hold: hold})
}

// Read returns the electrical level at the clock's current time.
func (l *Line) Read() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++

	now := l.Clock.Now()
	active := false
	for _, p := range l.presses {
		if !now.Before(p.at) && now.Before(p.at.Add(p.hold)) {
			active = true
			break
		}
	}
	return active != l.ActiveLow
}

func (l *Line) Reads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}
