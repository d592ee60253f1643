package system

import "time"

// Clock is the time source for every busy-wait loop on the device. The
// debounce poll and the per-frame pacing sleep both go through it, which lets
// host-side tests run minutes of device time instantly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
