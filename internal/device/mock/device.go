package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ivlev/picframe/internal/audio"
)

// Watchdog counts feeds. When Clock is set it also records the longest gap
// between two feeds.
type Watchdog struct {
	Clock *Clock

	mu     sync.Mutex
	feeds  int
	last   time.Time
	maxGap time.Duration
}

func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.feeds++
	if w.Clock == nil {
		return
	}
	now := w.Clock.Now()
	if !w.last.IsZero() {
		if gap := now.Sub(w.last); gap > w.maxGap {
			w.maxGap = gap
		}
	}
	w.last = now
}

func (w *Watchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeds
}

// MaxGap is the longest observed interval between consecutive feeds.
func (w *Watchdog) MaxGap() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxGap
}

// Window is one SetAddressWindow call.
type Window struct {
	X0, Y0, X1, Y1 int
}

// Display records panel writes.
type Display struct {
	// Windows records all SetAddressWindow calls.
	Windows []Window

	// Writes counts WritePixels calls; LastWrite holds a copy of the most
	// recent buffer.
	Writes    int
	LastWrite []byte

	// AutoRefresh records every SetAutoRefresh argument in order.
	AutoRefresh []bool

	// WriteErr is returned by WritePixels when non-nil.
	WriteErr error
}

func (d *Display) SetAddressWindow(x0, y0, x1, y1 int) error {
	d.Windows = append(d.Windows, Window{x0, y0, x1, y1})
	return nil
}

func (d *Display) WritePixels(buf []byte) error {
	if d.WriteErr != nil {
		return d.WriteErr
	}
	d.Writes++
	d.LastWrite = append(d.LastWrite[:0], buf...)
	return nil
}

func (d *Display) SetAutoRefresh(enabled bool) {
	d.AutoRefresh = append(d.AutoRefresh, enabled)
}

// Audio records playback requests.
type Audio struct {
	Plays []*audio.Stream
	Loops []bool
	Stops int

	// Err is returned by Play when non-nil.
	Err error
}

func (a *Audio) Play(stream *audio.Stream, loop bool) error {
	if a.Err != nil {
		return a.Err
	}
	a.Plays = append(a.Plays, stream)
	a.Loops = append(a.Loops, loop)
	return nil
}

func (a *Audio) Stop() error {
	a.Stops++
	return nil
}

// Sleeper records sleep requests. OnSleep, when set, runs inside Sleep and
// its error is returned.
type Sleeper struct {
	Calls   int
	OnSleep func(ctx context.Context) error
}

func (s *Sleeper) Sleep(ctx context.Context) error {
	s.Calls++
	if s.OnSleep != nil {
		return s.OnSleep(ctx)
	}
	return nil
}

// Volume records mount operations. MountErrs are returned by successive
// Mount calls until exhausted.
type Volume struct {
	DeviceName string
	MountErrs  []error

	Mounts   []bool
	Unmounts int
	mounted  bool
}

func (v *Volume) Mount(readOnly bool) error {
	v.Mounts = append(v.Mounts, readOnly)
	if len(v.MountErrs) > 0 {
		err := v.MountErrs[0]
		v.MountErrs = v.MountErrs[1:]
		if err != nil {
			return err
		}
	}
	v.mounted = true
	return nil
}

func (v *Volume) Unmount() error {
	v.Unmounts++
	v.mounted = false
	return nil
}

func (v *Volume) Ready() bool    { return v.mounted }
func (v *Volume) Device() string { return v.DeviceName }

// MassStorage records gadget operations.
type MassStorage struct {
	Exposed   []string
	Withdrawn int
	Err       error
}

func (m *MassStorage) Expose(device string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Exposed = append(m.Exposed, device)
	return nil
}

func (m *MassStorage) Withdraw() error {
	m.Withdrawn++
	return nil
}

// Status is one ShowStatus call.
type Status struct {
	Title, Subtitle, QR string
}

// StatusScreen records every status shown.
type StatusScreen struct {
	Shown []Status
}

func (s *StatusScreen) ShowStatus(title, subtitle, qr string) error {
	s.Shown = append(s.Shown, Status{title, subtitle, qr})
	return nil
}

// Last returns the most recent status, or the zero value.
func (s *StatusScreen) Last() Status {
	if len(s.Shown) == 0 {
		return Status{}
	}
	return s.Shown[len(s.Shown)-1]
}
