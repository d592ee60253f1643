package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/system"
)

const (
	SleepSuspend = "suspend"
	SleepHalt    = "halt"
)

// Panel is a display that can be powered down.
type Panel interface {
	Sleep() error
	Wake() error
}

// WakeLine is the button line as seen by the sleeper.
type WakeLine interface {
	Read() bool
	WaitForEdge(timeout time.Duration) bool
}

// Sleeper powers the device down until the button is pressed. In suspend
// mode the button's wakeup attribute is enabled and the kernel suspends to
// RAM; in halt mode the process blocks on a button edge with everything else
// off. Suspend falls back to halt when the wakeup cannot be armed.
type Sleeper struct {
	Mode           string
	PowerStatePath string
	// WakeupPath is the power/wakeup sysfs attribute of the button's input
	// device.
	WakeupPath string
	Fade       time.Duration
	ActiveLow  bool

	Backlight *Backlight
	Panel     Panel
	Audio     device.AudioSink
	Wake      WakeLine
	Watchdog  device.Watchdog
	Clock     system.Clock
	Log       *zap.Logger

	// EdgePoll bounds a single wait for a button edge in halt mode.
	EdgePoll time.Duration

	writeAttr func(path, value string) error
}

func (s *Sleeper) Sleep(ctx context.Context) error {
	s.defaults()

	if s.Audio != nil {
		if err := s.Audio.Stop(); err != nil {
			s.Log.Warn("failed to stop audio", zap.Error(err))
		}
	}
	if s.Backlight != nil {
		if err := s.Backlight.FadeOut(s.Fade); err != nil {
			s.Log.Warn("failed to switch backlight off", zap.Error(err))
		}
	}
	if s.Panel != nil {
		if err := s.Panel.Sleep(); err != nil {
			s.Log.Warn("failed to put panel to sleep", zap.Error(err))
		}
	}

	s.Log.Info("entering sleep", zap.String("mode", s.Mode))
	var err error
	if s.Mode == SleepHalt {
		err = s.halt(ctx)
	} else if armErr := s.armWakeup(); armErr != nil {
		s.Log.Warn("cannot arm button wakeup, halting instead of suspending",
			zap.String("path", s.WakeupPath), zap.Error(armErr))
		err = s.halt(ctx)
	} else {
		err = s.suspend()
		s.disarmWakeup()
	}
	if err != nil {
		return err
	}

	s.waitForRelease()

	if s.Panel != nil {
		if err := s.Panel.Wake(); err != nil {
			s.Log.Warn("failed to wake panel", zap.Error(err))
		}
	}
	if s.Backlight != nil {
		if err := s.Backlight.On(); err != nil {
			s.Log.Warn("failed to switch backlight on", zap.Error(err))
		}
	}
	return nil
}

func (s *Sleeper) defaults() {
	if s.PowerStatePath == "" {
		s.PowerStatePath = "/sys/power/state"
	}
	if s.Watchdog == nil {
		s.Watchdog = device.NopWatchdog{}
	}
	if s.Clock == nil {
		s.Clock = system.RealClock{}
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.EdgePoll <= 0 {
		s.EdgePoll = time.Second
	}
	if s.writeAttr == nil {
		s.writeAttr = write
	}
}

func (s *Sleeper) armWakeup() error {
	if s.WakeupPath == "" {
		return errors.New("no wakeup attribute configured")
	}
	return s.writeAttr(s.WakeupPath, "enabled")
}

func (s *Sleeper) disarmWakeup() {
	if err := s.writeAttr(s.WakeupPath, "disabled"); err != nil {
		s.Log.Warn("failed to disarm button wakeup", zap.Error(err))
	}
}

// suspend returns after the system has resumed.
func (s *Sleeper) suspend() error {
	s.Watchdog.Feed()
	if err := s.writeAttr(s.PowerStatePath, "mem"); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}
	s.Watchdog.Feed()
	return nil
}

func (s *Sleeper) halt(ctx context.Context) error {
	if s.Wake == nil {
		return errors.New("halt: no wake line")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Watchdog.Feed()
		if s.Wake.WaitForEdge(s.EdgePoll) && s.pressed() {
			return nil
		}
	}
}

func (s *Sleeper) pressed() bool {
	return s.Wake != nil && s.Wake.Read() != s.ActiveLow
}

// waitForRelease keeps the wake press from being read as a new gesture.
func (s *Sleeper) waitForRelease() {
	for s.pressed() {
		s.Clock.Sleep(10 * time.Millisecond)
		s.Watchdog.Feed()
	}
}
