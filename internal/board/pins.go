package board

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/system"
)

// InputPin adapts a GPIO input to device.InputLine.
type InputPin struct {
	pin gpio.PinIn
}

// NewInputPin configures pin as an input biased towards its idle level and
// with edge detection for the halt-mode wake wait.
func NewInputPin(pin gpio.PinIn, activeLow bool) (*InputPin, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return nil, err
	}
	return &InputPin{pin: pin}, nil
}

func (p *InputPin) Read() bool { return p.pin.Read() == gpio.High }

func (p *InputPin) WaitForEdge(timeout time.Duration) bool {
	return p.pin.WaitForEdge(timeout)
}

// PWMPin is the part of gpio.PinOut the backlight needs.
type PWMPin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

const (
	backlightFreq  = 1 * physic.KiloHertz
	backlightSteps = 20
)

// Backlight drives the panel backlight, dimming it over PWM when the pin
// supports it.
type Backlight struct {
	pin      PWMPin
	watchdog device.Watchdog
	clock    system.Clock
}

func NewBacklight(pin PWMPin, wd device.Watchdog, clock system.Clock) *Backlight {
	if wd == nil {
		wd = device.NopWatchdog{}
	}
	if clock == nil {
		clock = system.RealClock{}
	}
	return &Backlight{pin: pin, watchdog: wd, clock: clock}
}

func (b *Backlight) On() error  { return b.pin.Out(gpio.High) }
func (b *Backlight) Off() error { return b.pin.Out(gpio.Low) }

// FadeOut dims from full to off over d, then switches the pin off. Pins
// without PWM go dark immediately.
func (b *Backlight) FadeOut(d time.Duration) error {
	step := d / backlightSteps
	for i := backlightSteps - 1; i > 0 && step > 0; i-- {
		duty := gpio.Duty(int64(gpio.DutyMax) * int64(i) / backlightSteps)
		if err := b.pin.PWM(duty, backlightFreq); err != nil {
			break
		}
		b.clock.Sleep(step)
		b.watchdog.Feed()
	}
	return b.Off()
}
