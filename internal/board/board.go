// Package board binds the device capabilities to Linux hardware through
// periph.io, the kernel watchdog, mount(2) and USB gadget configfs.
package board

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ivlev/picframe/internal/config"
	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/display"
	"github.com/ivlev/picframe/internal/system"
)

// Board owns every hardware resource of the frame.
type Board struct {
	Display   *display.ST7789
	Status    *display.StatusScreen
	Button    *InputPin
	Backlight *Backlight
	Watchdog  device.Watchdog
	Volume    *Volume
	Gadget    *MassStorageGadget

	closers []io.Closer
	log     *zap.Logger
}

// Open initialises the host drivers and every peripheral named in cfg.
func Open(cfg *config.Config, clock system.Clock, log *zap.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: host init: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	b := &Board{log: log}
	if err := b.open(cfg, clock); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Board) open(cfg *config.Config, clock system.Clock) error {
	b.Watchdog = device.NopWatchdog{}
	if cfg.WatchdogTimeout > 0 {
		wd, err := OpenWatchdog(cfg.WatchdogDevice, cfg.WatchdogTimeout, b.log)
		if err != nil {
			return err
		}
		b.Watchdog = wd
		b.closers = append(b.closers, wd)
	}

	bus, maxTx, err := b.openSPI(cfg)
	if err != nil {
		return err
	}

	dc, err := pin(cfg.LCDDCPin)
	if err != nil {
		return err
	}
	var rst display.OutputPin
	if cfg.LCDResetPin != "" {
		p, err := pin(cfg.LCDResetPin)
		if err != nil {
			return err
		}
		rst = p
	}

	b.Display, err = display.NewST7789(bus, dc, rst, display.Config{
		Width:     cfg.LCDWidth,
		Height:    cfg.LCDHeight,
		Rotation:  cfg.LCDRotation,
		XOffset:   cfg.LCDXOffset,
		YOffset:   cfg.LCDYOffset,
		MaxTxSize: maxTx,
	}, display.WithClock(clock), display.WithLogger(b.log))
	if err != nil {
		return err
	}
	b.Status = display.NewStatusScreen(b.Display, cfg.LCDWidth, cfg.LCDHeight)

	bl, err := pin(cfg.LCDBacklightPin)
	if err != nil {
		return err
	}
	b.Backlight = NewBacklight(bl, b.Watchdog, clock)
	if err := b.Backlight.On(); err != nil {
		return fmt.Errorf("board: backlight: %w", err)
	}

	btn, err := pin(cfg.ButtonPin)
	if err != nil {
		return err
	}
	if b.Button, err = NewInputPin(btn, cfg.ButtonActiveLow); err != nil {
		return fmt.Errorf("board: button %s: %w", cfg.ButtonPin, err)
	}

	b.Volume = NewVolume(cfg.SDDevice, cfg.SDMountPoint, cfg.SDFSType)
	b.Gadget = NewMassStorageGadget(cfg.USBGadgetDir, cfg.USBUDC, b.log)
	return nil
}

// openSPI connects at the preferred speed and falls back to the slower one
// when the controller refuses it.
func (b *Board) openSPI(cfg *config.Config) (spi.Conn, int, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, 0, fmt.Errorf("board: open %s: %w", cfg.SPIPort, err)
	}
	b.closers = append(b.closers, port)

	speed := physic.Frequency(cfg.SPIPreferredSpeed) * physic.Hertz
	bus, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		b.log.Warn("preferred SPI speed rejected, falling back",
			zap.Int64("preferred_hz", cfg.SPIPreferredSpeed),
			zap.Int64("fallback_hz", cfg.SPIFallbackSpeed),
			zap.Error(err))
		speed = physic.Frequency(cfg.SPIFallbackSpeed) * physic.Hertz
		if bus, err = port.Connect(speed, spi.Mode0, 8); err != nil {
			return nil, 0, fmt.Errorf("board: connect %s: %w", cfg.SPIPort, err)
		}
	}
	b.log.Info("spi connected", zap.String("port", cfg.SPIPort), zap.Stringer("speed", speed))

	maxTx := 0
	if l, ok := bus.(conn.Limits); ok {
		maxTx = l.MaxTxSize()
	}
	return bus, maxTx, nil
}

func pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("board: unknown pin %q", name)
	}
	return p, nil
}

// Sleeper builds the sleep controller for this board.
func (b *Board) Sleeper(cfg *config.Config, audio device.AudioSink, clock system.Clock) *Sleeper {
	return &Sleeper{
		Mode:       cfg.SleepMode,
		WakeupPath: cfg.SleepWakeupPath,
		Fade:       cfg.BacklightFade,
		ActiveLow:  cfg.ButtonActiveLow,
		Backlight:  b.Backlight,
		Panel:      b.Display,
		Audio:      audio,
		Wake:       b.Button,
		Watchdog:   b.Watchdog,
		Clock:      clock,
		Log:        b.log,
	}
}

// Close releases resources in reverse order of acquisition. The watchdog is
// closed last with the magic character so a clean exit does not reset the
// board.
func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
