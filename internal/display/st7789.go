// Package display drives ST7789 SPI panels and draws status screens on them.
package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"periph.io/x/conn/v3/gpio"

	"github.com/ivlev/picframe/internal/pixel"
	"github.com/ivlev/picframe/internal/system"
)

// ST7789 command set.
const (
	cmdSWRESET = 0x01
	cmdSLPIN   = 0x10
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVON   = 0x21
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
)

// 16 bits per pixel on both the RGB and the MCU interface.
const colmodRGB565 = 0x55

// Bus is the write side of an SPI connection. spi.Conn satisfies it.
type Bus interface {
	Tx(w, r []byte) error
}

// OutputPin is a digital output. gpio.PinOut satisfies it.
type OutputPin interface {
	Out(l gpio.Level) error
}

type Config struct {
	// Width and Height after rotation.
	Width, Height int
	// Rotation in degrees: 0, 90, 180 or 270.
	Rotation int
	// Offsets of the visible area inside controller RAM.
	XOffset, YOffset int
	// MaxTxSize limits the size of a single SPI transfer. Zero means 4096.
	MaxTxSize int
}

// ST7789 is a panel on an SPI bus with separate data/command and reset
// lines. Pixel data is big-endian RGB565.
type ST7789 struct {
	bus   Bus
	dc    OutputPin
	rst   OutputPin
	cfg   Config
	clock system.Clock
	log   *zap.Logger

	mu          sync.Mutex
	autoRefresh bool
	pending     image.Image
	frame       *image.RGBA
	packed      []byte
}

type Option func(*ST7789)

func WithClock(c system.Clock) Option {
	return func(d *ST7789) { d.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(d *ST7789) { d.log = l }
}

// NewST7789 resets and initialises the panel. rst may be nil when the reset
// line is not wired.
func NewST7789(bus Bus, dc, rst OutputPin, cfg Config, opts ...Option) (*ST7789, error) {
	if cfg.MaxTxSize <= 0 {
		cfg.MaxTxSize = 4096
	}
	d := &ST7789{
		bus:         bus,
		dc:          dc,
		rst:         rst,
		cfg:         cfg,
		clock:       system.RealClock{},
		autoRefresh: true,
		frame:       image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		packed:      make([]byte, pixel.Size(cfg.Width, cfg.Height)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}

	if err := d.init(); err != nil {
		return nil, fmt.Errorf("st7789: init: %w", err)
	}
	d.log.Info("panel ready",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("rotation", cfg.Rotation))
	return d, nil
}

// madctl returns the memory access control byte for a rotation.
func madctl(rotation int) byte {
	switch rotation {
	case 90:
		return 0x60 // MX | MV
	case 180:
		return 0xC0 // MY | MX
	case 270:
		return 0xA0 // MY | MV
	default:
		return 0x00
	}
}

func (d *ST7789) init() error {
	if d.rst != nil {
		for _, step := range []struct {
			level gpio.Level
			wait  time.Duration
		}{
			{gpio.High, 10 * time.Millisecond},
			{gpio.Low, 10 * time.Millisecond},
			{gpio.High, 120 * time.Millisecond},
		} {
			if err := d.rst.Out(step.level); err != nil {
				return err
			}
			d.clock.Sleep(step.wait)
		}
	}

	seq := []struct {
		cmd  byte
		data []byte
		wait time.Duration
	}{
		{cmdSWRESET, nil, 150 * time.Millisecond},
		{cmdSLPOUT, nil, 120 * time.Millisecond},
		{cmdCOLMOD, []byte{colmodRGB565}, 10 * time.Millisecond},
		{cmdMADCTL, []byte{madctl(d.cfg.Rotation)}, 0},
		{cmdINVON, nil, 10 * time.Millisecond},
		{cmdNORON, nil, 10 * time.Millisecond},
		{cmdDISPON, nil, 10 * time.Millisecond},
	}
	for _, s := range seq {
		if err := d.command(s.cmd, s.data...); err != nil {
			return err
		}
		d.clock.Sleep(s.wait)
	}
	return nil
}

func (d *ST7789) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.bus.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("command %#02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	return d.data(data)
}

func (d *ST7789) data(buf []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(buf) > 0 {
		n := min(len(buf), d.cfg.MaxTxSize)
		if err := d.bus.Tx(buf[:n], nil); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (d *ST7789) Width() int  { return d.cfg.Width }
func (d *ST7789) Height() int { return d.cfg.Height }

// SetAddressWindow selects the inclusive RAM rectangle the next WritePixels
// fills.
func (d *ST7789) SetAddressWindow(x0, y0, x1, y1 int) error {
	x0, x1 = x0+d.cfg.XOffset, x1+d.cfg.XOffset
	y0, y1 = y0+d.cfg.YOffset, y1+d.cfg.YOffset

	if err := d.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	return d.command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
}

// WritePixels streams buf into the current window from its first pixel.
func (d *ST7789) WritePixels(buf []byte) error {
	if err := d.command(cmdRAMWR); err != nil {
		return err
	}
	return d.data(buf)
}

// SetAutoRefresh gates Show. While disabled, the last image passed to Show
// is held back and drawn as soon as refresh is enabled again.
func (d *ST7789) SetAutoRefresh(enabled bool) {
	d.mu.Lock()
	d.autoRefresh = enabled
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	if enabled && pending != nil {
		if err := d.Show(pending); err != nil {
			d.log.Warn("deferred refresh failed", zap.Error(err))
		}
	}
}

// Show scales img to the full panel and draws it.
func (d *ST7789) Show(img image.Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.autoRefresh {
		d.pending = img
		return nil
	}

	draw.ApproxBiLinear.Scale(d.frame, d.frame.Rect, img, img.Bounds(), draw.Src, nil)
	pixel.PackRGB565(d.packed, d.frame)

	if err := d.SetAddressWindow(0, 0, d.cfg.Width-1, d.cfg.Height-1); err != nil {
		return err
	}
	return d.WritePixels(d.packed)
}

// Sleep turns the panel off and puts the controller to sleep.
func (d *ST7789) Sleep() error {
	if err := d.command(cmdDISPOFF); err != nil {
		return err
	}
	return d.command(cmdSLPIN)
}

// Wake reverses Sleep.
func (d *ST7789) Wake() error {
	if err := d.command(cmdSLPOUT); err != nil {
		return err
	}
	d.clock.Sleep(120 * time.Millisecond)
	return d.command(cmdDISPON)
}
