// Package device declares the capabilities the playback core needs from the
// platform. Each has one Linux implementation under internal/board or
// internal/display and a fake under internal/device/mock.
package device

import (
	"context"

	"github.com/ivlev/picframe/internal/audio"
)

// DisplaySink accepts raw panel writes. Coordinates are inclusive.
type DisplaySink interface {
	SetAddressWindow(x0, y0, x1, y1 int) error
	WritePixels(buf []byte) error
	// SetAutoRefresh suspends or resumes any background framebuffer refresh
	// so that direct writes are not torn by it.
	SetAutoRefresh(enabled bool)
}

// AudioSink plays a validated WAV stream. Play returns once playback has
// started; it does not wait for the stream to finish.
type AudioSink interface {
	Play(stream *audio.Stream, loop bool) error
	Stop() error
}

// InputLine reads the raw electrical level of a digital input.
type InputLine interface {
	Read() bool
}

// Watchdog is the hardware liveness timer.
type Watchdog interface {
	Feed()
}

// Sleeper puts the device into its low-power state and returns after wake.
type Sleeper interface {
	Sleep(ctx context.Context) error
}

// Volume is the removable media volume.
type Volume interface {
	Mount(readOnly bool) error
	Unmount() error
	Ready() bool
	Device() string
}

// MassStorage exposes a block device to a USB host.
type MassStorage interface {
	Expose(device string) error
	Withdraw() error
}

// StatusScreen draws a static message, optionally with a QR code of qr.
type StatusScreen interface {
	ShowStatus(title, subtitle, qr string) error
}

// NopWatchdog is used when the watchdog is disabled.
type NopWatchdog struct{}

func (NopWatchdog) Feed() {}
