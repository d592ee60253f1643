// Package source decodes animation clips into display-ready frames.
package source

import (
	"errors"
	"time"
)

// ErrClosed is returned by NextFrame after Close.
var ErrClosed = errors.New("animation closed")

// ErrTooLarge is returned by Open for files over the decoder's size limit.
var ErrTooLarge = errors.New("animation too large")

// Decoder opens animation files. Open fails on missing or corrupt input.
type Decoder interface {
	Open(path string) (Animation, error)
}

// Animation is an opened clip. Frames are produced in order and wrap around
// after the last one.
type Animation interface {
	FrameCount() int
	// Width and Height are the dimensions of every frame Pixels returns.
	Width() int
	Height() int
	// NextFrame advances to the next frame and returns how long it should
	// stay on screen.
	NextFrame() (time.Duration, error)
	// Pixels is the current frame as big-endian RGB565. The slice is reused
	// by the next call to NextFrame.
	Pixels() []byte
	Close() error
}
