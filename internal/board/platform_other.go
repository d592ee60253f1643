//go:build !linux

package board

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

var errUnsupported = errors.New("board: only supported on linux")

type Watchdog struct{}

func OpenWatchdog(path string, timeout time.Duration, log *zap.Logger) (*Watchdog, error) {
	return nil, errUnsupported
}

func (w *Watchdog) Feed()        {}
func (w *Watchdog) Close() error { return nil }

type Volume struct {
	device string
}

func NewVolume(device, mountPoint, fstype string) *Volume {
	return &Volume{device: device}
}

func (v *Volume) Device() string            { return v.device }
func (v *Volume) Mount(readOnly bool) error { return errUnsupported }
func (v *Volume) Unmount() error            { return errUnsupported }
func (v *Volume) Ready() bool               { return false }
