//go:build linux

package board

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ivlev/picframe/internal/system"
)

// Volume is a block device mounted at a fixed mount point.
type Volume struct {
	device     string
	mountPoint string
	fstype     string
}

func NewVolume(device, mountPoint, fstype string) *Volume {
	return &Volume{device: device, mountPoint: mountPoint, fstype: fstype}
}

func (v *Volume) Device() string { return v.device }

// Mount mounts the volume, or remounts it with the requested mode when it is
// already mounted.
func (v *Volume) Mount(readOnly bool) error {
	var flags uintptr = unix.MS_NOATIME
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if v.Ready() {
		flags |= unix.MS_REMOUNT
	} else if err := os.MkdirAll(v.mountPoint, 0755); err != nil {
		return err
	}

	if err := unix.Mount(v.device, v.mountPoint, v.fstype, flags, ""); err != nil {
		return fmt.Errorf("mount %s on %s: %w", v.device, v.mountPoint, err)
	}
	return nil
}

func (v *Volume) Unmount() error {
	if !v.Ready() {
		return nil
	}
	if err := unix.Unmount(v.mountPoint, 0); err != nil {
		return fmt.Errorf("unmount %s: %w", v.mountPoint, err)
	}
	return nil
}

func (v *Volume) Ready() bool {
	mounted, err := system.IsMounted(v.mountPoint)
	return err == nil && mounted
}
