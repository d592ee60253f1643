package system

import (
	"fmt"
	"io"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of the host, printed by `picframe info`
// and logged once at boot.
type Snapshot struct {
	Hostname      string
	Platform      string
	KernelVersion string
	Uptime        time.Duration
	MemTotal      uint64
	MemAvailable  uint64
	Volume        *VolumeUsage
}

// VolumeUsage describes the media volume.
type VolumeUsage struct {
	Path        string
	Fstype      string
	Total       uint64
	Free        uint64
	UsedPercent float64
}

// TakeSnapshot collects host information. mediaPath may be empty; when it is
// set but not mounted, Volume stays nil and no error is returned.
func TakeSnapshot(mediaPath string) (*Snapshot, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}

	s := &Snapshot{
		Hostname:      info.Hostname,
		Platform:      info.Platform + " " + info.PlatformVersion,
		KernelVersion: info.KernelVersion,
		Uptime:        time.Duration(info.Uptime) * time.Second,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotal = vm.Total
		s.MemAvailable = vm.Available
	}

	if mediaPath != "" {
		if u, err := disk.Usage(mediaPath); err == nil {
			s.Volume = &VolumeUsage{
				Path:        u.Path,
				Fstype:      u.Fstype,
				Total:       u.Total,
				Free:        u.Free,
				UsedPercent: u.UsedPercent,
			}
		}
	}

	return s, nil
}

// IsMounted reports whether mountPoint appears in the kernel mount table.
func IsMounted(mountPoint string) (bool, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return false, err
	}
	for _, p := range parts {
		if p.Mountpoint == mountPoint {
			return true, nil
		}
	}
	return false, nil
}

func (s *Snapshot) Print(w io.Writer) {
	fmt.Fprintf(w, "[*] Host: %s (%s, kernel %s)\n", s.Hostname, s.Platform, s.KernelVersion)
	fmt.Fprintf(w, "[*] Uptime: %s\n", s.Uptime)
	fmt.Fprintf(w, "[*] Memory: %s available of %s\n", formatBytes(s.MemAvailable), formatBytes(s.MemTotal))
	if s.Volume == nil {
		fmt.Fprintln(w, "[!] Media volume: not mounted")
		return
	}
	fmt.Fprintf(w, "[*] Media volume: %s (%s) %s free of %s, %.1f%% used\n",
		s.Volume.Path, s.Volume.Fstype, formatBytes(s.Volume.Free), formatBytes(s.Volume.Total), s.Volume.UsedPercent)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
