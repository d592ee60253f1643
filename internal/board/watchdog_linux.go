//go:build linux

package board

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// WDIOC_SETTIMEOUT from linux/watchdog.h.
const wdiocSetTimeout = 0xc0045706

// Watchdog is the kernel watchdog device. Any write feeds it.
type Watchdog struct {
	f   *os.File
	log *zap.Logger
	mu  sync.Mutex
}

// OpenWatchdog arms the watchdog at path with the given timeout.
func OpenWatchdog(path string, timeout time.Duration, log *zap.Logger) (*Watchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("watchdog: open %s: %w", path, err)
	}

	secs := int(timeout.Round(time.Second) / time.Second)
	if err := unix.IoctlSetPointerInt(int(f.Fd()), wdiocSetTimeout, secs); err != nil {
		log.Warn("watchdog timeout not applied, using driver default", zap.Int("seconds", secs), zap.Error(err))
	}
	return &Watchdog{f: f, log: log}, nil
}

func (w *Watchdog) Feed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write([]byte{0}); err != nil {
		w.log.Warn("watchdog feed failed", zap.Error(err))
	}
}

// Close disarms the watchdog with the magic close character.
func (w *Watchdog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.f.Write([]byte("V"))
	return w.f.Close()
}
