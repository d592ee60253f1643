package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/system"
)

// ErrStorageInit is returned when the media volume could not be mounted
// before the context ended.
var ErrStorageInit = errors.New("storage init failed")

// StorageRetry controls WaitForStorage.
type StorageRetry struct {
	Initial  time.Duration
	Max      time.Duration
	Watchdog device.Watchdog
	Clock    system.Clock
	Log      *zap.Logger
}

// DefaultStorageRetry starts at 100ms and doubles up to a quarter of the
// watchdog timeout, or 5s with the watchdog disabled.
func DefaultStorageRetry(watchdogTimeout time.Duration) StorageRetry {
	maxBackoff := 5 * time.Second
	if watchdogTimeout > 0 {
		maxBackoff = min(maxBackoff, watchdogTimeout/4)
	}
	return StorageRetry{
		Initial:  100 * time.Millisecond,
		Max:      maxBackoff,
		Watchdog: device.NopWatchdog{},
		Clock:    system.RealClock{},
	}
}

// WaitForStorage mounts vol read-only, retrying until it succeeds or ctx is
// done. The watchdog is fed between attempts.
func WaitForStorage(ctx context.Context, vol device.Volume, r StorageRetry) error {
	if r.Watchdog == nil {
		r.Watchdog = device.NopWatchdog{}
	}
	if r.Clock == nil {
		r.Clock = system.RealClock{}
	}
	if r.Log == nil {
		r.Log = zap.NewNop()
	}

	backoff := r.Initial
	for attempt := 1; ; attempt++ {
		if vol.Ready() {
			return nil
		}

		err := vol.Mount(true)
		if err == nil {
			r.Log.Info("media volume mounted", zap.String("device", vol.Device()), zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", ErrStorageInit, vol.Device(), err)
		}

		r.Log.Warn("media volume not ready, retrying",
			zap.String("device", vol.Device()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		r.Clock.Sleep(backoff)
		r.Watchdog.Feed()
		backoff = min(backoff*2, r.Max)
	}
}
