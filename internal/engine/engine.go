// Package engine runs the playback and power state machine: pick a clip,
// play it, wait for the button, then repeat, sleep or hand the media volume
// to a USB host.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/catalog"
	"github.com/ivlev/picframe/internal/config"
	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/input"
	"github.com/ivlev/picframe/internal/renderer"
	"github.com/ivlev/picframe/internal/state"
	"github.com/ivlev/picframe/internal/system"
)

// Picker selects the next clip.
type Picker interface {
	GetRandomPair(avoid string) (catalog.ClipPair, error)
}

// Player renders a clip to the panel.
type Player interface {
	Render(clip catalog.ClipPair) (renderer.Result, error)
}

// Button is the debounced input.
type Button interface {
	Pressed() bool
	WaitForPress(ctx context.Context, timeout time.Duration) (input.Event, error)
	WaitForRelease() time.Duration
}

// Transfer holds the collaborators of transfer mode. Without it long holds
// past the transfer threshold just put the device to sleep.
type Transfer struct {
	Volume  device.Volume
	Storage device.MassStorage
	Status  device.StatusScreen
}

type Engine struct {
	Config   config.Source
	Catalog  Picker
	Renderer Player
	Button   Button
	Sleeper  device.Sleeper

	Transfer *Transfer
	Watchdog device.Watchdog
	State    *state.Store
	Clock    system.Clock
	Log      *zap.Logger

	// OnTransition is called on every state change.
	OnTransition func(from, to PowerState)

	// OnConfig receives the configuration read at the start of Run and of
	// every playback cycle, so collaborators built from it can follow a
	// reload.
	OnConfig func(cfg *config.Config)
}

func New(cfg config.Source, cat Picker, r Player, b Button, s device.Sleeper) *Engine {
	return &Engine{
		Config:   cfg,
		Catalog:  cat,
		Renderer: r,
		Button:   b,
		Sleeper:  s,
		Watchdog: device.NopWatchdog{},
		State:    state.NewStore(""),
		Clock:    system.RealClock{},
		Log:      zap.NewNop(),
	}
}

// Run plays clips until the device goes to sleep, and returns once it has
// woken up again. The caller restarts Run for the next wake cycle.
// catalog.ErrNoMediaFound and context errors are returned; problems with a
// single clip are logged and skipped.
func (e *Engine) Run(ctx context.Context) error {
	st, err := e.State.Load()
	if err != nil {
		e.Log.Warn("failed to load state, starting fresh", zap.Error(err))
	}
	avoid := st.LastClip
	cycles := st.Cycles

	cfg := e.currentConfig()
	current := Active
	if cfg.TransferOnBoot && e.transferEnabled(cfg) && e.Button.Pressed() {
		e.Log.Info("button held at boot, entering transfer mode")
		e.Button.WaitForRelease()
		current = e.transition(current, TransferMode)
	}

	var log *zap.Logger
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch current {
		case Active:
			cfg = e.currentConfig()
			log = e.Log.With(zap.String("cycle", uuid.NewString()))

			clip, err := e.Catalog.GetRandomPair(avoid)
			if err != nil {
				log.Error("no playable media", zap.Error(err))
				return err
			}
			e.play(log, clip)

			avoid = clip.AnimationPath
			cycles++
			if err := e.State.Save(state.State{LastClip: avoid, Cycles: cycles, UpdatedAt: e.Clock.Now()}); err != nil {
				log.Warn("failed to save state", zap.Error(err))
			}
			current = e.transition(current, AwaitingInput)

		case AwaitingInput:
			ev, err := e.Button.WaitForPress(ctx, cfg.IdleTimeout)
			if err != nil {
				return err
			}
			decision := Classify(ev, cfg.LongHold, e.transferHold(cfg))
			log.Info("input",
				zap.Bool("pressed", ev.Pressed),
				zap.Duration("hold", ev.HoldDuration),
				zap.Stringer("decision", decision))
			current = e.transition(current, decision.next())

		case TransferMode:
			if err := e.runTransfer(ctx, cfg); err != nil {
				return err
			}
			current = e.transition(current, Active)

		case Sleeping:
			if err := e.Sleeper.Sleep(ctx); err != nil {
				return fmt.Errorf("engine: sleep: %w", err)
			}
			e.Log.Info("woke from sleep")
			return nil
		}
	}
}

func (e *Engine) play(log *zap.Logger, clip catalog.ClipPair) {
	log.Info("playing clip",
		zap.String("clip", clip.AnimationPath),
		zap.String("audio", clip.AudioPath))

	res, err := e.Renderer.Render(clip)
	switch {
	case errors.Is(err, renderer.ErrClipLoadFailed):
		log.Warn("clip skipped", zap.String("clip", clip.AnimationPath), zap.Error(err))
	case err != nil:
		log.Warn("clip playback aborted", zap.String("clip", clip.AnimationPath), zap.Error(err))
	default:
		log.Debug("clip finished",
			zap.Int("frames", res.Session.FramesRendered),
			zap.Int("deficit_frames", res.Session.DeficitFrames))
	}
}

func (e *Engine) currentConfig() *config.Config {
	cfg := e.Config.Current()
	if e.OnConfig != nil {
		e.OnConfig(cfg)
	}
	return cfg
}

func (e *Engine) transferEnabled(cfg *config.Config) bool {
	return e.Transfer != nil && cfg.TransferHold > 0
}

func (e *Engine) transferHold(cfg *config.Config) time.Duration {
	if !e.transferEnabled(cfg) {
		return 0
	}
	return cfg.TransferHold
}

// runTransfer hands the media volume to the USB host until the button is
// pressed, then takes it back. Failing to expose the volume is logged and
// playback resumes; only failing to get the volume back is returned.
func (e *Engine) runTransfer(ctx context.Context, cfg *config.Config) error {
	t := e.Transfer
	log := e.Log.With(zap.String("device", t.Volume.Device()))

	if err := t.Volume.Unmount(); err != nil {
		log.Warn("cannot unmount media volume, staying in playback", zap.Error(err))
		return nil
	}

	if err := t.Storage.Expose(t.Volume.Device()); err != nil {
		log.Warn("cannot expose media volume over USB", zap.Error(err))
		return e.reclaimStorage(ctx, cfg)
	}
	log.Info("media volume exposed over USB")

	if err := t.Status.ShowStatus("USB connected", "Press button when done", cfg.ConverterURL); err != nil {
		log.Warn("failed to draw status screen", zap.Error(err))
	}

	_, waitErr := e.Button.WaitForPress(ctx, 0)

	if err := t.Storage.Withdraw(); err != nil {
		log.Warn("failed to withdraw USB gadget", zap.Error(err))
	}
	if waitErr != nil {
		return waitErr
	}
	return e.reclaimStorage(ctx, cfg)
}

func (e *Engine) reclaimStorage(ctx context.Context, cfg *config.Config) error {
	retry := DefaultStorageRetry(cfg.WatchdogTimeout)
	retry.Watchdog = e.Watchdog
	retry.Clock = e.Clock
	retry.Log = e.Log
	return WaitForStorage(ctx, e.Transfer.Volume, retry)
}

func (e *Engine) transition(from, to PowerState) PowerState {
	e.Log.Info("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if e.OnTransition != nil {
		e.OnTransition(from, to)
	}
	return to
}
