package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/audio"
	"github.com/ivlev/picframe/internal/board"
	"github.com/ivlev/picframe/internal/catalog"
	"github.com/ivlev/picframe/internal/config"
	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/engine"
	"github.com/ivlev/picframe/internal/input"
	"github.com/ivlev/picframe/internal/renderer"
	"github.com/ivlev/picframe/internal/source"
	"github.com/ivlev/picframe/internal/state"
	"github.com/ivlev/picframe/internal/system"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the frame until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var settings config.Source = config.Static{Config: cfg}
	if _, err := os.Stat(configPath); err == nil {
		w, err := config.NewWatcher(configPath, cfg, log)
		if err != nil {
			log.Warn("config hot reload unavailable", zap.Error(err))
		} else {
			defer w.Close()
			settings = w
		}
	}

	clock := system.RealClock{}
	hw, err := board.Open(cfg, clock, log)
	if err != nil {
		return err
	}
	defer hw.Close()

	if snap, err := system.TakeSnapshot(""); err == nil {
		log.Info("booted",
			zap.String("host", snap.Hostname),
			zap.String("kernel", snap.KernelVersion),
			zap.Uint64("mem_available", snap.MemAvailable))
	}

	retry := engine.DefaultStorageRetry(cfg.WatchdogTimeout)
	retry.Watchdog = hw.Watchdog
	retry.Log = log
	if err := engine.WaitForStorage(ctx, hw.Volume, retry); err != nil {
		return err
	}

	var player *audio.CommandPlayer
	var sink device.AudioSink
	if cfg.AudioEnabled {
		player = audio.NewCommandPlayer(log.Named("audio"), cfg.AudioPlayer, "-q")
		defer player.Stop()
		sink = player
	}

	cat := catalog.New(cfg.GIFsPath, cfg.WAVsPath)
	dec := source.NewGIFDecoder(cfg.LCDWidth, cfg.LCDHeight, system.NewBufferPool())
	dec.MaxFileSize = cfg.GIFMaxBytes

	opts := []renderer.Option{
		renderer.WithWatchdog(hw.Watchdog),
		renderer.WithLogger(log.Named("renderer")),
		renderer.WithDeficitThreshold(cfg.DeficitThreshold),
		renderer.WithMaxSleep(cfg.FeedInterval()),
	}
	if sink != nil {
		opts = append(opts, renderer.WithAudio(sink))
	}
	r := renderer.New(hw.Display, dec, opts...)

	btn := input.NewButton(hw.Button, cfg.ButtonActiveLow, cfg.ButtonDebounce,
		input.WithWatchdog(hw.Watchdog))

	sleeper := hw.Sleeper(cfg, sink, clock)

	eng := engine.New(settings, cat, r, btn, sleeper)
	eng.Transfer = &engine.Transfer{
		Volume:  hw.Volume,
		Storage: hw.Gadget,
		Status:  hw.Status,
	}
	eng.Watchdog = hw.Watchdog
	eng.State = state.NewStore(cfg.StateFile)
	eng.Log = log.Named("engine")
	// Media paths, pacing and debounce follow config reloads from the next
	// playback cycle on. Hardware settings need a restart.
	eng.OnConfig = func(c *config.Config) {
		cat.SetDirs(c.GIFsPath, c.WAVsPath)
		dec.MaxFileSize = c.GIFMaxBytes
		r.SetDeficitThreshold(c.DeficitThreshold)
		btn.SetInterval(c.ButtonDebounce)
	}

	for {
		err := eng.Run(ctx)
		switch {
		case err == nil:
			// Woken from sleep; start a fresh program.
		case ctx.Err() != nil:
			log.Info("shutting down")
			return nil
		case errors.Is(err, catalog.ErrNoMediaFound):
			log.Error("no media to play", zap.String("dir", cat.AnimationDir()), zap.Error(err))
			if err := hw.Status.ShowStatus("No media",
				fmt.Sprintf("Add GIFs to %s", cat.AnimationDir()), settings.Current().ConverterURL); err != nil {
				log.Warn("failed to show status", zap.Error(err))
			}
			if err := sleeper.Sleep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		default:
			return err
		}
	}
}
