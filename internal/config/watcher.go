package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source hands out the configuration in effect. The engine calls Current once
// per playback cycle, so a reload never changes thresholds mid-state.
type Source interface {
	Current() *Config
}

// Static is a Source that never changes.
type Static struct {
	Config *Config
}

func (s Static) Current() *Config { return s.Config }

// Watcher reloads the YAML file whenever it is written and keeps the last
// valid result. The containing directory is watched rather than the file so
// that editors which replace the file on save are handled too.
type Watcher struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	current *Config

	fs   *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// NewWatcher starts watching path. initial is the configuration already
// loaded from it.
func NewWatcher(path string, initial *Config, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		log:     log,
		current: initial,
		fs:      fsw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fs.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	target := filepath.Clean(w.path)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload rejected, keeping previous settings",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.log.Info("config reloaded",
		zap.String("path", w.path),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Duration("long_hold", cfg.LongHold))
}
