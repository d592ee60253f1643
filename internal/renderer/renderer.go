// Package renderer plays one clip on the panel at the pace its frames ask
// for, correcting for the time spent decoding and transferring each frame.
package renderer

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/picframe/internal/audio"
	"github.com/ivlev/picframe/internal/catalog"
	"github.com/ivlev/picframe/internal/device"
	"github.com/ivlev/picframe/internal/source"
	"github.com/ivlev/picframe/internal/system"
)

// ErrClipLoadFailed covers clips that could not be opened or decoded. The
// caller treats such a clip as already played.
var ErrClipLoadFailed = errors.New("clip load failed")

// DefaultDeficitThreshold is the pacing sleep at or below which a frame is
// counted as having no deliberate delay.
const DefaultDeficitThreshold = 10 * time.Millisecond

// DefaultMaxSleep is the longest the renderer sleeps without feeding the
// watchdog.
const DefaultMaxSleep = time.Second

// Session is the pacing state of one playback.
type Session struct {
	FramesRendered int
	TotalFrames    int
	// Overhead is the decode and transfer time of the last frame.
	Overhead time.Duration
	// NextDelay is how long the last frame should stay on screen.
	NextDelay     time.Duration
	DeficitFrames int
}

// DeficitPercent is the share of rendered frames shown without any delay.
func (s Session) DeficitPercent() int {
	if s.FramesRendered == 0 {
		return 0
	}
	return s.DeficitFrames * 100 / s.FramesRendered
}

// Result describes a finished playback.
type Result struct {
	Clip         catalog.ClipPair
	Session      Session
	Elapsed      time.Duration
	AudioStarted bool
}

type Renderer struct {
	display   device.DisplaySink
	decoder   source.Decoder
	audio     device.AudioSink
	watchdog  device.Watchdog
	clock     system.Clock
	log       *zap.Logger
	threshold time.Duration
	maxSleep  time.Duration
}

type Option func(*Renderer)

// WithAudio enables audio. Without it clips always play silently.
func WithAudio(a device.AudioSink) Option {
	return func(r *Renderer) { r.audio = a }
}

func WithWatchdog(w device.Watchdog) Option {
	return func(r *Renderer) { r.watchdog = w }
}

func WithClock(c system.Clock) Option {
	return func(r *Renderer) { r.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

func WithDeficitThreshold(d time.Duration) Option {
	return func(r *Renderer) { r.threshold = d }
}

// WithMaxSleep splits pacing sleeps longer than d into slices of d with a
// watchdog feed after each one.
func WithMaxSleep(d time.Duration) Option {
	return func(r *Renderer) { r.maxSleep = d }
}

func New(display device.DisplaySink, decoder source.Decoder, opts ...Option) *Renderer {
	r := &Renderer{
		display:   display,
		decoder:   decoder,
		watchdog:  device.NopWatchdog{},
		clock:     system.RealClock{},
		threshold: DefaultDeficitThreshold,
		maxSleep:  DefaultMaxSleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// SetDeficitThreshold changes the threshold for the next Render.
func (r *Renderer) SetDeficitThreshold(d time.Duration) {
	r.threshold = d
}

// Render plays clip once from its first to its last frame. Before each frame
// it sleeps for the previous frame's delay minus the previous frame's
// overhead, so playback speed follows the source timing until decoding
// can no longer keep up. The matching audio, if any, starts right after the
// first frame is on screen.
func (r *Renderer) Render(clip catalog.ClipPair) (Result, error) {
	res := Result{Clip: clip}
	began := r.clock.Now()
	log := r.log.With(zap.String("clip", clip.AnimationPath))

	anim, err := r.decoder.Open(clip.AnimationPath)
	if err != nil {
		log.Warn("failed to load clip", zap.Error(err))
		return res, fmt.Errorf("%w: %s: %w", ErrClipLoadFailed, clip.AnimationPath, err)
	}
	defer anim.Close()
	// Open decodes the whole clip.
	r.watchdog.Feed()

	stream := r.loadAudio(log, clip)

	r.display.SetAutoRefresh(false)
	defer r.display.SetAutoRefresh(true)

	s := &res.Session
	s.TotalFrames = anim.FrameCount()
	windowSet := false

	for s.FramesRendered < s.TotalFrames {
		delay := max(0, s.NextDelay-s.Overhead)
		r.pause(delay)

		if !windowSet {
			if err := r.display.SetAddressWindow(0, 0, anim.Width()-1, anim.Height()-1); err != nil {
				return res, fmt.Errorf("renderer: address window: %w", err)
			}
			windowSet = true
		} else if delay <= r.threshold {
			s.DeficitFrames++
			log.Debug("no delay between frames",
				zap.Int("frame", s.FramesRendered),
				zap.Duration("deficit", s.Overhead-s.NextDelay))
		}

		start := r.clock.Now()
		next, err := anim.NextFrame()
		if err != nil {
			log.Warn("failed to decode frame", zap.Int("frame", s.FramesRendered), zap.Error(err))
			return res, fmt.Errorf("%w: %s: frame %d: %w", ErrClipLoadFailed, clip.AnimationPath, s.FramesRendered, err)
		}
		s.NextDelay = next

		if err := r.display.WritePixels(anim.Pixels()); err != nil {
			return res, fmt.Errorf("renderer: write frame %d: %w", s.FramesRendered, err)
		}
		r.watchdog.Feed()

		s.Overhead = r.clock.Now().Sub(start)
		s.FramesRendered++

		if s.FramesRendered == 1 && stream != nil {
			if err := r.audio.Play(stream, false); err != nil {
				log.Warn("failed to start audio", zap.String("audio", stream.Path), zap.Error(err))
			} else {
				res.AudioStarted = true
			}
		}
	}

	res.Elapsed = r.clock.Now().Sub(began)
	log.Info("clip done",
		zap.Int("frames", s.FramesRendered),
		zap.Duration("elapsed", res.Elapsed))
	if s.DeficitFrames > 0 {
		log.Warn("frames had no deliberate delay",
			zap.Int("deficit_frames", s.DeficitFrames),
			zap.Int("percent", s.DeficitPercent()))
	}
	return res, nil
}

// pause sleeps for d, feeding the watchdog every maxSleep.
func (r *Renderer) pause(d time.Duration) {
	for r.maxSleep > 0 && d > r.maxSleep {
		r.clock.Sleep(r.maxSleep)
		r.watchdog.Feed()
		d -= r.maxSleep
	}
	r.clock.Sleep(d)
}

func (r *Renderer) loadAudio(log *zap.Logger, clip catalog.ClipPair) *audio.Stream {
	if r.audio == nil || !clip.HasAudio() {
		return nil
	}
	stream, err := audio.OpenWAV(clip.AudioPath)
	if err != nil {
		log.Warn("skipping audio", zap.String("audio", clip.AudioPath), zap.Error(err))
		return nil
	}
	return stream
}
