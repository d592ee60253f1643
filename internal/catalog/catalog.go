// Package catalog lists the clips on the media volume and picks the next one
// to play.
package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoMediaFound means the animation directory holds no playable clip.
var ErrNoMediaFound = errors.New("no media found")

const (
	AnimationExt = ".gif"
	AudioExt     = ".wav"
)

// ClipPair is one animation and its optional same-named audio track.
type ClipPair struct {
	AnimationPath string
	AudioPath     string
}

func (c ClipPair) HasAudio() bool { return c.AudioPath != "" }

// Name is the animation file name without its extension.
func (c ClipPair) Name() string {
	base := filepath.Base(c.AnimationPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Catalog re-reads its directories on every call so that files copied in
// transfer mode are picked up without a restart.
type Catalog struct {
	animationDir string
	audioDir     string
	rnd          *rand.Rand
}

type Option func(*Catalog)

// WithRand sets the random source, for deterministic selection in tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Catalog) { c.rnd = r }
}

func New(animationDir, audioDir string, opts ...Option) *Catalog {
	c := &Catalog{
		animationDir: animationDir,
		audioDir:     audioDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

func (c *Catalog) AnimationDir() string { return c.animationDir }

// SetDirs points the catalog at new directories. It must not race with
// selection or Verify.
func (c *Catalog) SetDirs(animationDir, audioDir string) {
	c.animationDir = animationDir
	c.audioDir = audioDir
}

// Candidates returns the sorted paths of every animation in the directory,
// skipping subdirectories and hidden files.
func (c *Catalog) Candidates() ([]string, error) {
	entries, err := os.ReadDir(c.animationDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoMediaFound, c.animationDir)
		}
		return nil, fmt.Errorf("catalog: list %s: %w", c.animationDir, err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), AnimationExt) {
			continue
		}
		paths = append(paths, filepath.Join(c.animationDir, name))
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoMediaFound, c.animationDir)
	}
	return paths, nil
}

// GetRandomPair picks a clip uniformly at random. When avoid names one of at
// least two candidates it is never picked; an unknown avoid is ignored.
func (c *Catalog) GetRandomPair(avoid string) (ClipPair, error) {
	candidates, err := c.Candidates()
	if err != nil {
		return ClipPair{}, err
	}

	if avoid != "" && len(candidates) >= 2 {
		target := filepath.Clean(avoid)
		filtered := candidates[:0]
		for _, p := range candidates {
			if p != target {
				filtered = append(filtered, p)
			}
		}
		candidates = filtered
	}

	pick := candidates[c.rnd.Intn(len(candidates))]
	return c.Pair(pick), nil
}

// Pair builds the ClipPair for an animation path, probing for its audio.
func (c *Catalog) Pair(animationPath string) ClipPair {
	pair := ClipPair{AnimationPath: animationPath}
	if audio := c.audioPathFor(animationPath); fileExists(audio) {
		pair.AudioPath = audio
	}
	return pair
}

func (c *Catalog) audioPathFor(animationPath string) string {
	if c.audioDir == "" {
		return ""
	}
	base := filepath.Base(animationPath)
	return filepath.Join(c.audioDir, strings.TrimSuffix(base, filepath.Ext(base))+AudioExt)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
