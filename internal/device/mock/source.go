package mock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/picframe/internal/source"
)

// Clip scripts one animation. Each NextFrame returns Delays[i] and advances
// Clock by Overheads[i], both indexed modulo their length.
type Clip struct {
	Width, Height int
	Delays        []time.Duration
	Overheads     []time.Duration
	// FailAt makes NextFrame fail on that zero-based frame when positive.
	FailAt int
}

// Decoder serves scripted clips by path. Unknown paths fail to open.
type Decoder struct {
	Clock *Clock
	Clips map[string]*Clip

	Opened []string
	opens  int
	closes int
}

func NewDecoder(clock *Clock) *Decoder {
	return &Decoder{Clock: clock, Clips: make(map[string]*Clip)}
}

// Add registers clip under path.
func (d *Decoder) Add(path string, clip *Clip) {
	d.Clips[filepath.Clean(path)] = clip
}

func (d *Decoder) Open(path string) (source.Animation, error) {
	clip, ok := d.Clips[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	d.Opened = append(d.Opened, path)
	d.opens++
	return &Animation{decoder: d, clip: clip, pixels: make([]byte, clip.Width*clip.Height*2)}, nil
}

// Live is the number of animations opened but not yet closed.
func (d *Decoder) Live() int { return d.opens - d.closes }

// Animation is a scripted source.Animation.
type Animation struct {
	decoder *Decoder
	clip    *Clip
	pixels  []byte
	index   int
	closed  bool
}

func (a *Animation) FrameCount() int { return len(a.clip.Delays) }
func (a *Animation) Width() int      { return a.clip.Width }
func (a *Animation) Height() int     { return a.clip.Height }
func (a *Animation) Pixels() []byte  { return a.pixels }

func (a *Animation) NextFrame() (time.Duration, error) {
	if a.closed {
		return 0, source.ErrClosed
	}
	i := a.index
	if a.clip.FailAt > 0 && i == a.clip.FailAt {
		return 0, errors.New("corrupt frame")
	}
	a.index++

	if n := len(a.clip.Overheads); n > 0 && a.decoder.Clock != nil {
		a.decoder.Clock.Advance(a.clip.Overheads[i%n])
	}
	if len(a.pixels) > 0 {
		a.pixels[0] = byte(i)
	}
	return a.clip.Delays[i%len(a.clip.Delays)], nil
}

func (a *Animation) Close() error {
	if !a.closed {
		a.closed = true
		a.decoder.closes++
	}
	return nil
}

// WriteWAV writes a valid one-second 8 kHz mono PCM file and returns its
// path.
func WriteWAV(dir, name string) (string, error) {
	const rate = 8000
	var buf []byte
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, 36+rate)
	buf = append(buf, "WAVEfmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, rate)
	buf = binary.LittleEndian.AppendUint32(buf, rate)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, 8)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, rate)
	buf = append(buf, make([]byte, rate)...)

	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, buf, 0644)
}
