package source

import (
	"bufio"
	"fmt"
	"image"
	"image/gif"
	"os"
	"time"

	"golang.org/x/image/draw"

	"github.com/ivlev/picframe/internal/pixel"
	"github.com/ivlev/picframe/internal/system"
)

const (
	minDelayCentis = 1
	fallbackDelay  = 100 * time.Millisecond
)

// DefaultMaxFileSize bounds the GIFs Open accepts. Every frame is decoded up
// front, so the file size bounds both the time spent in Open and the memory
// the decoded clip holds.
const DefaultMaxFileSize = 32 << 20

// GIFDecoder opens GIF files and scales them down to fit the panel.
type GIFDecoder struct {
	// MaxFileSize is the largest file Open decodes. Zero or less disables
	// the check.
	MaxFileSize int64

	maxWidth  int
	maxHeight int
	pool      *system.BufferPool
}

// NewGIFDecoder returns a decoder whose frames never exceed maxWidth x
// maxHeight. pool may be nil.
func NewGIFDecoder(maxWidth, maxHeight int, pool *system.BufferPool) *GIFDecoder {
	if pool == nil {
		pool = system.NewBufferPool()
	}
	return &GIFDecoder{
		MaxFileSize: DefaultMaxFileSize,
		maxWidth:    maxWidth,
		maxHeight:   maxHeight,
		pool:        pool,
	}
}

func (d *GIFDecoder) Open(path string) (Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if d.MaxFileSize > 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		if fi.Size() > d.MaxFileSize {
			return nil, fmt.Errorf("%s: %w: %d bytes, limit %d", path, ErrTooLarge, fi.Size(), d.MaxFileSize)
		}
	}

	g, err := gif.DecodeAll(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode %s: no frames", path)
	}

	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() {
		screen = g.Image[0].Bounds()
	}
	outW, outH := fit(screen.Dx(), screen.Dy(), d.maxWidth, d.maxHeight)

	a := &gifAnimation{
		gif:    g,
		pool:   d.pool,
		canvas: d.pool.GetImage(screen),
		pixels: d.pool.GetBytes(pixel.Size(outW, outH)),
		width:  outW,
		height: outH,
	}
	if outW != screen.Dx() || outH != screen.Dy() {
		a.scaled = d.pool.GetImage(image.Rect(0, 0, outW, outH))
	}
	return a, nil
}

// fit scales w x h down to fit within maxW x maxH keeping the aspect ratio.
// Smaller clips are left alone.
func fit(w, h, maxW, maxH int) (int, int) {
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

type gifAnimation struct {
	gif  *gif.GIF
	pool *system.BufferPool

	canvas *image.RGBA
	scaled *image.RGBA
	saved  *image.RGBA
	pixels []byte

	width, height int
	index         int
	closed        bool
}

func (a *gifAnimation) FrameCount() int { return len(a.gif.Image) }
func (a *gifAnimation) Width() int      { return a.width }
func (a *gifAnimation) Height() int     { return a.height }
func (a *gifAnimation) Pixels() []byte  { return a.pixels }

func (a *gifAnimation) NextFrame() (time.Duration, error) {
	if a.closed {
		return 0, ErrClosed
	}

	n := len(a.gif.Image)
	i := a.index % n
	if i == 0 {
		clear(a.canvas.Pix)
	} else {
		a.dispose(i - 1)
	}

	frame := a.gif.Image[i]
	if a.disposal(i) == gif.DisposalPrevious {
		if a.saved == nil {
			a.saved = a.pool.GetImage(a.canvas.Rect)
		}
		copy(a.saved.Pix, a.canvas.Pix)
	}
	draw.Draw(a.canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

	out := a.canvas
	if a.scaled != nil {
		draw.ApproxBiLinear.Scale(a.scaled, a.scaled.Rect, a.canvas, a.canvas.Rect, draw.Src, nil)
		out = a.scaled
	}
	pixel.PackRGB565(a.pixels, out)

	a.index++
	return a.delay(i), nil
}

// dispose undoes frame i according to its disposal method before the next
// frame is drawn over it.
func (a *gifAnimation) dispose(i int) {
	switch a.disposal(i) {
	case gif.DisposalBackground:
		draw.Draw(a.canvas, a.gif.Image[i].Bounds(), image.Transparent, image.Point{}, draw.Src)
	case gif.DisposalPrevious:
		if a.saved != nil {
			copy(a.canvas.Pix, a.saved.Pix)
		}
	}
}

func (a *gifAnimation) disposal(i int) byte {
	if i < len(a.gif.Disposal) {
		return a.gif.Disposal[i]
	}
	return gif.DisposalNone
}

// delay is the display time of frame i. Frames declaring no delay, or the
// minimum 10ms, are shown for 100ms the way browsers show them, instead of
// the encoded value. Clips authored for browsers would otherwise play as
// fast as the panel can be written.
func (a *gifAnimation) delay(i int) time.Duration {
	if i >= len(a.gif.Delay) || a.gif.Delay[i] <= minDelayCentis {
		return fallbackDelay
	}
	return time.Duration(a.gif.Delay[i]) * 10 * time.Millisecond
}

// Close returns the frame buffers to the pool. It is safe to call twice.
func (a *gifAnimation) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.pool.PutImage(a.canvas)
	a.pool.PutImage(a.scaled)
	a.pool.PutImage(a.saved)
	a.pool.PutBytes(a.pixels)
	a.canvas, a.scaled, a.saved, a.pixels = nil, nil, nil, nil
	return nil
}
