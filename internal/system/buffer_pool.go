package system

import (
	"image"
	"sync"
)

// BufferPool reuses frame canvases and packed pixel buffers between clips so
// that a long-running device does not churn the garbage collector on every
// playback cycle. Buffers are keyed by size; a clip always asks for the same
// geometry for its whole lifetime.
type BufferPool struct {
	mu     sync.RWMutex
	images map[image.Rectangle]*sync.Pool
	bytes  map[int]*sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		images: make(map[image.Rectangle]*sync.Pool),
		bytes:  make(map[int]*sync.Pool),
	}
}

// GetImage returns a cleared *image.RGBA with the given bounds.
func (p *BufferPool) GetImage(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.images[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.images[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(rect)
				},
			}
			p.images[rect] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

// PutImage hands an image back to the pool. Images of a geometry the pool
// never issued are dropped.
func (p *BufferPool) PutImage(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.images[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

// GetBytes returns a byte slice of exactly n bytes.
func (p *BufferPool) GetBytes(n int) []byte {
	p.mu.RLock()
	pool, exists := p.bytes[n]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.bytes[n]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					b := make([]byte, n)
					return &b
				},
			}
			p.bytes[n] = pool
		}
		p.mu.Unlock()
	}

	return *(pool.Get().(*[]byte))
}

func (p *BufferPool) PutBytes(b []byte) {
	if b == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.bytes[len(b)]
	p.mu.RUnlock()

	if exists {
		pool.Put(&b)
	}
}
