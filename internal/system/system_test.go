package system

import (
	"image"
	"testing"
)

func TestBufferPoolImageGeometry(t *testing.T) {
	p := NewBufferPool()
	rect := image.Rect(0, 0, 32, 16)

	img := p.GetImage(rect)
	if img.Bounds() != rect {
		t.Fatalf("Expected bounds %v, got %v", rect, img.Bounds())
	}
	img.Pix[0] = 0xff
	p.PutImage(img)

	again := p.GetImage(rect)
	if again.Pix[0] != 0 {
		t.Errorf("Expected pooled image to be cleared, got %d", again.Pix[0])
	}

	// Foreign geometries are ignored rather than pooled under the wrong key.
	p.PutImage(image.NewRGBA(image.Rect(0, 0, 3, 3)))
}

func TestBufferPoolBytes(t *testing.T) {
	p := NewBufferPool()

	b := p.GetBytes(128)
	if len(b) != 128 {
		t.Fatalf("Expected 128 bytes, got %d", len(b))
	}
	p.PutBytes(b)
	p.PutBytes(nil)

	if got := len(p.GetBytes(64)); got != 64 {
		t.Errorf("Expected 64 bytes, got %d", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
