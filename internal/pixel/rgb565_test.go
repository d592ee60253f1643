package pixel

import (
	"image"
	"image/color"
	"testing"
)

func TestPackRGB565(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 1))
	img.Set(0, 0, color.RGBA{R: 0xFF, A: 0xFF})
	img.Set(1, 0, color.RGBA{G: 0xFF, A: 0xFF})
	img.Set(2, 0, color.RGBA{B: 0xFF, A: 0xFF})
	img.Set(3, 0, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})

	dst := make([]byte, Size(4, 1))
	PackRGB565(dst, img)

	want := []byte{0xF8, 0x00, 0x07, 0xE0, 0x00, 0x1F, 0xFF, 0xFF}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("byte %d: got %#02x, want %#02x (full %x)", i, dst[i], want[i], dst)
		}
	}
}

func TestPackRGB565SubImage(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 8, 8))
	base.Set(3, 3, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})

	sub := base.SubImage(image.Rect(3, 3, 5, 5)).(*image.RGBA)
	dst := make([]byte, Size(2, 2))
	PackRGB565(dst, sub)

	if dst[0] != 0xFF || dst[1] != 0xFF {
		t.Errorf("Expected white first pixel, got %x", dst[:2])
	}
	for _, b := range dst[2:] {
		if b != 0 {
			t.Fatalf("Expected remaining pixels black, got %x", dst)
		}
	}
}
