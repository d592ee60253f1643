// Package pixel converts canvases to the wire format of 16-bit SPI panels.
package pixel

import "image"

// BytesPerPixel of the RGB565 wire format.
const BytesPerPixel = 2

// Size returns the packed size of a w x h frame.
func Size(w, h int) int {
	return w * h * BytesPerPixel
}

// PackRGB565 writes img into dst as big-endian RGB565, row by row. dst must
// hold at least Size(img.Rect.Dx(), img.Rect.Dy()) bytes. Alpha is ignored;
// fully transparent pixels come out black because RGBA is premultiplied.
func PackRGB565(dst []byte, img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	j := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			v := uint16(row[i]&0xF8)<<8 | uint16(row[i+1]&0xFC)<<3 | uint16(row[i+2])>>3
			dst[j] = byte(v >> 8)
			dst[j+1] = byte(v)
			j += 2
		}
	}
}
