package display

import (
	"image"
	"image/color"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const statusMargin = 8

// Canvas accepts full-screen images. *ST7789 satisfies it.
type Canvas interface {
	Show(img image.Image) error
}

// StatusScreen draws a title, a subtitle and an optional QR code.
type StatusScreen struct {
	canvas        Canvas
	width, height int
}

func NewStatusScreen(c Canvas, width, height int) *StatusScreen {
	return &StatusScreen{canvas: c, width: width, height: height}
}

func (s *StatusScreen) ShowStatus(title, subtitle, qr string) error {
	img, err := RenderStatus(s.width, s.height, title, subtitle, qr)
	if err != nil {
		return err
	}
	return s.canvas.Show(img)
}

// RenderStatus lays out a status screen: white text on black, the title at
// double size, and the QR code for qr on the right when qr is set.
func RenderStatus(width, height int, title, subtitle, qr string) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	textArea := img.Bounds()
	if qr != "" {
		size := height - 2*statusMargin
		code, err := qrcode.New(qr, qrcode.Medium)
		if err != nil {
			return nil, err
		}
		code.DisableBorder = true
		qrRect := image.Rect(width-statusMargin-size, statusMargin, width-statusMargin, statusMargin+size)
		draw.NearestNeighbor.Scale(img, qrRect, code.Image(size), image.Rect(0, 0, size, size), draw.Src, nil)
		textArea.Max.X = qrRect.Min.X - statusMargin
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	titleY := textArea.Min.Y + textArea.Dy()/2 - 2*lineHeight
	drawText(img, textArea, title, titleY, 2)
	drawText(img, textArea, subtitle, titleY+2*lineHeight+statusMargin, 1)
	return img, nil
}

// drawText renders s centred horizontally in area with its top at y,
// magnified by scale.
func drawText(dst *image.RGBA, area image.Rectangle, s string, y, scale int) {
	if s == "" {
		return
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Metrics().Height.Ceil()

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)

	x := area.Min.X + (area.Dx()-w*scale)/2
	x = max(x, area.Min.X)
	target := image.Rect(x, y, x+w*scale, y+h*scale).Intersect(area)
	if target.Empty() {
		return
	}
	src := image.Rect(0, 0, target.Dx()/scale, target.Dy()/scale)
	draw.NearestNeighbor.Scale(dst, target, small, src, draw.Over, nil)
}
