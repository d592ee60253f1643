package display

import (
	"bytes"
	"image"
	"testing"

	"periph.io/x/conn/v3/gpio"

	"github.com/ivlev/picframe/internal/device/mock"
)

type fakePin struct {
	level gpio.Level
	outs  []gpio.Level
}

func (p *fakePin) Out(l gpio.Level) error {
	p.level = l
	p.outs = append(p.outs, l)
	return nil
}

type transfer struct {
	data bool
	buf  []byte
}

type fakeBus struct {
	dc  *fakePin
	txs []transfer
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.txs = append(b.txs, transfer{data: b.dc.level == gpio.High, buf: append([]byte(nil), w...)})
	return nil
}

// commands returns each command byte with the data that followed it.
func (b *fakeBus) commands() map[byte][]byte {
	out := map[byte][]byte{}
	var cur byte
	for _, tx := range b.txs {
		if !tx.data {
			cur = tx.buf[0]
			out[cur] = nil
			continue
		}
		out[cur] = append(out[cur], tx.buf...)
	}
	return out
}

func newTestPanel(t *testing.T, cfg Config) (*ST7789, *fakeBus, *fakePin) {
	t.Helper()
	dc, rst := &fakePin{}, &fakePin{}
	bus := &fakeBus{dc: dc}
	d, err := NewST7789(bus, dc, rst, cfg, WithClock(mock.NewClock()))
	if err != nil {
		t.Fatalf("NewST7789 failed: %v", err)
	}
	return d, bus, rst
}

func TestST7789Init(t *testing.T) {
	_, bus, rst := newTestPanel(t, Config{Width: 320, Height: 170, Rotation: 90})

	if len(rst.outs) != 3 || rst.outs[1] != gpio.Low || rst.outs[2] != gpio.High {
		t.Errorf("Unexpected reset pulse %v", rst.outs)
	}
	cmds := bus.commands()
	if !bytes.Equal(cmds[cmdCOLMOD], []byte{colmodRGB565}) {
		t.Errorf("Expected RGB565 pixel format, got %x", cmds[cmdCOLMOD])
	}
	if !bytes.Equal(cmds[cmdMADCTL], []byte{0x60}) {
		t.Errorf("Expected landscape MADCTL, got %x", cmds[cmdMADCTL])
	}
	if _, ok := cmds[cmdDISPON]; !ok {
		t.Error("Display never switched on")
	}
}

func TestST7789AddressWindowUsesOffsets(t *testing.T) {
	d, bus, _ := newTestPanel(t, Config{Width: 320, Height: 170, Rotation: 90, YOffset: 35})
	bus.txs = nil

	if err := d.SetAddressWindow(0, 0, 319, 169); err != nil {
		t.Fatal(err)
	}
	cmds := bus.commands()
	if !bytes.Equal(cmds[cmdCASET], []byte{0x00, 0x00, 0x01, 0x3F}) {
		t.Errorf("Unexpected column range %x", cmds[cmdCASET])
	}
	if !bytes.Equal(cmds[cmdRASET], []byte{0x00, 35, 0x00, 204}) {
		t.Errorf("Unexpected row range %x", cmds[cmdRASET])
	}
}

func TestST7789WritePixelsChunks(t *testing.T) {
	d, bus, _ := newTestPanel(t, Config{Width: 10, Height: 10, MaxTxSize: 64})
	bus.txs = nil

	buf := make([]byte, 200)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := d.WritePixels(buf); err != nil {
		t.Fatal(err)
	}

	if len(bus.txs) != 5 {
		t.Fatalf("Expected RAMWR plus 4 chunks, got %d transfers", len(bus.txs))
	}
	if bus.txs[0].data || bus.txs[0].buf[0] != cmdRAMWR {
		t.Errorf("Expected RAMWR first, got %+v", bus.txs[0])
	}
	var got []byte
	for _, tx := range bus.txs[1:] {
		if len(tx.buf) > 64 {
			t.Errorf("Transfer of %d bytes exceeds limit", len(tx.buf))
		}
		got = append(got, tx.buf...)
	}
	if !bytes.Equal(got, buf) {
		t.Error("Pixel data corrupted across chunks")
	}
}

func TestST7789ShowDeferredWhileRefreshSuspended(t *testing.T) {
	d, bus, _ := newTestPanel(t, Config{Width: 8, Height: 4})
	bus.txs = nil

	d.SetAutoRefresh(false)
	if err := d.Show(image.NewRGBA(image.Rect(0, 0, 8, 4))); err != nil {
		t.Fatal(err)
	}
	if len(bus.txs) != 0 {
		t.Fatalf("Expected no bus traffic while suspended, got %d", len(bus.txs))
	}

	d.SetAutoRefresh(true)
	if _, ok := bus.commands()[cmdRAMWR]; !ok {
		t.Error("Expected the held image to be drawn on resume")
	}
}

func TestST7789Sleep(t *testing.T) {
	d, bus, _ := newTestPanel(t, Config{Width: 8, Height: 4})
	bus.txs = nil

	if err := d.Sleep(); err != nil {
		t.Fatal(err)
	}
	if len(bus.txs) != 2 || bus.txs[0].buf[0] != cmdDISPOFF || bus.txs[1].buf[0] != cmdSLPIN {
		t.Errorf("Unexpected sleep sequence %+v", bus.txs)
	}
}

func TestMADCTL(t *testing.T) {
	for rot, want := range map[int]byte{0: 0x00, 90: 0x60, 180: 0xC0, 270: 0xA0} {
		if got := madctl(rot); got != want {
			t.Errorf("madctl(%d) = %#02x, want %#02x", rot, got, want)
		}
	}
}

type recordingCanvas struct {
	shown []image.Image
}

func (c *recordingCanvas) Show(img image.Image) error {
	c.shown = append(c.shown, img)
	return nil
}

func countLit(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y).R > 0x80 {
				n++
			}
		}
	}
	return n
}

func TestRenderStatus(t *testing.T) {
	img, err := RenderStatus(320, 170, "USB connected", "Press button when done", "")
	if err != nil {
		t.Fatal(err)
	}
	if countLit(img, img.Bounds()) == 0 {
		t.Error("Expected text to be drawn")
	}

	withQR, err := RenderStatus(320, 170, "USB connected", "Press button when done", "http://frame.local:8000")
	if err != nil {
		t.Fatal(err)
	}
	qrArea := image.Rect(320-statusMargin-154, statusMargin, 320-statusMargin, statusMargin+154)
	if countLit(withQR, qrArea) == 0 {
		t.Error("Expected QR modules on the right")
	}
	if countLit(img, qrArea) >= countLit(withQR, qrArea) {
		t.Error("QR area should be busier with a code than without")
	}
}

func TestStatusScreenShows(t *testing.T) {
	canvas := &recordingCanvas{}
	s := NewStatusScreen(canvas, 320, 170)

	if err := s.ShowStatus("No media", "/sd/gifs", ""); err != nil {
		t.Fatal(err)
	}
	if len(canvas.shown) != 1 {
		t.Fatalf("Expected one image, got %d", len(canvas.shown))
	}
	if b := canvas.shown[0].Bounds(); b.Dx() != 320 || b.Dy() != 170 {
		t.Errorf("Unexpected status size %v", b)
	}
}
