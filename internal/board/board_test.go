package board

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/ivlev/picframe/internal/device/mock"
)

func readAttr(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.TrimSpace(string(data))
}

func newTestGadget(t *testing.T, controllers ...string) *MassStorageGadget {
	t.Helper()
	root := t.TempDir()
	udcDir := filepath.Join(root, "class", "udc")
	if err := os.MkdirAll(udcDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, c := range controllers {
		if err := os.WriteFile(filepath.Join(udcDir, c), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	g := NewMassStorageGadget(filepath.Join(root, "usb_gadget", "picframe"), "", zaptest.NewLogger(t))
	g.udcClassDir = udcDir
	return g
}

func TestMassStorageGadget(t *testing.T) {
	g := newTestGadget(t, "fe980000.usb")

	if err := g.Expose("/dev/mmcblk1p1"); err != nil {
		t.Fatalf("Expose failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(g.lun(), "file")); got != "/dev/mmcblk1p1" {
		t.Errorf("Expected backing file set, got %q", got)
	}
	if got := readAttr(t, filepath.Join(g.lun(), "ro")); got != "0" {
		t.Errorf("Expected read-write LUN, got %q", got)
	}
	if got := readAttr(t, filepath.Join(g.dir, "UDC")); got != "fe980000.usb" {
		t.Errorf("Expected gadget bound to fe980000.usb, got %q", got)
	}
	link := filepath.Join(g.dir, "configs", gadgetConfig, massStorageFunction)
	if fi, err := os.Lstat(link); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("Expected function linked into config: %v", err)
	}

	// A second expose reuses the existing layout.
	if err := g.Expose("/dev/mmcblk1p1"); err != nil {
		t.Fatalf("Second Expose failed: %v", err)
	}

	if err := g.Withdraw(); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(g.dir, "UDC")); got != "" {
		t.Errorf("Expected gadget unbound, got %q", got)
	}
	if got := readAttr(t, filepath.Join(g.lun(), "file")); got != "" {
		t.Errorf("Expected backing file cleared, got %q", got)
	}
}

func TestMassStorageGadgetWithoutController(t *testing.T) {
	g := newTestGadget(t)
	if err := g.Expose("/dev/sda1"); err == nil {
		t.Error("Expected error with no USB device controller")
	}
}

type fakePWM struct {
	duties []gpio.Duty
	levels []gpio.Level
	noPWM  bool
}

func (p *fakePWM) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return nil
}

func (p *fakePWM) PWM(duty gpio.Duty, f physic.Frequency) error {
	if p.noPWM {
		return errors.New("pwm not supported")
	}
	p.duties = append(p.duties, duty)
	return nil
}

func TestBacklightFadeOut(t *testing.T) {
	clock := mock.NewClock()
	wd := &mock.Watchdog{}
	pin := &fakePWM{}
	bl := NewBacklight(pin, wd, clock)

	start := clock.Now()
	if err := bl.FadeOut(400 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if len(pin.duties) != backlightSteps-1 {
		t.Fatalf("Expected %d dimming steps, got %d", backlightSteps-1, len(pin.duties))
	}
	for i := 1; i < len(pin.duties); i++ {
		if pin.duties[i] >= pin.duties[i-1] {
			t.Fatalf("Duty cycle not decreasing at step %d: %v", i, pin.duties)
		}
	}
	if got := pin.levels[len(pin.levels)-1]; got != gpio.Low {
		t.Errorf("Expected backlight off at the end, got %v", got)
	}
	if elapsed := clock.Now().Sub(start); elapsed != 380*time.Millisecond {
		t.Errorf("Expected 380ms of dimming, got %s", elapsed)
	}
	if wd.Feeds() != backlightSteps-1 {
		t.Errorf("Expected a feed per step, got %d", wd.Feeds())
	}
}

func TestBacklightWithoutPWM(t *testing.T) {
	pin := &fakePWM{noPWM: true}
	if err := NewBacklight(pin, nil, mock.NewClock()).FadeOut(time.Second); err != nil {
		t.Fatal(err)
	}
	if len(pin.levels) != 1 || pin.levels[0] != gpio.Low {
		t.Errorf("Expected immediate off, got %v", pin.levels)
	}
}

type fakePanel struct {
	sleeps, wakes int
}

func (p *fakePanel) Sleep() error { p.sleeps++; return nil }
func (p *fakePanel) Wake() error  { p.wakes++; return nil }

// fakeWake reports an edge on the n-th wait and reads pressed for the
// following reads until released.
type fakeWake struct {
	edgeAfter  int
	pressedFor int
	waits      int
	reads      int
}

func (w *fakeWake) WaitForEdge(timeout time.Duration) bool {
	w.waits++
	return w.waits >= w.edgeAfter
}

func (w *fakeWake) Read() bool {
	w.reads++
	// Active low: pressed reads low.
	return w.waits < w.edgeAfter || w.reads > w.pressedFor
}

func TestSleeperHalt(t *testing.T) {
	panel := &fakePanel{}
	audio := &mock.Audio{}
	wake := &fakeWake{edgeAfter: 3, pressedFor: 4}
	wd := &mock.Watchdog{}
	bl := NewBacklight(&fakePWM{}, wd, mock.NewClock())

	s := &Sleeper{
		Mode:      SleepHalt,
		ActiveLow: true,
		Fade:      100 * time.Millisecond,
		Backlight: bl,
		Panel:     panel,
		Audio:     audio,
		Wake:      wake,
		Watchdog:  wd,
		Clock:     mock.NewClock(),
		Log:       zaptest.NewLogger(t),
	}

	if err := s.Sleep(context.Background()); err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if audio.Stops != 1 {
		t.Errorf("Expected audio stopped, got %d stops", audio.Stops)
	}
	if panel.sleeps != 1 || panel.wakes != 1 {
		t.Errorf("Expected panel slept and woken once, got %d/%d", panel.sleeps, panel.wakes)
	}
	if wake.waits != 3 {
		t.Errorf("Expected to wake on the third edge wait, got %d", wake.waits)
	}
	if wake.reads <= wake.pressedFor {
		t.Errorf("Expected to wait for release, only %d reads", wake.reads)
	}
}

func TestSleeperHaltCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Sleeper{Mode: SleepHalt, ActiveLow: true, Wake: &fakeWake{edgeAfter: 1 << 30}}
	if err := s.Sleep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSleeperSuspend(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state")
	wakeupPath := filepath.Join(dir, "wakeup")
	panel := &fakePanel{}

	var writes []string
	s := &Sleeper{
		Mode:           SleepSuspend,
		PowerStatePath: statePath,
		WakeupPath:     wakeupPath,
		Panel:          panel,
		Log:            zaptest.NewLogger(t),
	}
	s.writeAttr = func(path, value string) error {
		writes = append(writes, filepath.Base(path)+"="+value)
		return write(path, value)
	}

	if err := s.Sleep(context.Background()); err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}

	want := []string{"wakeup=enabled", "state=mem", "wakeup=disabled"}
	if strings.Join(writes, " ") != strings.Join(want, " ") {
		t.Errorf("Expected writes %v, got %v", want, writes)
	}
	if got := readAttr(t, statePath); got != "mem" {
		t.Errorf("Expected suspend to RAM, got %q", got)
	}
	if got := readAttr(t, wakeupPath); got != "disabled" {
		t.Errorf("Expected wakeup disarmed after resume, got %q", got)
	}
	if panel.sleeps != 1 || panel.wakes != 1 {
		t.Errorf("Expected panel slept and woken once, got %d/%d", panel.sleeps, panel.wakes)
	}
}

func TestSleeperSuspendWithoutWakeupHalts(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state")
	wake := &fakeWake{edgeAfter: 2, pressedFor: 1}

	s := &Sleeper{
		Mode:           SleepSuspend,
		PowerStatePath: statePath,
		WakeupPath:     filepath.Join(dir, "missing", "wakeup"),
		ActiveLow:      true,
		Wake:           wake,
		Clock:          mock.NewClock(),
		Log:            zaptest.NewLogger(t),
	}

	if err := s.Sleep(context.Background()); err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if wake.waits != 2 {
		t.Errorf("Expected to halt until the button edge, got %d waits", wake.waits)
	}
	if _, err := os.Stat(statePath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no suspend without a wake source, stat returned %v", err)
	}
}
