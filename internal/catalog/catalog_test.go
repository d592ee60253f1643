package catalog

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/picframe/internal/source"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestCatalog(t *testing.T) (*Catalog, string, string) {
	t.Helper()
	root := t.TempDir()
	gifs := filepath.Join(root, "gifs")
	wavs := filepath.Join(root, "wavs")
	for _, dir := range []string{gifs, wavs} {
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return New(gifs, wavs, WithRand(rand.New(rand.NewSource(1)))), gifs, wavs
}

func TestEmptyCatalog(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, ".hidden.gif", "notes.txt")

	if _, err := c.GetRandomPair(""); !errors.Is(err, ErrNoMediaFound) {
		t.Errorf("Expected ErrNoMediaFound, got %v", err)
	}

	missing := New(filepath.Join(gifs, "nope"), "")
	if _, err := missing.GetRandomPair(""); !errors.Is(err, ErrNoMediaFound) {
		t.Errorf("Expected ErrNoMediaFound for missing dir, got %v", err)
	}
}

func TestCandidatesFilter(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, "b.gif", "A.GIF", ".a.gif", "c.png", "._d.gif")
	if err := os.Mkdir(filepath.Join(gifs, "sub.gif"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := c.Candidates()
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	want := []string{filepath.Join(gifs, "A.GIF"), filepath.Join(gifs, "b.gif")}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAvoidIsNeverRepeated(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, "a.gif", "b.gif", "c.gif")

	avoid := filepath.Join(gifs, "b.gif")
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		pair, err := c.GetRandomPair(avoid)
		if err != nil {
			t.Fatal(err)
		}
		if pair.AnimationPath == avoid {
			t.Fatalf("iteration %d returned the avoided clip", i)
		}
		seen[pair.AnimationPath] = true
	}
	if len(seen) != 2 {
		t.Errorf("Expected both remaining clips to be picked, saw %v", seen)
	}
}

func TestSingleClipRepeats(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, "only.gif")

	only := filepath.Join(gifs, "only.gif")
	pair, err := c.GetRandomPair(only)
	if err != nil {
		t.Fatalf("Expected repetition to be accepted, got %v", err)
	}
	if pair.AnimationPath != only {
		t.Errorf("Expected %s, got %s", only, pair.AnimationPath)
	}
}

func TestUnknownAvoidIsIgnored(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, "a.gif", "b.gif")

	for i := 0; i < 20; i++ {
		if _, err := c.GetRandomPair("/elsewhere/z.gif"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
}

func TestScenarioSingleClipWithoutAudio(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	touch(t, gifs, "x.gif")

	pair, err := c.GetRandomPair("")
	if err != nil {
		t.Fatal(err)
	}
	if pair.AnimationPath != filepath.Join(gifs, "x.gif") {
		t.Errorf("Unexpected clip %s", pair.AnimationPath)
	}
	if pair.HasAudio() {
		t.Errorf("Expected no audio, got %s", pair.AudioPath)
	}
}

func TestScenarioAvoidWithAudio(t *testing.T) {
	c, gifs, wavs := newTestCatalog(t)
	touch(t, gifs, "a.gif", "b.gif")
	touch(t, wavs, "a.wav")

	first, err := c.GetRandomPair("")
	if err != nil {
		t.Fatal(err)
	}
	switch filepath.Base(first.AnimationPath) {
	case "a.gif":
		if first.AudioPath != filepath.Join(wavs, "a.wav") {
			t.Errorf("Expected a.wav for a.gif, got %q", first.AudioPath)
		}
	case "b.gif":
		if first.HasAudio() {
			t.Errorf("Expected no audio for b.gif, got %q", first.AudioPath)
		}
	default:
		t.Fatalf("Unexpected clip %s", first.AnimationPath)
	}

	for i := 0; i < 10; i++ {
		second, err := c.GetRandomPair(filepath.Join(gifs, "a.gif"))
		if err != nil {
			t.Fatal(err)
		}
		if second.AnimationPath != filepath.Join(gifs, "b.gif") || second.HasAudio() {
			t.Fatalf("Expected b.gif without audio, got %+v", second)
		}
	}
}

func TestClipName(t *testing.T) {
	p := ClipPair{AnimationPath: "/sd/gifs/Cat Nap.gif"}
	if p.Name() != "Cat Nap" {
		t.Errorf("Expected Cat Nap, got %q", p.Name())
	}
}

func writeTinyGIF(t *testing.T, path string) {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, &gif.GIF{Image: []*image.Paletted{img, img}, Delay: []int{10, 10}}); err != nil {
		t.Fatal(err)
	}
}

func TestVerify(t *testing.T) {
	c, gifs, wavs := newTestCatalog(t)
	writeTinyGIF(t, filepath.Join(gifs, "good.gif"))
	touch(t, gifs, "broken.gif")
	touch(t, wavs, "good.wav")

	reports, err := c.Verify(context.Background(), source.NewGIFDecoder(320, 170, nil), 2)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}

	broken, good := reports[0], reports[1]
	if broken.Err == nil {
		t.Error("Expected decode error for broken.gif")
	}
	if good.Err != nil || good.Frames != 2 || good.Width != 2 {
		t.Errorf("Unexpected report for good.gif: %+v", good)
	}
	if good.AudioErr == nil {
		t.Error("Expected invalid audio for good.wav")
	}

	var buf bytes.Buffer
	if failed := PrintReports(&buf, reports); failed != 2 {
		t.Errorf("Expected 2 failures, got %d", failed)
	}
	if !strings.Contains(buf.String(), "[!] broken: unreadable") {
		t.Errorf("Unexpected output:\n%s", buf.String())
	}
}

func TestVerifyReportsOversizedClip(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	writeTinyGIF(t, filepath.Join(gifs, "huge.gif"))

	dec := source.NewGIFDecoder(320, 170, nil)
	dec.MaxFileSize = 8
	reports, err := c.Verify(context.Background(), dec, 1)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(reports) != 1 || !errors.Is(reports[0].Err, source.ErrTooLarge) {
		t.Fatalf("Expected huge.gif reported as too large, got %+v", reports)
	}
}

func TestSetDirs(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	if _, err := c.GetRandomPair(""); !errors.Is(err, ErrNoMediaFound) {
		t.Fatalf("Expected empty catalog, got %v", err)
	}

	other := t.TempDir()
	touch(t, other, "moved.gif")
	c.SetDirs(other, other)

	if c.AnimationDir() != other {
		t.Errorf("Expected animation dir %s, got %s", other, c.AnimationDir())
	}
	pair, err := c.GetRandomPair("")
	if err != nil {
		t.Fatal(err)
	}
	if pair.AnimationPath != filepath.Join(other, "moved.gif") {
		t.Errorf("Expected clip from the new directory, got %s", pair.AnimationPath)
	}
}

func TestVerifyCancelled(t *testing.T) {
	c, gifs, _ := newTestCatalog(t)
	writeTinyGIF(t, filepath.Join(gifs, "good.gif"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Verify(ctx, source.NewGIFDecoder(320, 170, nil), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
