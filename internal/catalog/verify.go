package catalog

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/picframe/internal/audio"
	"github.com/ivlev/picframe/internal/source"
)

// ClipReport is the outcome of checking one clip.
type ClipReport struct {
	Pair   ClipPair
	Frames int
	Width  int
	Height int
	Audio  *audio.Stream
	// Err is set when the animation cannot be decoded, AudioErr when the
	// matching WAV exists but is unusable.
	Err      error
	AudioErr error
}

func (r ClipReport) OK() bool { return r.Err == nil && r.AudioErr == nil }

// Verify opens every candidate with dec and validates its audio, running at
// most workers checks at once. Reports come back in candidate order. The
// returned error is only set for catalog-level failures; per-clip problems
// are recorded in the reports.
func (c *Catalog) Verify(ctx context.Context, dec source.Decoder, workers int) ([]ClipReport, error) {
	candidates, err := c.Candidates()
	if err != nil {
		return nil, err
	}

	reports := make([]ClipReport, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, path := range candidates {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = c.verifyOne(dec, path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Catalog) verifyOne(dec source.Decoder, path string) ClipReport {
	r := ClipReport{Pair: c.Pair(path)}

	anim, err := dec.Open(path)
	if err != nil {
		r.Err = err
	} else {
		r.Frames = anim.FrameCount()
		r.Width = anim.Width()
		r.Height = anim.Height()
		if _, err := anim.NextFrame(); err != nil {
			r.Err = fmt.Errorf("first frame: %w", err)
		}
		anim.Close()
	}

	if r.Pair.HasAudio() {
		r.Audio, r.AudioErr = audio.OpenWAV(r.Pair.AudioPath)
	}
	return r
}

// PrintReports writes one line per clip and returns the number of failures.
func PrintReports(w io.Writer, reports []ClipReport) int {
	failed := 0
	for _, r := range reports {
		status := "[*]"
		if !r.OK() {
			status = "[!]"
			failed++
		}
		fmt.Fprintf(w, "%s %s: ", status, r.Pair.Name())
		if r.Err != nil {
			fmt.Fprintf(w, "unreadable: %v\n", r.Err)
			continue
		}
		fmt.Fprintf(w, "%d frames, %dx%d", r.Frames, r.Width, r.Height)
		switch {
		case r.AudioErr != nil:
			fmt.Fprintf(w, ", audio invalid: %v\n", r.AudioErr)
		case r.Audio != nil:
			fmt.Fprintf(w, ", audio %s\n", r.Audio.Duration())
		default:
			fmt.Fprintln(w, ", no audio")
		}
	}
	return failed
}
