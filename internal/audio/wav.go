package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files that are not PCM RIFF/WAVE.
var ErrInvalidWAV = errors.New("invalid wav file")

const formatPCM = 1

// Stream describes a validated WAV file. The sample data itself is left on
// disk for the player to stream.
type Stream struct {
	Path          string
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
}

// Duration is the playback length of the data chunk.
func (s *Stream) Duration() time.Duration {
	frameSize := uint64(s.Channels) * uint64(s.BitsPerSample) / 8
	if frameSize == 0 || s.SampleRate == 0 {
		return 0
	}
	frames := uint64(s.DataSize) / frameSize
	return time.Duration(frames) * time.Second / time.Duration(s.SampleRate)
}

// OpenWAV reads and validates the header of the WAV file at path.
func OpenWAV(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := readHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

func readHeader(r io.ReadSeeker) (*Stream, error) {
	if !wav.NewDecoder(r).IsValidFile() {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrInvalidWAV)
	}

	// IsValidFile leaves the reader inside the header.
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(r)
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}
	if dec.WavAudioFormat != formatPCM {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrInvalidWAV, dec.WavAudioFormat)
	}

	offset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &Stream{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		DataOffset:    offset,
		DataSize:      uint32(dec.PCMLen()),
	}, nil
}
