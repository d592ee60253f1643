package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// CommandPlayer plays streams through an external command line player such
// as aplay. Only one stream plays at a time; Play replaces whatever is
// currently playing.
type CommandPlayer struct {
	command string
	args    []string
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCommandPlayer returns a player that runs `command args... <path>`.
func NewCommandPlayer(log *zap.Logger, command string, args ...string) *CommandPlayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandPlayer{command: command, args: args, log: log}
}

// Play starts the stream and returns without waiting for it to finish. With
// loop set the player is restarted each time it exits until Stop is called.
func (p *CommandPlayer) Play(stream *Stream, loop bool) error {
	if err := p.Stop(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd, err := p.start(ctx, stream)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.supervise(ctx, cmd, stream, loop, done)
	return nil
}

// Stop terminates playback and waits for the player process to exit.
func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *CommandPlayer) start(ctx context.Context, stream *Stream) (*exec.Cmd, error) {
	args := append(append([]string{}, p.args...), stream.Path)
	cmd := exec.CommandContext(ctx, p.command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %s: %w", p.command, err)
	}
	return cmd, nil
}

func (p *CommandPlayer) supervise(ctx context.Context, cmd *exec.Cmd, stream *Stream, loop bool, done chan struct{}) {
	defer close(done)

	for {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.log.Warn("audio player exited with error",
				zap.String("path", stream.Path), zap.Error(err))
		}
		if !loop {
			return
		}

		cmd, err = p.start(ctx, stream)
		if err != nil {
			p.log.Warn("audio player restart failed", zap.Error(err))
			return
		}
	}
}
