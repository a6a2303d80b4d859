package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Player plays MP3 audio read from stdin through an ffplay-compatible command.
type Player struct {
	command string
	args    []string
}

func NewPlayer(command string) *Player {
	if strings.TrimSpace(command) == "" {
		command = "ffplay"
	}
	return &Player{
		command: command,
		args:    []string{"-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0"},
	}
}

// Play blocks until playback ends. Cancelling ctx kills the player.
func (p *Player) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = audio
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("player failed: %w: %s", err, detail)
		}
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}
