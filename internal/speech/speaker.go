package speech

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// AudioPlayer plays an encoded audio stream to completion.
type AudioPlayer interface {
	Play(ctx context.Context, audio io.Reader) error
}

// Speaker reads assistant replies aloud. Speak returns immediately and a new
// utterance interrupts the one still playing.
type Speaker struct {
	generator Generator
	player    AudioPlayer
	log       *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSpeaker(generator Generator, player AudioPlayer, logger *log.Logger) *Speaker {
	if logger == nil {
		logger = log.Default()
	}
	return &Speaker{generator: generator, player: player, log: logger.WithPrefix("speech")}
}

func (s *Speaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.say(ctx, text)
	}()
}

func (s *Speaker) say(ctx context.Context, text string) {
	reader, writer := io.Pipe()
	generated := make(chan error, 1)
	go func() {
		err := s.generator.Generate(ctx, text, writer)
		_ = writer.CloseWithError(err)
		generated <- err
	}()

	playErr := s.player.Play(ctx, reader)
	_ = reader.Close()
	genErr := <-generated

	switch {
	case ctx.Err() != nil:
		s.log.Debug("utterance interrupted")
	case genErr != nil:
		s.log.Error("speech generation failed", "error", genErr)
	case playErr != nil:
		s.log.Error("speech playback failed", "error", playErr)
	default:
		s.log.Debug("utterance finished", "chars", len(text))
	}
}

// Stop interrupts the current utterance, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until every started utterance has finished or been interrupted.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

// Silent is used when no speech backend is configured.
type Silent struct {
	log *log.Logger
}

func NewSilent(logger *log.Logger) *Silent {
	if logger == nil {
		logger = log.Default()
	}
	return &Silent{log: logger.WithPrefix("speech")}
}

func (s *Silent) Speak(text string) {
	s.log.Debug("speech disabled", "chars", len(text))
}
