package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"talkive/internal/ports"
)

// activeCapture owns the resources of one recording: microphone, recognizer
// stream and audio-session activation. They are always released together.
type activeCapture struct {
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	activation ports.AudioActivation

	aggregator *transcriptAggregator
	stopping   atomic.Bool

	failures   chan error
	finished   chan struct{}
	released   chan struct{}
	eventsDone chan struct{}
	audioDone  chan struct{}

	finishOnce     sync.Once
	deactivateOnce sync.Once
	releaseOnce    sync.Once
}

func newActiveCapture(
	cancel context.CancelFunc,
	audio ports.AudioSession,
	stream ports.StreamingSession,
	activation ports.AudioActivation,
) *activeCapture {
	return &activeCapture{
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		activation: activation,
		aggregator: newTranscriptAggregator(),
		failures:   make(chan error, 1),
		finished:   make(chan struct{}),
		released:   make(chan struct{}),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}
}

// fail reports a terminal pipeline error. Only the first one is kept.
func (a *activeCapture) fail(err error) {
	select {
	case a.failures <- err:
	default:
	}
}

// recognizerFinished signals that the recognizer ended the utterance on its own.
func (a *activeCapture) recognizerFinished() {
	a.finishOnce.Do(func() { close(a.finished) })
}

// stopAudio stops the microphone, waits for the pump to exit and gives the
// audio session back. The recognizer stream is left open for finalization
// unless the pump is still stuck in SendAudio when ctx ends; the stream is then
// closed to release it.
func (a *activeCapture) stopAudio(ctx context.Context) error {
	a.stopping.Store(true)
	err := a.audio.Stop()
	select {
	case <-a.audioDone:
	case <-ctx.Done():
		_ = a.stream.Close()
		<-a.audioDone
	}
	a.deactivate()
	return err
}

// abort tears everything down without waiting for a final hypothesis.
func (a *activeCapture) abort() {
	a.stopping.Store(true)
	a.cancel()
	_ = a.audio.Stop()
	_ = a.stream.Close()
	<-a.eventsDone
	<-a.audioDone
	a.deactivate()
	a.release()
}

func (a *activeCapture) deactivate() {
	a.deactivateOnce.Do(func() {
		if a.activation != nil {
			_ = a.activation.Deactivate()
		}
	})
}

func (a *activeCapture) release() {
	a.releaseOnce.Do(func() {
		a.cancel()
		_ = a.stream.Close()
		close(a.released)
	})
}
