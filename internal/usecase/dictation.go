package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

var (
	ErrNotRecording       = errors.New("no active recording")
	ErrDictationCancelled = errors.New("dictation was cancelled")
)

// DictationConfig controls capture and recognition settings.
type DictationConfig struct {
	Audio           ports.AudioConfig
	Streaming       ports.StreamingConfig
	ChunkSize       int
	FinalizeTimeout time.Duration
	Logger          *log.Logger
}

// DictationSession owns the lifecycle of speech-to-text capture. At most one
// capture is active at a time; starting again discards the previous one.
type DictationSession struct {
	authorizer ports.Authorizer
	activator  ports.AudioSessionActivator
	audio      ports.AudioCapture
	provider   ports.TranscriptionProvider
	events     ports.DictationEventSink
	cfg        DictationConfig
	log        *log.Logger

	// startMu serializes Start and Reset so a new capture never overlaps the
	// teardown of the previous one.
	startMu sync.Mutex

	mu            sync.Mutex
	state         domain.DictationState
	reason        domain.StopReason
	failure       error
	transcript    string
	isFinal       bool
	authorized    bool
	language      string
	current       *activeCapture
	generation    uint64
	cancelPending context.CancelFunc
}

func NewDictationSession(
	authorizer ports.Authorizer,
	activator ports.AudioSessionActivator,
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	events ports.DictationEventSink,
	cfg DictationConfig,
) *DictationSession {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 4 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &DictationSession{
		authorizer: authorizer,
		activator:  activator,
		audio:      audio,
		provider:   provider,
		events:     events,
		cfg:        cfg,
		log:        logger.WithPrefix("dictation"),
		state:      domain.DictationStateIdle,
		language:   cfg.Streaming.Language,
	}
}

// SetLanguage sets the recognition language used by the next Start.
func (s *DictationSession) SetLanguage(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = tag
}

// Snapshot returns the current dictation state.
func (s *DictationSession) Snapshot() domain.DictationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start begins a new capture, discarding any capture already in progress.
func (s *DictationSession) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	captureCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	previous := s.current
	s.current = nil
	s.generation++
	gen := s.generation
	authorized := s.authorized
	streaming := s.cfg.Streaming
	if s.language != "" {
		streaming.Language = s.language
	}
	s.cancelPending = cancel
	s.mu.Unlock()

	if previous != nil {
		previous.abort()
		s.log.Info("previous capture discarded")
	}

	if !authorized {
		if !s.transition(gen, domain.DictationStateAuthorizing) {
			cancel()
			return ErrDictationCancelled
		}
		decision, err := s.authorizer.RequestAuthorization(captureCtx)
		if captureCtx.Err() != nil {
			cancel()
			return ErrDictationCancelled
		}
		if err != nil {
			return s.startFailed(gen, cancel, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err))
		}
		if decision != domain.AuthorizationGranted {
			return s.startFailed(gen, cancel, domain.ErrPermissionDenied)
		}
		s.mu.Lock()
		s.authorized = true
		s.mu.Unlock()
	}

	activation, err := s.activator.Activate()
	if err != nil {
		return s.startFailed(gen, cancel, fmt.Errorf("%w: %v", domain.ErrAudioEngine, err))
	}

	stream, err := s.provider.StartStreaming(captureCtx, streaming)
	if err != nil {
		_ = activation.Deactivate()
		return s.startFailed(gen, cancel, fmt.Errorf("%w: %v", domain.ErrRecognition, err))
	}

	audioSession, err := s.audio.Start(captureCtx, s.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		_ = activation.Deactivate()
		return s.startFailed(gen, cancel, fmt.Errorf("%w: %v", domain.ErrAudioEngine, err))
	}

	active := newActiveCapture(cancel, audioSession, stream, activation)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = audioSession.Stop()
		_ = stream.Close()
		_ = activation.Deactivate()
		cancel()
		return ErrDictationCancelled
	}
	s.current = active
	s.cancelPending = nil
	s.state = domain.DictationStateRecording
	s.reason = domain.StopReasonNone
	s.failure = nil
	s.transcript = ""
	s.isFinal = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("recording", "language", streaming.Language, "restarted", previous != nil)
	s.events.DictationStateChanged(snapshot)

	go consumeTranscriptionEvents(active, func(text string, isFinal bool) {
		s.publishTranscript(active, text, isFinal)
	})
	go pumpAudioChunks(active, s.cfg.ChunkSize)
	go s.watch(active)
	return nil
}

// Stop ends the active capture and returns the final transcript. It is a
// no-op returning ErrNotRecording when nothing is being recorded.
func (s *DictationSession) Stop(ctx context.Context) (domain.DictationResult, error) {
	active, ok := s.claim(nil)
	if !ok {
		return domain.DictationResult{}, ErrNotRecording
	}
	return s.finalize(ctx, active, domain.StopReasonUserRequested)
}

// Reset tears down whatever is in flight and returns to idle. Safe from any state.
func (s *DictationSession) Reset() {
	s.mu.Lock()
	if s.cancelPending != nil {
		s.cancelPending()
		s.cancelPending = nil
	}
	s.mu.Unlock()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	active := s.current
	s.current = nil
	s.generation++
	s.state = domain.DictationStateIdle
	s.reason = domain.StopReasonNone
	s.failure = nil
	s.transcript = ""
	s.isFinal = false
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if active != nil {
		active.abort()
		s.log.Info("capture reset")
	}
	s.events.DictationStateChanged(snapshot)
}

func (s *DictationSession) watch(active *activeCapture) {
	select {
	case err := <-active.failures:
		s.failCapture(active, err)
	case <-active.finished:
		if claimed, ok := s.claim(active); ok {
			_, _ = s.finalize(context.Background(), claimed, domain.StopReasonRecognizerFinal)
		}
	case <-active.released:
	}
}

// claim moves a recording capture into Stopping so exactly one caller finalizes it.
func (s *DictationSession) claim(active *activeCapture) (*activeCapture, bool) {
	s.mu.Lock()
	if active == nil {
		active = s.current
	}
	if active == nil || s.current != active || s.state != domain.DictationStateRecording {
		s.mu.Unlock()
		return nil, false
	}
	s.state = domain.DictationStateStopping
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.events.DictationStateChanged(snapshot)
	return active, true
}

func (s *DictationSession) finalize(ctx context.Context, active *activeCapture, reason domain.StopReason) (domain.DictationResult, error) {
	finalizeCtx, cancel := context.WithTimeout(ctx, s.cfg.FinalizeTimeout)
	defer cancel()

	if err := active.stopAudio(finalizeCtx); err != nil {
		s.log.Warn("audio capture did not stop cleanly", "error", err)
	}
	_ = active.stream.CloseSend()
	streamErr := drainStream(finalizeCtx, active, s.cfg.FinalizeTimeout)
	active.release()

	text := active.aggregator.Text()
	result := domain.DictationResult{Transcript: text, Reason: reason}

	s.mu.Lock()
	if s.current != active {
		s.mu.Unlock()
		return result, ErrDictationCancelled
	}
	s.current = nil
	if text == "" && streamErr != nil {
		err := fmt.Errorf("%w: %v", domain.ErrRecognition, streamErr)
		s.setFailedLocked(err)
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.log.Error("recognition failed", "error", streamErr)
		s.events.DictationStateChanged(snapshot)
		return domain.DictationResult{}, err
	}
	changed := text != s.transcript || !s.isFinal
	s.state = domain.DictationStateStopped
	s.reason = reason
	s.transcript = text
	s.isFinal = true
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed && text != "" {
		s.events.TranscriptUpdated(text, true)
	}
	s.log.Info("stopped", "reason", reason, "chars", len(text))
	s.events.DictationStateChanged(snapshot)
	return result, nil
}

func (s *DictationSession) failCapture(active *activeCapture, err error) {
	s.mu.Lock()
	if s.current != active || s.state != domain.DictationStateRecording {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.setFailedLocked(err)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	active.abort()
	s.log.Error("capture failed", "error", err)
	s.events.DictationStateChanged(snapshot)
}

func (s *DictationSession) publishTranscript(active *activeCapture, text string, isFinal bool) {
	s.mu.Lock()
	if s.current != active || (s.state != domain.DictationStateRecording && s.state != domain.DictationStateStopping) {
		s.mu.Unlock()
		return
	}
	s.transcript = text
	s.isFinal = isFinal
	s.mu.Unlock()

	s.events.TranscriptUpdated(text, isFinal)
}

func (s *DictationSession) transition(gen uint64, state domain.DictationState) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.reason = domain.StopReasonNone
	s.failure = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.events.DictationStateChanged(snapshot)
	return true
}

func (s *DictationSession) startFailed(gen uint64, cancel context.CancelFunc, err error) error {
	cancel()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return ErrDictationCancelled
	}
	s.cancelPending = nil
	s.setFailedLocked(err)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Error("start failed", "error", err)
	s.events.DictationStateChanged(snapshot)
	return err
}

func (s *DictationSession) setFailedLocked(err error) {
	s.state = domain.DictationStateFailed
	s.reason = domain.StopReasonNone
	s.failure = err
	s.isFinal = false
}

func (s *DictationSession) snapshotLocked() domain.DictationSnapshot {
	snapshot := domain.DictationSnapshot{
		State:      s.state,
		Reason:     s.reason,
		Transcript: s.transcript,
		IsFinal:    s.isFinal,
	}
	if s.failure != nil {
		snapshot.ErrorCode = domain.CodeOf(s.failure)
		snapshot.Error = s.failure.Error()
	}
	return snapshot
}
