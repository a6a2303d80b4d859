package ports

import (
	"context"
	"io"
	"time"

	"talkive/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioActivation is a held process-wide audio session.
type AudioActivation interface {
	Deactivate() error
}

// AudioSessionActivator hands out the exclusive process-wide audio session.
type AudioSessionActivator interface {
	Activate() (AudioActivation, error)
	Active() bool
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
	SilenceTimeout time.Duration
}

// StreamingSession is an active recognizer stream.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Authorizer asks for microphone and speech recognition permission.
type Authorizer interface {
	RequestAuthorization(ctx context.Context) (domain.Authorization, error)
}

// ChatService is the remote practice partner.
type ChatService interface {
	SendChatMessage(ctx context.Context, text string, language string) (string, error)
}

// SpeechSynthesizer speaks text aloud. Speak does not block on playback.
type SpeechSynthesizer interface {
	Speak(text string)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// DictationEventSink observes dictation state and transcript changes.
type DictationEventSink interface {
	DictationStateChanged(snapshot domain.DictationSnapshot)
	TranscriptUpdated(text string, isFinal bool)
}

// ConversationEventSink observes the conversation log and turn cycle.
type ConversationEventSink interface {
	MessageAppended(message domain.Message)
	ComposeChanged(text string)
	TurnStateChanged(state domain.TurnState)
}
