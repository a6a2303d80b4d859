package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"talkive/internal/bootstrap"
	"talkive/internal/chat"
	"talkive/internal/config"
	"talkive/internal/domain"
	"talkive/internal/ports"
	"talkive/internal/usecase"
)

const (
	eventDictation  = "talkive:dictation"
	eventTranscript = "talkive:transcript"
	eventMessage    = "talkive:message"
	eventCompose    = "talkive:compose"
	eventTurn       = "talkive:turn"
	eventError      = "talkive:error"
)

// eventEmitter publishes a frontend event. The shell uses runtime.EventsEmit.
type eventEmitter func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit eventEmitter

	dictation    *usecase.DictationSession
	conversation *usecase.ConversationController
	pinger       bootstrap.Pinger
	clipboard    ports.Clipboard
	cfg          config.Config
	bootErr      error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit, clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Sinks{Dictation: a, Conversation: a})
	if err != nil {
		a.bootErr = err
		a.emitError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.attach(services)
}

func (a *App) attach(services bootstrap.Services) {
	a.cfg = services.Config
	a.dictation = services.Dictation
	a.conversation = services.Conversation
	a.pinger = services.Pinger
	a.DictationStateChanged(a.dictation.Snapshot())
}

func (a *App) shutdown(_ context.Context) {
	if a.dictation != nil {
		a.dictation.Reset()
	}
}

// StartDictation begins recording, discarding any capture in progress.
func (a *App) StartDictation() (domain.DictationSnapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.DictationSnapshot{}, err
	}
	if err := a.dictation.Start(a.ctx); err != nil && !errors.Is(err, usecase.ErrDictationCancelled) {
		return a.dictation.Snapshot(), err
	}
	return a.dictation.Snapshot(), nil
}

// StopDictation stops recording. The final transcript is sent as a voice
// message once the session has stopped.
func (a *App) StopDictation() (domain.DictationResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.DictationResult{}, err
	}
	result, err := a.dictation.Stop(a.ctx)
	if errors.Is(err, usecase.ErrNotRecording) || errors.Is(err, usecase.ErrDictationCancelled) {
		return domain.DictationResult{}, nil
	}
	return result, err
}

// ResetDictation tears down any capture and returns to idle.
func (a *App) ResetDictation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.dictation.Reset()
	return nil
}

// SendMessage submits a typed message and waits for the reply.
func (a *App) SendMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.conversation.Submit(a.ctx, text)
}

func (a *App) SetCompose(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.conversation.SetCompose(text)
	return nil
}

// SetLanguage switches the practice language for chat and recognition.
func (a *App) SetLanguage(tag string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.conversation.SetLanguage(tag)
	a.dictation.SetLanguage(a.conversation.Language())
	return nil
}

func (a *App) GetConversation() domain.ConversationSnapshot {
	if a.conversation == nil {
		return domain.ConversationSnapshot{Turn: domain.TurnStateIdle}
	}
	return a.conversation.Snapshot()
}

func (a *App) GetDictationStatus() domain.DictationSnapshot {
	if a.dictation == nil {
		if a.bootErr != nil {
			return domain.DictationSnapshot{
				State:     domain.DictationStateFailed,
				ErrorCode: domain.ErrorCodeStartup,
				Error:     a.bootErr.Error(),
			}
		}
		return domain.DictationSnapshot{State: domain.DictationStateIdle}
	}
	return a.dictation.Snapshot()
}

// CheckConnection returns the splash status line for the chat backend.
func (a *App) CheckConnection() string {
	if a.pinger == nil {
		return chat.ConnectionMessage(errors.New("not initialized"))
	}
	return chat.ConnectionMessage(a.pinger.Ping(a.ctx))
}

// CopyMessage copies a message from the log to the clipboard.
func (a *App) CopyMessage(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	for _, message := range a.conversation.Messages() {
		if message.ID != id {
			continue
		}
		if err := a.clipboard.SetText(a.ctx, message.Text); err != nil {
			a.emitError(domain.ErrorCodeClipboard, err.Error())
			return err
		}
		return nil
	}
	return fmt.Errorf("message %q not found", id)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"chatBackend":      a.cfg.Chat.Backend,
		"apiBase":          a.cfg.Chat.APIBase,
		"language":         a.GetConversation().Language,
		"speechBackend":    a.cfg.Speech.Backend,
		"recognizer":       "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.dictation == nil || a.conversation == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// DictationStateChanged emits dictation lifecycle updates to the frontend.
func (a *App) DictationStateChanged(snapshot domain.DictationSnapshot) {
	a.publish(eventDictation, map[string]any{
		"state":      string(snapshot.State),
		"reason":     string(snapshot.Reason),
		"active":     snapshot.Active(),
		"transcript": snapshot.Transcript,
		"message":    dictationMessage(snapshot),
	})
	if snapshot.State == domain.DictationStateFailed {
		a.emitError(snapshot.ErrorCode, snapshot.Error)
	}
}

// TranscriptUpdated emits the live recognizer hypothesis.
func (a *App) TranscriptUpdated(text string, isFinal bool) {
	a.publish(eventTranscript, map[string]any{"text": text, "isFinal": isFinal})
}

func (a *App) MessageAppended(message domain.Message) {
	a.publish(eventMessage, message)
}

func (a *App) ComposeChanged(text string) {
	a.publish(eventCompose, map[string]string{"text": text})
}

func (a *App) TurnStateChanged(state domain.TurnState) {
	a.publish(eventTurn, map[string]string{"state": string(state)})
}

// VoiceMessageRejected reports a voice turn refused while a reply is pending.
// The transcript stays in the compose box for a manual resend.
func (a *App) VoiceMessageRejected(transcript string) {
	a.emitError(domain.ErrorCodeTurnInFlight, transcript)
}

func (a *App) emitError(code domain.ErrorCode, detail string) {
	a.publish(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func dictationMessage(snapshot domain.DictationSnapshot) string {
	switch snapshot.State {
	case domain.DictationStateIdle:
		return "Tap the microphone to speak"
	case domain.DictationStateAuthorizing:
		return "Checking microphone access..."
	case domain.DictationStateRecording:
		return "Listening..."
	case domain.DictationStateStopping:
		return "Finishing up..."
	case domain.DictationStateStopped:
		if snapshot.Transcript == "" {
			return "Nothing was heard"
		}
		if snapshot.Reason == domain.StopReasonRecognizerFinal {
			return "Got it"
		}
		return "Sending..."
	case domain.DictationStateFailed:
		return errorMessage(snapshot.ErrorCode, snapshot.Error)
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access is not available"
	case domain.ErrorCodeAudioEngine:
		return "Audio engine error"
	case domain.ErrorCodeRecognition:
		return "Speech recognition failed"
	case domain.ErrorCodeService:
		return "Chat service error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeTurnInFlight:
		return "Still waiting for a reply; your message was kept so you can send it again"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func (a *App) publish(name string, data any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
