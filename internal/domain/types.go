package domain

import "time"

// DictationState models the voice dictation lifecycle.
type DictationState string

const (
	DictationStateIdle        DictationState = "idle"
	DictationStateAuthorizing DictationState = "authorizing"
	DictationStateRecording   DictationState = "recording"
	DictationStateStopping    DictationState = "stopping"
	DictationStateStopped     DictationState = "stopped"
	DictationStateFailed      DictationState = "failed"
)

// StopReason records why a dictation reached DictationStateStopped.
type StopReason string

const (
	StopReasonNone            StopReason = ""
	StopReasonUserRequested   StopReason = "user_requested"
	StopReasonRecognizerFinal StopReason = "recognizer_final"
)

// Authorization is the outcome of a microphone/recognition permission request.
type Authorization string

const (
	AuthorizationGranted Authorization = "granted"
	AuthorizationDenied  Authorization = "denied"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
// EndOfUtterance is set when the recognizer decided on its own that the speaker is done.
type TranscriptEvent struct {
	Kind           TranscriptKind `json:"kind"`
	Text           string         `json:"text"`
	IsSpeechFinal  bool           `json:"isSpeechFinal"`
	EndOfUtterance bool           `json:"endOfUtterance"`
}

// DictationSnapshot is a copy of the dictation state handed to observers.
type DictationSnapshot struct {
	State      DictationState `json:"state"`
	Reason     StopReason     `json:"reason,omitempty"`
	ErrorCode  ErrorCode      `json:"errorCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	Transcript string         `json:"transcript"`
	IsFinal    bool           `json:"isFinal"`
}

// Active reports whether the snapshot holds live capture resources.
func (s DictationSnapshot) Active() bool {
	return s.State == DictationStateAuthorizing ||
		s.State == DictationStateRecording ||
		s.State == DictationStateStopping
}

// DictationResult is returned once a recording has been stopped and finalized.
type DictationResult struct {
	Transcript string     `json:"transcript"`
	Reason     StopReason `json:"reason"`
}

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one immutable entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// TurnState models the chat request/response cycle.
type TurnState string

const (
	TurnStateIdle             TurnState = "idle"
	TurnStateAwaitingResponse TurnState = "awaiting_response"
)

// ConversationSnapshot is a copy of the conversation state handed to the UI.
type ConversationSnapshot struct {
	Messages []Message `json:"messages"`
	Compose  string    `json:"compose"`
	Turn     TurnState `json:"turn"`
	Language string    `json:"language"`
}
