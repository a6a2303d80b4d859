package domain

import "errors"

var (
	ErrPermissionDenied = errors.New("microphone or speech recognition permission denied")
	ErrAudioEngine      = errors.New("audio engine error")
	ErrRecognition      = errors.New("speech recognition error")
	ErrService          = errors.New("chat service error")
)

// ErrorCode identifies an error class for the UI.
type ErrorCode string

const (
	ErrorCodeNone             ErrorCode = ""
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeAudioEngine      ErrorCode = "audio_engine"
	ErrorCodeRecognition      ErrorCode = "recognition"
	ErrorCodeService          ErrorCode = "service"
	ErrorCodeClipboard        ErrorCode = "clipboard"
	ErrorCodeTurnInFlight     ErrorCode = "turn_in_flight"
	ErrorCodeUnknown          ErrorCode = "unknown"
)

// CodeOf maps an error onto the taxonomy above.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrorCodeNone
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermissionDenied
	case errors.Is(err, ErrAudioEngine):
		return ErrorCodeAudioEngine
	case errors.Is(err, ErrRecognition):
		return ErrorCodeRecognition
	case errors.Is(err, ErrService):
		return ErrorCodeService
	default:
		return ErrorCodeUnknown
	}
}
