package deepgram

import (
	"encoding/json"
	"errors"
	"strings"

	"talkive/internal/domain"
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

// decodeEvent turns one provider message into a transcript event. Metadata and
// empty results report ok=false; provider errors are returned as err.
func decodeEvent(payload []byte) (domain.TranscriptEvent, bool, error) {
	var response deepgramResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return domain.TranscriptEvent{}, false, nil
	}

	switch {
	case strings.EqualFold(response.Type, "Error"):
		message := firstNonEmpty(response.Message, response.Description)
		if message == "" {
			message = "deepgram returned an unknown error"
		}
		return domain.TranscriptEvent{}, false, errors.New(message)
	case strings.EqualFold(response.Type, "UtteranceEnd"):
		return domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, EndOfUtterance: true}, true, nil
	}

	transcript := extractTranscript(response)
	if transcript == "" {
		return domain.TranscriptEvent{}, false, nil
	}

	event := domain.TranscriptEvent{Text: transcript, IsSpeechFinal: response.SpeechFinal}
	if response.IsFinal || response.SpeechFinal {
		event.Kind = domain.TranscriptKindFinal
	} else {
		event.Kind = domain.TranscriptKindPartial
	}
	return event, true, nil
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}
