package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/haguro/elevenlabs-go"
	"github.com/sashabaranov/go-openai"
)

// Generator renders text as MP3 audio into w.
type Generator interface {
	Generate(ctx context.Context, text string, w io.Writer) error
}

// ElevenLabs generates speech with the ElevenLabs streaming API.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	model   string
	timeout time.Duration
}

func NewElevenLabs(apiKey string, voiceID string, model string, timeout time.Duration) (*ElevenLabs, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is not configured")
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, errors.New("ELEVENLABS_VOICE_ID is not configured")
	}
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabs{apiKey: apiKey, voiceID: voiceID, model: model, timeout: timeout}, nil
}

func (e *ElevenLabs) Generate(ctx context.Context, text string, w io.Writer) error {
	client := elevenlabs.NewClient(ctx, e.apiKey, e.timeout)
	err := client.TextToSpeechStream(w, e.voiceID, elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: e.model,
	})
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}
	return nil
}

// OpenAITTS generates speech with the OpenAI audio API.
type OpenAITTS struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

func NewOpenAITTS(apiKey string, baseURL string, voice string) (*OpenAITTS, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAITTS{client: openai.NewClientWithConfig(cfg), voice: openai.SpeechVoice(voice)}, nil
}

func (o *OpenAITTS) Generate(ctx context.Context, text string, w io.Writer) error {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}
	defer resp.Close()

	if _, err := io.Copy(w, resp); err != nil {
		return fmt.Errorf("failed to read speech audio: %w", err)
	}
	return nil
}
