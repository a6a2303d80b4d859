package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chat backends.
const (
	ChatBackendTalkive = "talkive"
	ChatBackendOpenAI  = "openai"
)

// Speech backends.
const (
	SpeechBackendElevenLabs = "elevenlabs"
	SpeechBackendOpenAI     = "openai"
	SpeechBackendNone       = "none"
)

// Config stores runtime configuration for the Talkive client and server.
type Config struct {
	Chat     ChatConfig
	Speech   SpeechConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Session  SessionConfig
	Server   ServerConfig
	LogLevel string
}

type ChatConfig struct {
	Backend     string
	APIBase     string
	Language    string
	Timeout     time.Duration
	OpenAIKey   string
	OpenAIModel string
}

type SpeechConfig struct {
	Backend          string
	ElevenLabsKey    string
	ElevenLabsVoice  string
	ElevenLabsModel  string
	OpenAIKey        string
	OpenAIVoice      string
	PlayerCommand    string
	SynthesisTimeout time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type SessionConfig struct {
	ChunkSize       int
	FinalizeTimeout time.Duration
	SilenceTimeout  time.Duration
}

type ServerConfig struct {
	Addr               string
	SupportedLanguages []string
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Chat: ChatConfig{
			Backend:     strings.ToLower(envOrDefault("TALKIVE_CHAT_BACKEND", ChatBackendTalkive)),
			APIBase:     strings.TrimRight(envOrDefault("TALKIVE_API_BASE", "http://127.0.0.1:8000"), "/"),
			Language:    envOrDefault("TALKIVE_LANGUAGE", "en"),
			Timeout:     time.Duration(envOrDefaultInt("TALKIVE_CHAT_TIMEOUT_MS", 60000)) * time.Millisecond,
			OpenAIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			OpenAIModel: envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Speech: SpeechConfig{
			Backend:          strings.ToLower(envOrDefault("TALKIVE_TTS_BACKEND", SpeechBackendNone)),
			ElevenLabsKey:    firstNonEmpty(os.Getenv("ELEVENLABS_API_KEY"), os.Getenv("ELEVEN_API_KEY")),
			ElevenLabsVoice:  envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			ElevenLabsModel:  envOrDefault("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
			OpenAIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			OpenAIVoice:      envOrDefault("OPENAI_TTS_VOICE", "alloy"),
			PlayerCommand:    envOrDefault("TALKIVE_PLAYER_COMMAND", "ffplay"),
			SynthesisTimeout: time.Duration(envOrDefaultInt("TALKIVE_TTS_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: time.Duration(firstNonNegativeInt("DEEPGRAM_ENDPOINTING_MS", "", 0)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("TALKIVE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     strings.TrimSpace(os.Getenv("TALKIVE_AUDIO_INPUT_FORMAT")),
			InputDevice:     strings.TrimSpace(os.Getenv("TALKIVE_AUDIO_INPUT_DEVICE")),
			SampleRate:      envOrDefaultInt("TALKIVE_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("TALKIVE_CHANNELS", 1),
		},
		Session: SessionConfig{
			ChunkSize:       envOrDefaultInt("TALKIVE_AUDIO_CHUNK_SIZE", 4096),
			FinalizeTimeout: time.Duration(firstNonNegativeInt("TALKIVE_FINALIZE_TIMEOUT_MS", "DEEPGRAM_STREAMING_GRACE_MS", 4000)) * time.Millisecond,
			SilenceTimeout:  time.Duration(firstNonNegativeInt("TALKIVE_SILENCE_TIMEOUT_MS", "", 1500)) * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:               envOrDefault("TALKIVE_SERVER_ADDR", ":8000"),
			SupportedLanguages: splitList(envOrDefault("TALKIVE_SUPPORTED_LANGUAGES", "en,tr,es")),
		},
		LogLevel: envOrDefault("TALKIVE_LOG_LEVEL", "info"),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.FinalizeTimeout <= 0 {
		cfg.Session.FinalizeTimeout = 4 * time.Second
	}
	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = time.Minute
	}
	if cfg.Speech.SynthesisTimeout <= 0 {
		cfg.Speech.SynthesisTimeout = 30 * time.Second
	}

	switch cfg.Chat.Backend {
	case ChatBackendTalkive, ChatBackendOpenAI:
	default:
		return Config{}, fmt.Errorf("unknown TALKIVE_CHAT_BACKEND %q", cfg.Chat.Backend)
	}
	switch cfg.Speech.Backend {
	case SpeechBackendElevenLabs, SpeechBackendOpenAI, SpeechBackendNone:
	default:
		return Config{}, fmt.Errorf("unknown TALKIVE_TTS_BACKEND %q", cfg.Speech.Backend)
	}

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		if key == "" {
			continue
		}
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
