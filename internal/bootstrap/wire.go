package bootstrap

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"talkive/internal/audio"
	"talkive/internal/chat"
	"talkive/internal/config"
	"talkive/internal/logging"
	"talkive/internal/permission"
	"talkive/internal/ports"
	"talkive/internal/providers/deepgram"
	"talkive/internal/server"
	"talkive/internal/speech"
	"talkive/internal/usecase"
)

const partnerHistoryTurns = 10

// Pinger checks whether the chat backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sinks receives every notification of the assembled core.
type Sinks struct {
	Dictation    ports.DictationEventSink
	Conversation ports.ConversationEventSink
}

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Logger       *log.Logger
	Dictation    *usecase.DictationSession
	Conversation *usecase.ConversationController
	Bridge       *usecase.VoiceBridge
	Pinger       Pinger
	Speaker      ports.SpeechSynthesizer
}

// Build loads configuration from the environment and wires the client core.
func Build(ctx context.Context, sinks Sinks) (Services, error) {
	if err := config.LoadDotEnv(); err != nil {
		return Services{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return Assemble(ctx, cfg, logging.New(nil, cfg.LogLevel), sinks)
}

// Assemble wires the client core from an explicit configuration.
func Assemble(ctx context.Context, cfg config.Config, logger *log.Logger, sinks Sinks) (Services, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	chatService, pinger, err := newChatBackend(cfg.Chat, logger)
	if err != nil {
		return Services{}, err
	}
	speaker, err := newSpeaker(cfg.Speech, logger)
	if err != nil {
		return Services{}, err
	}

	conversation := usecase.NewConversationController(chatService, speaker, sinks.Conversation, usecase.ConversationConfig{
		Language: cfg.Chat.Language,
		Logger:   logger,
	})
	bridge := usecase.NewVoiceBridge(ctx, conversation, sinks.Dictation, logger)

	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	provider := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		Endpointing: cfg.Deepgram.Endpointing,
	})

	dictation := usecase.NewDictationSession(
		permission.NewProbe(capture.Command(), provider.Configured, logger),
		audio.NewExclusiveSession(),
		capture,
		provider,
		bridge,
		usecase.DictationConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
				Language:       cfg.Chat.Language,
				SilenceTimeout: cfg.Session.SilenceTimeout,
			},
			ChunkSize:       cfg.Session.ChunkSize,
			FinalizeTimeout: cfg.Session.FinalizeTimeout,
			Logger:          logger,
		},
	)

	logger.Info("core assembled",
		"chat", cfg.Chat.Backend,
		"speech", cfg.Speech.Backend,
		"language", cfg.Chat.Language,
	)

	return Services{
		Config:       cfg,
		Logger:       logger,
		Dictation:    dictation,
		Conversation: conversation,
		Bridge:       bridge,
		Pinger:       pinger,
		Speaker:      speaker,
	}, nil
}

// NewServer wires the practice chat server: an OpenAI practice partner with
// stateless turns and the configured speech generator for /synthesize.
func NewServer(cfg config.Config, logger *log.Logger) (*server.Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	partner, err := chat.NewPartner(chat.PartnerConfig{
		APIKey: cfg.Chat.OpenAIKey,
		Model:  cfg.Chat.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	generator, err := NewGenerator(cfg.Speech)
	if err != nil {
		return nil, err
	}
	return server.New(partner, generator, server.Config{
		SupportedLanguages: cfg.Server.SupportedLanguages,
		SynthesisTimeout:   cfg.Speech.SynthesisTimeout,
		Logger:             logger,
	}), nil
}

// NewCorrector returns the OpenAI partner used for write-mode corrections. It
// needs OPENAI_API_KEY whatever chat backend is selected.
func NewCorrector(cfg config.Config, logger *log.Logger) (*chat.Partner, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	partner, err := chat.NewPartner(chat.PartnerConfig{
		APIKey: cfg.Chat.OpenAIKey,
		Model:  cfg.Chat.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("write mode: %w", err)
	}
	return partner, nil
}

// NewGenerator returns the configured speech generator, or nil when speech is
// disabled.
func NewGenerator(cfg config.SpeechConfig) (speech.Generator, error) {
	switch cfg.Backend {
	case config.SpeechBackendElevenLabs:
		return speech.NewElevenLabs(cfg.ElevenLabsKey, cfg.ElevenLabsVoice, cfg.ElevenLabsModel, cfg.SynthesisTimeout)
	case config.SpeechBackendOpenAI:
		return speech.NewOpenAITTS(cfg.OpenAIKey, "", cfg.OpenAIVoice)
	case config.SpeechBackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown speech backend %q", cfg.Backend)
	}
}

func newChatBackend(cfg config.ChatConfig, logger *log.Logger) (ports.ChatService, Pinger, error) {
	switch cfg.Backend {
	case config.ChatBackendOpenAI:
		partner, err := chat.NewPartner(chat.PartnerConfig{
			APIKey:       cfg.OpenAIKey,
			Model:        cfg.OpenAIModel,
			HistoryLimit: partnerHistoryTurns,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return partner, partner, nil
	case config.ChatBackendTalkive, "":
		client := chat.NewClient(cfg.APIBase, cfg.Timeout, logger)
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown chat backend %q", cfg.Backend)
	}
}

func newSpeaker(cfg config.SpeechConfig, logger *log.Logger) (ports.SpeechSynthesizer, error) {
	generator, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	if generator == nil {
		return speech.NewSilent(logger), nil
	}
	return speech.NewSpeaker(generator, speech.NewPlayer(cfg.PlayerCommand), logger), nil
}
