package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"

	"talkive/internal/domain"
)

var languageNames = map[string]string{
	"en": "English",
	"tr": "Turkish",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
	"it": "Italian",
}

// PartnerConfig controls the OpenAI practice partner.
type PartnerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// HistoryLimit bounds the remembered turns per language. Zero keeps every
	// request independent.
	HistoryLimit int
	Logger       *log.Logger
}

// Partner is a language practice partner backed by OpenAI chat completions.
type Partner struct {
	client *openai.Client
	model  string
	limit  int
	log    *log.Logger

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

func NewPartner(cfg PartnerConfig) (*Partner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Partner{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limit:   cfg.HistoryLimit,
		log:     logger.WithPrefix("partner"),
		history: make(map[string][]openai.ChatCompletionMessage),
	}, nil
}

// SystemPrompt returns the partner instructions for a language tag.
func SystemPrompt(language string) string {
	return fmt.Sprintf(
		"You are Talkive, a friendly language partner. Have a natural conversation in %s. "+
			"If the user makes a grammar mistake, correct it briefly and then continue the conversation. "+
			"Keep replies short enough to be read aloud.", languageName(language))
}

// languageName returns the English name of a language tag, or the tag itself.
func languageName(language string) string {
	if name, ok := languageNames[strings.ToLower(language)]; ok {
		return name
	}
	return language
}

// CorrectionPrompt returns the grammar-correction instructions for a language tag.
func CorrectionPrompt(language string) string {
	return fmt.Sprintf(
		"Correct the grammar and spelling of the user's %s text. "+
			"Reply with the corrected text only. If it is already correct, repeat it unchanged.", languageName(language))
}

// Correct returns a grammar-corrected version of text. It is separate from the
// conversation and never touches its history.
func (p *Partner) Correct(ctx context.Context, text string, language string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: CorrectionPrompt(language)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no correction returned", domain.ErrService)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *Partner) SendChatMessage(ctx context.Context, text string, language string) (string, error) {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(language)}}
	p.mu.Lock()
	messages = append(messages, p.history[language]...)
	p.mu.Unlock()
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	messages = append(messages, user)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", domain.ErrService)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.log.Debug("completion", "language", language, "tokens", resp.Usage.TotalTokens)

	p.remember(language, user, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply})
	return reply, nil
}

// Reset forgets the conversation history for every language.
func (p *Partner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = make(map[string][]openai.ChatCompletionMessage)
}

func (p *Partner) remember(language string, turn ...openai.ChatCompletionMessage) {
	if p.limit == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	history := append(p.history[language], turn...)
	if keep := p.limit * 2; len(history) > keep {
		history = append([]openai.ChatCompletionMessage(nil), history[len(history)-keep:]...)
	}
	p.history[language] = history
}

// Ping checks that the OpenAI API accepts the configured key.
func (p *Partner) Ping(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	return nil
}
