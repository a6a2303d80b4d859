package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrTurnInFlight = errors.New("a response is still pending")
)

const defaultLanguage = "en"

// ConversationConfig controls the conversation controller.
type ConversationConfig struct {
	Language string
	Logger   *log.Logger
	Now      func() time.Time
}

// ConversationController owns the message log and the send/await/receive turn
// cycle. At most one chat request is in flight at a time.
type ConversationController struct {
	chat    ports.ChatService
	speaker ports.SpeechSynthesizer
	events  ports.ConversationEventSink
	log     *log.Logger
	now     func() time.Time

	mu       sync.Mutex
	messages []domain.Message
	compose  string
	turn     domain.TurnState
	language string
}

func NewConversationController(
	chat ports.ChatService,
	speaker ports.SpeechSynthesizer,
	events ports.ConversationEventSink,
	cfg ConversationConfig,
) *ConversationController {
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if events == nil {
		events = nopConversationSink{}
	}
	return &ConversationController{
		chat:     chat,
		speaker:  speaker,
		events:   events,
		log:      logger.WithPrefix("conversation"),
		now:      cfg.Now,
		turn:     domain.TurnStateIdle,
		language: cfg.Language,
	}
}

// Submit sends text as a user turn and waits for the reply. Chat failures are
// appended to the log as assistant messages rather than returned.
func (c *ConversationController) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if c.turn == domain.TurnStateAwaitingResponse {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	request := c.appendLocked(domain.SenderUser, text)
	composeCleared := c.compose != ""
	c.compose = ""
	c.turn = domain.TurnStateAwaitingResponse
	language := c.language
	c.mu.Unlock()

	c.events.MessageAppended(request)
	if composeCleared {
		c.events.ComposeChanged("")
	}
	c.events.TurnStateChanged(domain.TurnStateAwaitingResponse)

	reply, err := c.chat.SendChatMessage(ctx, text, language)
	replyText := reply
	if err != nil {
		c.log.Error("chat request failed", "language", language, "error", err)
		replyText = "Error: " + err.Error()
	}

	c.mu.Lock()
	response := c.appendLocked(domain.SenderAssistant, replyText)
	c.turn = domain.TurnStateIdle
	c.mu.Unlock()

	c.events.MessageAppended(response)
	c.events.TurnStateChanged(domain.TurnStateIdle)
	if err == nil {
		c.speaker.Speak(reply)
	}
	return nil
}

// SendCompose submits the current compose buffer.
func (c *ConversationController) SendCompose(ctx context.Context) error {
	c.mu.Lock()
	text := c.compose
	c.mu.Unlock()
	return c.Submit(ctx, text)
}

// SendVoiceMessage submits a finished dictation. An empty transcript sends nothing.
func (c *ConversationController) SendVoiceMessage(ctx context.Context, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		c.log.Debug("empty transcript, nothing to send")
		return nil
	}
	return c.Submit(ctx, transcript)
}

// SetCompose replaces the compose buffer.
func (c *ConversationController) SetCompose(text string) {
	c.mu.Lock()
	if c.compose == text {
		c.mu.Unlock()
		return
	}
	c.compose = text
	c.mu.Unlock()

	c.events.ComposeChanged(text)
}

// MirrorTranscript shows live dictation text in the compose buffer.
func (c *ConversationController) MirrorTranscript(text string) {
	c.SetCompose(text)
}

// SetLanguage selects the practice language for subsequent turns.
func (c *ConversationController) SetLanguage(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = tag
}

func (c *ConversationController) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

func (c *ConversationController) TurnState() domain.TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// Messages returns a copy of the log in conversation order.
func (c *ConversationController) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *ConversationController) Snapshot() domain.ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]domain.Message, len(c.messages))
	copy(messages, c.messages)
	return domain.ConversationSnapshot{
		Messages: messages,
		Compose:  c.compose,
		Turn:     c.turn,
		Language: c.language,
	}
}

func (c *ConversationController) appendLocked(sender domain.Sender, text string) domain.Message {
	message := domain.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, message)
	return message
}

type nopConversationSink struct{}

func (nopConversationSink) MessageAppended(domain.Message)    {}
func (nopConversationSink) ComposeChanged(string)             {}
func (nopConversationSink) TurnStateChanged(domain.TurnState) {}
