package server

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"talkive/internal/ports"
	"talkive/internal/speech"
)

// Config controls the practice chat server.
type Config struct {
	SupportedLanguages []string
	SynthesisTimeout   time.Duration
	Logger             *log.Logger
}

// Server exposes the practice partner over HTTP.
type Server struct {
	app       *fiber.App
	chat      ports.ChatService
	generator speech.Generator
	languages map[string]struct{}
	timeout   time.Duration
	log       *log.Logger
}

type chatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// New builds the server. generator may be nil, in which case /synthesize
// always fails.
func New(chat ports.ChatService, generator speech.Generator, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 30 * time.Second
	}
	if len(cfg.SupportedLanguages) == 0 {
		cfg.SupportedLanguages = []string{"en", "tr", "es"}
	}

	s := &Server{
		chat:      chat,
		generator: generator,
		languages: make(map[string]struct{}, len(cfg.SupportedLanguages)),
		timeout:   cfg.SynthesisTimeout,
		log:       logger.WithPrefix("server"),
	}
	for _, language := range cfg.SupportedLanguages {
		s.languages[strings.ToLower(language)] = struct{}{}
	}

	app := fiber.New(fiber.Config{
		AppName:               "talkive",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Get("/", s.handleRoot)
	app.Post("/chat", s.handleChat)
	app.Post("/synthesize", s.handleSynthesize)
	s.app = app
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.log.Info("listening", "addr", addr, "languages", len(s.languages))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Talkive server is running"})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid JSON"})
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if _, ok := s.languages[language]; !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": fmt.Sprintf("Language '%s' not supported", req.Language),
		})
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "message is required"})
	}

	started := time.Now()
	reply, err := s.chat.SendChatMessage(c.UserContext(), message, language)
	if err != nil {
		s.log.Error("chat failed", "language", language, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"detail": err.Error()})
	}
	s.log.Info("chat", "language", language, "elapsed", time.Since(started))
	return c.JSON(fiber.Map{"response": reply})
}

func (s *Server) handleSynthesize(c *fiber.Ctx) error {
	var req synthesizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid JSON"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || s.generator == nil {
		return synthesisFailed(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.timeout)
	defer cancel()

	var audio bytes.Buffer
	if err := s.generator.Generate(ctx, text, &audio); err != nil || audio.Len() == 0 {
		s.log.Error("synthesis failed", "language", req.Language, "error", err)
		return synthesisFailed(c)
	}
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio.Bytes())
}

func synthesisFailed(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": "Failed to generate audio"})
}
