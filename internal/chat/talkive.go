package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
)

const maxErrorBody = 4 << 10

var errInvalidResponse = errors.New("the server returned an invalid response")

// Client talks to the Talkive chat API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *log.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.WithPrefix("chat"),
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

type chatResponse struct {
	Response *string `json:"response"`
	Error    string  `json:"error"`
	Detail   string  `json:"detail"`
}

// SendChatMessage posts one user turn and returns the partner's reply.
func (c *Client) SendChatMessage(ctx context.Context, text string, language string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: text, Language: language})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	defer resp.Body.Close()

	var decoded chatResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded)

	if resp.StatusCode != http.StatusOK {
		if detail := firstNonEmpty(decoded.Detail, decoded.Error); detail != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrService, detail)
		}
		return "", fmt.Errorf("%w: %v (%s)", domain.ErrService, errInvalidResponse, resp.Status)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, errInvalidResponse)
	}
	if detail := firstNonEmpty(decoded.Error, decoded.Detail); detail != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrService, detail)
	}
	if decoded.Response == nil {
		return "", fmt.Errorf("%w: %v", domain.ErrService, errInvalidResponse)
	}

	c.log.Debug("reply received", "language", language, "elapsed", time.Since(started))
	return *decoded.Response, nil
}

// Ping reports whether the chat server answers at all. Any HTTP response
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrService, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	c.log.Debug("server reachable", "status", resp.StatusCode)
	return nil
}

// ConnectionMessage is the splash status line for a Ping result.
func ConnectionMessage(err error) string {
	if err != nil {
		return "Connection Failed.\nPlease make sure the API server is running."
	}
	return "Connection Successful!"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
