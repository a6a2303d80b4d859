package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultModel   = "nova-2"
	writeTimeout   = 10 * time.Second
)

var errAudioClosed = errors.New("audio stream is already closed")

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram live streaming.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Configured reports whether an API key is present.
func (p *Provider) Configured() bool {
	return strings.TrimSpace(p.cfg.APIKey) != ""
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if !p.Configured() {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to Deepgram websocket (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := newStreamingSession(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events  chan domain.TranscriptEvent
	audio   chan []byte
	closing chan struct{}
	halted  chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	haltOnce sync.Once

	errMu sync.Mutex
	err   error

	// sendDone is closed by CloseSend. SendAudio never holds a lock while
	// blocked, so CloseSend and Close cannot queue behind a stalled send.
	sendDone chan struct{}

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newStreamingSession(conn *websocket.Conn) *streamingSession {
	s := &streamingSession{
		conn:    conn,
		events:  make(chan domain.TranscriptEvent, 64),
		audio:    make(chan []byte, 32),
		sendDone: make(chan struct{}),
		closing:  make(chan struct{}),
		halted:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errAudioClosed
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errAudioClosed
	case <-s.closing:
		return errors.New("session closed")
	case <-s.halted:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend stops the audio stream and asks Deepgram to flush its final results.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() { close(s.sendDone) })
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	select {
	case <-s.closing:
		// Errors caused by a local Close are not recognizer failures.
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// halt stops both loops once either side of the connection is finished.
func (s *streamingSession) halt() {
	s.haltOnce.Do(func() { close(s.halted) })
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if !s.write(websocket.BinaryMessage, chunk, "failed to send audio") {
				return
			}
		case <-s.sendDone:
			// Flush what was queued before CloseSend, then request final results.
			for flushed := false; !flushed; {
				select {
				case chunk := <-s.audio:
					if !s.write(websocket.BinaryMessage, chunk, "failed to send audio") {
						return
					}
				default:
					flushed = true
				}
			}
			s.write(websocket.TextMessage, closeStreamMessage, "failed to close stream")
			return
		case <-s.halted:
			return
		}
	}
}

// write sends one frame under a write deadline. A failed write halts the
// session and closes the connection so the reader exits too.
func (s *streamingSession) write(kind int, payload []byte, what string) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(kind, payload); err != nil {
		s.setErr(fmt.Errorf("%s: %w", what, err))
		s.halt()
		_ = s.conn.Close()
		return false
	}
	return true
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()
	defer s.halt()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		event, ok, err := decodeEvent(payload)
		if err != nil {
			s.setErr(err)
			return
		}
		if ok && !s.emit(event) {
			return
		}
	}
}

// emit blocks until the consumer takes the event so final results are never
// dropped. It gives up only once the session is closed locally.
func (s *streamingSession) emit(event domain.TranscriptEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.closing:
		return false
	}
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	model := providerCfg.Model
	if model == "" {
		model = defaultModel
	}

	query := listenURL.Query()
	query.Set("model", model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))

	language := firstNonEmpty(streamCfg.Language, providerCfg.Language)
	if language != "" {
		query.Set("language", language)
	}
	if providerCfg.Endpointing > 0 {
		query.Set("endpointing", strconv.FormatInt(providerCfg.Endpointing.Milliseconds(), 10))
	}
	if streamCfg.SilenceTimeout > 0 {
		// utterance_end_ms requires interim results.
		query.Set("interim_results", "true")
		query.Set("vad_events", "true")
		query.Set("utterance_end_ms", strconv.FormatInt(streamCfg.SilenceTimeout.Milliseconds(), 10))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
