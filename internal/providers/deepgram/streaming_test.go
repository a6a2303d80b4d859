package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{})
	if p.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
	if p.Configured() {
		t.Fatalf("expected provider without key to be unconfigured")
	}
}

func TestProviderStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: "  "})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"wss://api.deepgram.com/v1/listen",
		"encoding=linear16",
		"sample_rate=16000",
		"channels=1",
		"interim_results=false",
	} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in url: %s", want, url)
		}
	}
	if strings.Contains(url, "utterance_end_ms") {
		t.Fatalf("did not expect utterance detection without a silence timeout: %s", url)
	}
}

func TestBuildListenURLSessionLanguageWins(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(
		Config{APIBaseURL: "http://localhost:8080/v1", Model: "m", Language: "en-US", SmartFormat: true},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, Language: "tr"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "ws://localhost:8080/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	if !strings.Contains(url, "language=tr") {
		t.Fatalf("expected session language in url: %s", url)
	}
	if !strings.Contains(url, "smart_format=true") {
		t.Fatalf("expected smart_format in url: %s", url)
	}
}

func TestBuildListenURLSilenceTimeoutEnablesUtteranceEnd(t *testing.T) {
	t.Parallel()

	url, err := buildListenURL(
		Config{Endpointing: 300 * time.Millisecond},
		ports.StreamingConfig{SilenceTimeout: 1500 * time.Millisecond},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"utterance_end_ms=1500", "interim_results=true", "vad_events=true", "endpointing=300", "model=nova-2"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %q in url: %s", want, url)
		}
	}
}

func TestBuildListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := buildListenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestStreamingSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &streamingSession{sendDone: make(chan struct{})}
	close(s.sendDone)
	if err := s.SendAudio([]byte("x")); !errors.Is(err, errAudioClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestStreamingSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &streamingSession{sendDone: make(chan struct{})}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func newStalledSession() *streamingSession {
	s := &streamingSession{
		audio:    make(chan []byte, 1),
		sendDone: make(chan struct{}),
		closing:  make(chan struct{}),
		halted:   make(chan struct{}),
	}
	s.audio <- []byte("queued")
	return s
}

func TestStreamingSessionCloseSendReleasesBlockedSend(t *testing.T) {
	t.Parallel()

	s := newStalledSession()
	errs := make(chan error, 1)
	go func() { errs <- s.SendAudio([]byte("pcm")) }()

	closed := make(chan struct{})
	go func() {
		_ = s.CloseSend()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("CloseSend blocked behind a stalled SendAudio")
	}
	select {
	case err := <-errs:
		if !errors.Is(err, errAudioClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("SendAudio stayed blocked after CloseSend")
	}
}

func TestStreamingSessionClosingReleasesBlockedSend(t *testing.T) {
	t.Parallel()

	s := newStalledSession()
	errs := make(chan error, 1)
	go func() { errs <- s.SendAudio([]byte("pcm")) }()

	close(s.closing)
	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected session closed error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("SendAudio stayed blocked after close")
	}
}

func TestStreamingSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &streamingSession{closing: make(chan struct{})}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("boom"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("expected non-close error to be captured")
	}
}

func TestStreamingSessionSetErrFirstWins(t *testing.T) {
	t.Parallel()

	s := &streamingSession{closing: make(chan struct{})}
	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

func TestStreamingSessionIgnoresErrorsAfterLocalClose(t *testing.T) {
	t.Parallel()

	s := &streamingSession{closing: make(chan struct{})}
	close(s.closing)
	s.setErr(errors.New("use of closed network connection"))
	if s.waitErr() != nil {
		t.Fatalf("expected errors after close to be ignored")
	}
}

// fakeListenServer replies to every binary frame with scripted results and
// flushes a final result when the client sends CloseStream.
func fakeListenServer(t *testing.T, onAudio []string, onClose []string) (*httptest.Server, chan string) {
	t.Helper()

	requests := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Header.Get("Authorization") + " " + r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sent := 0
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				if sent < len(onAudio) {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(onAudio[sent]))
					sent++
				}
				continue
			}
			if string(payload) == string(closeStreamMessage) {
				for _, message := range onClose {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(message))
				}
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func TestStreamingSessionRoundTrip(t *testing.T) {
	t.Parallel()

	server, requests := fakeListenServer(t,
		[]string{`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`},
		[]string{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there"}]}}`},
	)

	provider := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL + "/v1"})
	stream, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{Language: "en", InterimResults: true})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	request := <-requests
	if !strings.HasPrefix(request, "Token secret ") || !strings.Contains(request, "language=en") {
		t.Fatalf("unexpected upgrade request: %q", request)
	}

	if err := stream.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	first := <-stream.Events()
	if first.Kind != domain.TranscriptKindPartial || first.Text != "hel" {
		t.Fatalf("unexpected partial: %+v", first)
	}

	if err := stream.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	var finals []domain.TranscriptEvent
	for event := range stream.Events() {
		finals = append(finals, event)
	}
	if len(finals) != 1 || finals[0].Kind != domain.TranscriptKindFinal || finals[0].Text != "hello there" {
		t.Fatalf("unexpected final events: %+v", finals)
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestStreamingSessionSurfacesProviderError(t *testing.T) {
	t.Parallel()

	server, _ := fakeListenServer(t,
		[]string{`{"type":"Error","description":"bad audio"}`},
		nil,
	)

	provider := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL})
	stream, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}
	if err := stream.SendAudio([]byte{0, 0}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	for range stream.Events() {
	}
	if err := stream.Wait(); err == nil || err.Error() != "bad audio" {
		t.Fatalf("expected provider error, got %v", err)
	}
	_ = stream.Close()
}

func TestStreamingSessionClosesOnContextCancel(t *testing.T) {
	t.Parallel()

	server, _ := fakeListenServer(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	provider := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL})
	stream, err := provider.StartStreaming(ctx, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-stream.Events():
		for ok {
			_, ok = <-stream.Events()
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not close after cancel")
	}
	if err := stream.Wait(); err != nil {
		t.Fatalf("expected local close to be clean, got %v", err)
	}
}
