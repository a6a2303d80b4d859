package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeAuthorizer struct {
	mu       sync.Mutex
	decision domain.Authorization
	err      error
	calls    int
}

func (f *fakeAuthorizer) RequestAuthorization(_ context.Context) (domain.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.decision == "" {
		return domain.AuthorizationGranted, nil
	}
	return f.decision, nil
}

func (f *fakeAuthorizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeActivator struct {
	mu          sync.Mutex
	active      int
	maxActive   int
	activations int
	err         error
}

func (f *fakeActivator) Activate() (ports.AudioActivation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.active > 0 {
		return nil, errors.New("audio session busy")
	}
	f.active++
	f.activations++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	return &fakeActivation{parent: f}, nil
}

func (f *fakeActivator) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active > 0
}

func (f *fakeActivator) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

type fakeActivation struct {
	parent *fakeActivator
	once   sync.Once
}

func (a *fakeActivation) Deactivate() error {
	a.once.Do(func() {
		a.parent.mu.Lock()
		a.parent.active--
		a.parent.mu.Unlock()
	})
	return nil
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

// fakeAudioSession hands out its chunks and then blocks like a live
// microphone until Stop is called.
type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	readErr   error
	stopCalls int
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.index < len(f.chunks) {
		n := copy(p, f.chunks[f.index])
		f.index++
		f.mu.Unlock()
		return n, nil
	}
	readErr := f.readErr
	f.mu.Unlock()

	if readErr != nil {
		return 0, readErr
	}
	<-f.stopped
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAudioSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	configs  []ports.StreamingConfig
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeStreamingSession struct {
	mu          sync.Mutex
	events      chan domain.TranscriptEvent
	onCloseSend []domain.TranscriptEvent
	waitErr     error
	sent        int
	closeSend   int
	closeCalls  int
	closed      bool
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

// CloseSend delivers the configured final hypothesis, then ends the stream.
func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if !f.closed {
		for _, event := range f.onCloseSend {
			f.events <- event
		}
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) push(event domain.TranscriptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- event
	}
}

// end simulates the recognizer closing the stream on its own.
func (f *fakeStreamingSession) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStreamingSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// stalledStream never accepts audio: SendAudio blocks until Close, like a
// recognizer whose socket has stopped draining.
type stalledStream struct {
	*fakeStreamingSession
	blocked   chan struct{}
	unblock   chan struct{}
	blockOnce sync.Once
	closeOnce sync.Once
}

func newStalledStream() *stalledStream {
	return &stalledStream{
		fakeStreamingSession: newFakeStreamingSession(),
		blocked:              make(chan struct{}),
		unblock:              make(chan struct{}),
	}
}

func (s *stalledStream) SendAudio(_ []byte) error {
	s.blockOnce.Do(func() { close(s.blocked) })
	<-s.unblock
	return errors.New("session closed")
}

func (s *stalledStream) Close() error {
	s.closeOnce.Do(func() { close(s.unblock) })
	return s.fakeStreamingSession.Close()
}

type fakeDictationSink struct {
	mu          sync.Mutex
	snapshots   []domain.DictationSnapshot
	transcripts []transcriptUpdate
	rejected    []string
}

func (f *fakeDictationSink) VoiceMessageRejected(transcript string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, transcript)
}

func (f *fakeDictationSink) rejections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.rejected))
	copy(out, f.rejected)
	return out
}

type transcriptUpdate struct {
	text    string
	isFinal bool
}

func (f *fakeDictationSink) DictationStateChanged(snapshot domain.DictationSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot)
}

func (f *fakeDictationSink) TranscriptUpdated(text string, isFinal bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, transcriptUpdate{text: text, isFinal: isFinal})
}

func (f *fakeDictationSink) states() []domain.DictationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DictationState, 0, len(f.snapshots))
	for _, snapshot := range f.snapshots {
		out = append(out, snapshot.State)
	}
	return out
}

func (f *fakeDictationSink) last() domain.DictationSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return domain.DictationSnapshot{}
	}
	return f.snapshots[len(f.snapshots)-1]
}

func (f *fakeDictationSink) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.transcripts))
	for _, update := range f.transcripts {
		out = append(out, update.text)
	}
	return out
}

type chatCall struct {
	text     string
	language string
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	release  chan struct{}
	calls    []chatCall
	inFlight int
	peak     int
	onCall   func()
}

func (f *fakeChat) SendChatMessage(ctx context.Context, text string, language string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatCall{text: text, language: language})
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	release := f.release
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChat) snapshotCalls() []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chatCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

func (f *fakeSpeaker) utterances() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

type fakeConversationSink struct {
	mu      sync.Mutex
	order   []string
	appends []domain.Message
	compose []string
	turns   []domain.TurnState
}

func (f *fakeConversationSink) MessageAppended(message domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "message:"+string(message.Sender))
	f.appends = append(f.appends, message)
}

func (f *fakeConversationSink) ComposeChanged(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "compose")
	f.compose = append(f.compose, text)
}

func (f *fakeConversationSink) TurnStateChanged(state domain.TurnState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "turn:"+string(state))
	f.turns = append(f.turns, state)
}

func (f *fakeConversationSink) snapshotOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}
