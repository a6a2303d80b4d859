package usecase

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"talkive/internal/domain"
)

func newPumpCapture(audio *fakeAudioSession, stream *sendErrStream) *activeCapture {
	return newActiveCapture(func() {}, audio, stream, &fakeActivation{parent: &fakeActivator{active: 1}})
}

func TestPumpAudioChunksReportsSendError(t *testing.T) {
	t.Parallel()

	active := newPumpCapture(newFakeAudioSession([]byte("abc")), &sendErrStream{err: errors.New("send failed")})
	pumpAudioChunks(active, 256)

	select {
	case err := <-active.failures:
		if !errors.Is(err, domain.ErrRecognition) {
			t.Fatalf("expected recognition error, got %v", err)
		}
	default:
		t.Fatalf("expected send failure to be reported")
	}
}

func TestPumpAudioChunksReportsReadError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession()
	audio.readErr = errors.New("read failed")
	active := newPumpCapture(audio, &sendErrStream{})
	pumpAudioChunks(active, 256)

	select {
	case err := <-active.failures:
		if !errors.Is(err, domain.ErrAudioEngine) {
			t.Fatalf("expected audio engine error, got %v", err)
		}
	default:
		t.Fatalf("expected read failure to be reported")
	}
}

func TestPumpAudioChunksTreatsUnexpectedEOFAsFailure(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("abc"))
	audio.readErr = io.EOF
	stream := &sendErrStream{}
	active := newPumpCapture(audio, stream)
	pumpAudioChunks(active, 256)

	if stream.sent != 1 {
		t.Fatalf("expected one chunk forwarded, got %d", stream.sent)
	}
	select {
	case err := <-active.failures:
		if !errors.Is(err, domain.ErrAudioEngine) {
			t.Fatalf("expected audio engine error, got %v", err)
		}
	default:
		t.Fatalf("expected end of input to be reported")
	}
}

func TestPumpAudioChunksStopsQuietly(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("abc"))
	active := newPumpCapture(audio, &sendErrStream{})

	done := make(chan struct{})
	go func() {
		pumpAudioChunks(active, 256)
		close(done)
	}()

	active.stopping.Store(true)
	_ = audio.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not exit after stop")
	}
	select {
	case err := <-active.failures:
		t.Fatalf("unexpected failure after stop: %v", err)
	default:
	}
}

func TestDrainStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("closed")
	active := newActiveCapture(func() {}, newFakeAudioSession(), stream, &fakeActivation{parent: &fakeActivator{active: 1}})
	active.stopping.Store(true)
	go consumeTranscriptionEvents(active, func(string, bool) {})

	err := drainStream(context.Background(), active, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCount() == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

func TestDrainStreamHonoursCancellation(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	active := newActiveCapture(func() {}, newFakeAudioSession(), stream, &fakeActivation{parent: &fakeActivator{active: 1}})
	active.stopping.Store(true)
	go consumeTranscriptionEvents(active, func(string, bool) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := drainStream(ctx, active, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stream.closeCount() != 1 {
		t.Fatalf("expected stream to be closed on cancellation")
	}
}

type sendErrStream struct {
	err  error
	sent int
}

func (s *sendErrStream) SendAudio(_ []byte) error {
	s.sent++
	return s.err
}
func (s *sendErrStream) CloseSend() error { return nil }
func (s *sendErrStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *sendErrStream) Wait() error  { return nil }
func (s *sendErrStream) Close() error { return nil }
