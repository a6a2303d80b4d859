package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"talkive/internal/domain"
)

func pumpAudioChunks(active *activeCapture, chunkSize int) {
	defer close(active.audioDone)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := active.audio.Read(buf)
		if n > 0 {
			if sendErr := active.stream.SendAudio(buf[:n]); sendErr != nil {
				if !active.stopping.Load() {
					active.fail(fmt.Errorf("%w: failed to stream audio: %v", domain.ErrRecognition, sendErr))
				}
				return
			}
		}
		if err != nil {
			if active.stopping.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				active.fail(fmt.Errorf("%w: audio input ended unexpectedly", domain.ErrAudioEngine))
			} else {
				active.fail(fmt.Errorf("%w: audio capture error: %v", domain.ErrAudioEngine, err))
			}
			return
		}
	}
}

// drainStream waits for the recognizer to deliver its final hypothesis after
// CloseSend. The stream is closed on timeout or cancellation so teardown never
// hangs on the recognizer.
func drainStream(ctx context.Context, active *activeCapture, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-active.eventsDone:
	case <-timer.C:
		_ = active.stream.Close()
		<-active.eventsDone
	case <-ctx.Done():
		_ = active.stream.Close()
		<-active.eventsDone
	}
	return active.stream.Wait()
}
