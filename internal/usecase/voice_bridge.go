package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
	"talkive/internal/ports"
)

// VoiceRejectionSink is an optional downstream extension told when a voice
// message is refused because a reply is still pending. The transcript is left
// in the compose buffer.
type VoiceRejectionSink interface {
	VoiceMessageRejected(transcript string)
}

// VoiceBridge feeds dictation output into a conversation: live transcripts are
// mirrored into the compose buffer and a stopped dictation becomes a voice
// message. Every notification is also forwarded to the downstream sink.
//
// DictationSession emits Stopped only after its pipeline is torn down, so a
// voice turn never overlaps the capture that produced it.
type VoiceBridge struct {
	ctx          context.Context
	conversation *ConversationController
	downstream   ports.DictationEventSink
	log          *log.Logger

	wg sync.WaitGroup
}

func NewVoiceBridge(
	ctx context.Context,
	conversation *ConversationController,
	downstream ports.DictationEventSink,
	logger *log.Logger,
) *VoiceBridge {
	if logger == nil {
		logger = log.Default()
	}
	return &VoiceBridge{
		ctx:          ctx,
		conversation: conversation,
		downstream:   downstream,
		log:          logger.WithPrefix("voice"),
	}
}

// DictationStateChanged registers the voice turn for a Stopped snapshot
// before forwarding it, so Wait observes the turn once the UI has seen Stopped.
func (b *VoiceBridge) DictationStateChanged(snapshot domain.DictationSnapshot) {
	if snapshot.State == domain.DictationStateStopped {
		transcript := snapshot.Transcript
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			err := b.conversation.SendVoiceMessage(b.ctx, transcript)
			if errors.Is(err, ErrTurnInFlight) {
				b.log.Warn("voice message held, a response is still pending")
				b.conversation.SetCompose(transcript)
				if rejected, ok := b.downstream.(VoiceRejectionSink); ok {
					rejected.VoiceMessageRejected(transcript)
				}
			} else if err != nil {
				b.log.Error("voice message failed", "error", err)
			}
		}()
	}
	if b.downstream != nil {
		b.downstream.DictationStateChanged(snapshot)
	}
}

func (b *VoiceBridge) TranscriptUpdated(text string, isFinal bool) {
	if b.downstream != nil {
		b.downstream.TranscriptUpdated(text, isFinal)
	}
	b.conversation.MirrorTranscript(text)
}

// Wait blocks until every dispatched voice turn has resolved.
func (b *VoiceBridge) Wait() {
	b.wg.Wait()
}
