package usecase

import (
	"fmt"
	"strings"
	"sync"

	"talkive/internal/domain"
)

// transcriptAggregator folds provider events into the recognizer's cumulative
// best hypothesis: committed final segments followed by the current interim.
type transcriptAggregator struct {
	mu      sync.Mutex
	finals  []string
	interim string
	last    string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add applies an event and returns the cumulative text and whether it changed.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return a.last, false
	}
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.interim = ""
	} else {
		a.interim = text
	}

	next := a.composeLocked()
	changed := next != a.last
	a.last = next
	return next, changed
}

// Text returns the current cumulative hypothesis.
func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.composeLocked()
}

func (a *transcriptAggregator) composeLocked() string {
	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if a.interim == "" {
		return joined
	}
	if joined == "" {
		return a.interim
	}
	return joined + " " + a.interim
}

// consumeTranscriptionEvents publishes every hypothesis change and reports how
// the recognizer stream ended when nobody asked it to stop.
func consumeTranscriptionEvents(active *activeCapture, publish func(text string, isFinal bool)) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		if text, changed := active.aggregator.Add(event); changed {
			publish(text, event.EndOfUtterance)
		}
		if event.EndOfUtterance {
			active.recognizerFinished()
		}
	}

	if active.stopping.Load() {
		return
	}
	if err := active.stream.Wait(); err != nil {
		active.fail(fmt.Errorf("%w: %v", domain.ErrRecognition, err))
		return
	}
	active.recognizerFinished()
}
