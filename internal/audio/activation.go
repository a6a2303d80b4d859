package audio

import (
	"errors"
	"sync"

	"talkive/internal/ports"
)

var ErrAudioSessionBusy = errors.New("audio session is already active")

// ExclusiveSession models the process-wide audio session. Only one activation
// may be held at a time.
type ExclusiveSession struct {
	mu     sync.Mutex
	active bool
}

func NewExclusiveSession() *ExclusiveSession {
	return &ExclusiveSession{}
}

func (s *ExclusiveSession) Activate() (ports.AudioActivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, ErrAudioSessionBusy
	}
	s.active = true
	return &activation{session: s}, nil
}

func (s *ExclusiveSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type activation struct {
	session *ExclusiveSession
	once    sync.Once
}

// Deactivate releases the session. Repeated calls are no-ops.
func (a *activation) Deactivate() error {
	a.once.Do(func() {
		a.session.mu.Lock()
		a.session.active = false
		a.session.mu.Unlock()
	})
	return nil
}
