package permission

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
)

// Probe decides whether dictation may run on this machine: the recorder must
// be installed and the recognizer must have credentials.
type Probe struct {
	recorder   string
	configured func() bool
	lookPath   func(string) (string, error)
	log        *log.Logger
}

func NewProbe(recorder string, recognizerConfigured func() bool, logger *log.Logger) *Probe {
	if logger == nil {
		logger = log.Default()
	}
	if recognizerConfigured == nil {
		recognizerConfigured = func() bool { return true }
	}
	return &Probe{
		recorder:   strings.TrimSpace(recorder),
		configured: recognizerConfigured,
		lookPath:   exec.LookPath,
		log:        logger.WithPrefix("permission"),
	}
}

// RequestAuthorization reports Denied when a prerequisite is missing. Errors
// are reserved for the probe itself failing.
func (p *Probe) RequestAuthorization(ctx context.Context) (domain.Authorization, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.recorder == "" {
		return "", fmt.Errorf("no recorder command configured")
	}
	if _, err := p.lookPath(p.recorder); err != nil {
		p.log.Warn("recorder not available", "command", p.recorder, "error", err)
		return domain.AuthorizationDenied, nil
	}
	if !p.configured() {
		p.log.Warn("speech recognizer is not configured")
		return domain.AuthorizationDenied, nil
	}
	return domain.AuthorizationGranted, nil
}
