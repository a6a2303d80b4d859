package permission

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"talkive/internal/domain"
)

func TestProbeGrantsWhenRecorderAndCredentialsPresent(t *testing.T) {
	t.Parallel()

	recorder := filepath.Join(t.TempDir(), "recorder")
	if err := os.WriteFile(recorder, []byte("#!/bin/sh\n"), 0o700); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	probe := NewProbe(recorder, func() bool { return true }, log.New(io.Discard))
	decision, err := probe.RequestAuthorization(context.Background())
	if err != nil || decision != domain.AuthorizationGranted {
		t.Fatalf("expected granted, got %q err=%v", decision, err)
	}
}

func TestProbeDeniesMissingRecorder(t *testing.T) {
	t.Parallel()

	probe := NewProbe(filepath.Join(t.TempDir(), "missing"), nil, log.New(io.Discard))
	decision, err := probe.RequestAuthorization(context.Background())
	if err != nil || decision != domain.AuthorizationDenied {
		t.Fatalf("expected denied, got %q err=%v", decision, err)
	}
}

func TestProbeDeniesWithoutRecognizerCredentials(t *testing.T) {
	t.Parallel()

	probe := NewProbe("ffmpeg", func() bool { return false }, log.New(io.Discard))
	probe.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }

	decision, err := probe.RequestAuthorization(context.Background())
	if err != nil || decision != domain.AuthorizationDenied {
		t.Fatalf("expected denied, got %q err=%v", decision, err)
	}
}

func TestProbeErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewProbe(" ", nil, log.New(io.Discard)).RequestAuthorization(context.Background()); err == nil {
		t.Fatalf("expected error without recorder command")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProbe("ffmpeg", nil, log.New(io.Discard)).RequestAuthorization(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
