package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"talkive/internal/bootstrap"
	"talkive/internal/chat"
	"talkive/internal/domain"
	"talkive/internal/practice"
	"talkive/internal/usecase"
)

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the chat backend is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, err := bootstrap.Build(cmd.Context(), bootstrap.Sinks{})
			if err != nil {
				return err
			}
			err = services.Pinger.Ping(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), chat.ConnectionMessage(err))
			return err
		},
	}
}

func newChatCommand(language *string) *cobra.Command {
	var (
		native    string
		writeMode bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold a typed conversation; an empty line, exit or EOF ends it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			console := newConsole(cmd.OutOrStdout())
			services, err := bootstrap.Build(ctx, bootstrap.Sinks{Dictation: console, Conversation: console})
			if err != nil {
				return err
			}
			if *language != "" {
				services.Conversation.SetLanguage(*language)
			}

			guard, err := practice.NewGuard(native, services.Conversation.Language())
			if err != nil {
				return err
			}
			session := chatSession{conversation: services.Conversation, guard: guard, out: console}
			if writeMode {
				if session.corrector, err = bootstrap.NewCorrector(services.Config, services.Logger); err != nil {
					return err
				}
			}

			err = session.run(ctx, cmd.InOrStdin())
			waitForSpeech(services)
			return err
		},
	}
	cmd.Flags().StringVarP(&native, "native", "n", "", "your native language; turns written in it get a tip instead of a reply")
	cmd.Flags().BoolVarP(&writeMode, "write", "w", false, "write mode: show a grammar correction before each reply")
	return cmd
}

// chatSession is the typed turn loop.
type chatSession struct {
	conversation *usecase.ConversationController
	guard        practice.Guard
	corrector    practice.Corrector
	out          *console
}

func (s chatSession) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.EqualFold(line, "exit") {
			return nil
		}
		if tip, ok := s.guard.Tip(line); ok {
			s.out.printf("(%s)\n", tip)
			continue
		}
		if s.corrector != nil {
			corrected, err := s.corrector.Correct(ctx, line, s.conversation.Language())
			if err != nil {
				s.out.printf("correction: Error: %v\n", err)
			} else {
				s.out.printf("correction: %s\n", corrected)
			}
		}
		if err := s.conversation.Submit(ctx, line); err != nil && !errors.Is(err, usecase.ErrEmptyMessage) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func newDictateCommand(language *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dictate",
		Short: "Speak one turn; press Enter to stop recording and send it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			console := newConsole(cmd.OutOrStdout())
			services, err := bootstrap.Build(ctx, bootstrap.Sinks{Dictation: console, Conversation: console})
			if err != nil {
				return err
			}
			if *language != "" {
				services.Conversation.SetLanguage(*language)
				services.Dictation.SetLanguage(services.Conversation.Language())
			}

			if err := services.Dictation.Start(ctx); err != nil {
				return err
			}

			enter := make(chan struct{})
			go func() {
				_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				close(enter)
			}()

			select {
			case <-enter:
				if _, err := services.Dictation.Stop(ctx); err != nil && !errors.Is(err, usecase.ErrNotRecording) {
					return err
				}
			case <-console.finished():
			case <-ctx.Done():
				services.Dictation.Reset()
				return nil
			}

			services.Bridge.Wait()
			waitForSpeech(services)
			if snapshot := services.Dictation.Snapshot(); snapshot.State == domain.DictationStateFailed {
				return errors.New(snapshot.Error)
			}
			return nil
		},
	}
}

func waitForSpeech(services bootstrap.Services) {
	if speaker, ok := services.Speaker.(interface{ Wait() }); ok {
		speaker.Wait()
	}
}

// console prints core notifications for the terminal client.
type console struct {
	out io.Writer

	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

func newConsole(out io.Writer) *console {
	return &console{out: out, done: make(chan struct{})}
}

// finished is closed once dictation reaches a terminal state on its own.
func (c *console) finished() <-chan struct{} {
	return c.done
}

func (c *console) DictationStateChanged(snapshot domain.DictationSnapshot) {
	switch snapshot.State {
	case domain.DictationStateRecording:
		c.printf("listening... press Enter to send\n")
	case domain.DictationStateFailed:
		c.printf("dictation failed: %s\n", snapshot.Error)
		c.doneOnce.Do(func() { close(c.done) })
	case domain.DictationStateStopped:
		c.doneOnce.Do(func() { close(c.done) })
	}
}

func (c *console) TranscriptUpdated(text string, isFinal bool) {
	if isFinal {
		c.printf("\r> %s\n", text)
		return
	}
	c.printf("\r> %s", text)
}

func (c *console) MessageAppended(message domain.Message) {
	if message.IsUser() {
		return
	}
	c.printf("talkive: %s\n", message.Text)
}

func (c *console) ComposeChanged(string) {}

func (c *console) TurnStateChanged(state domain.TurnState) {
	if state == domain.TurnStateAwaitingResponse {
		c.printf("...\n")
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
