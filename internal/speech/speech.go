// Package speech turns assistant replies into audio by piping them to an
// external synthesizer command (piper, espeak, festival). The command is
// configured as a single string, tokenized once at construction.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"

	shellwords "github.com/mattn/go-shellwords"
)

// Speaker voices one reply. Implementations must be safe for concurrent use.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// NullSpeaker is the Speaker used when speech is disabled.
type NullSpeaker struct{}

func (NullSpeaker) Say(context.Context, string) error { return nil }

// CommandSpeaker voices replies by spawning the configured command and writing
// the text to its standard input. Playback is serialized: concurrent Say calls
// queue on a mutex so two replies never talk over each other.
type CommandSpeaker struct {
	argv []string
	mu   sync.Mutex
}

// NewCommandSpeaker tokenizes command into an argv vector.
//
// Expectations:
//   - Quote-aware tokenization ("piper --model \"en US.onnx\"" keeps the
//     filename as one argument)
//   - Fails on malformed quoting
//   - Fails on an empty command
func NewCommandSpeaker(command string) (*CommandSpeaker, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("speech: parse command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("speech: empty command")
	}
	return &CommandSpeaker{argv: argv}, nil
}

// Say runs the synthesizer with text on stdin and blocks until playback ends
// or ctx is cancelled.
//
// Expectations:
//   - Empty or whitespace-only text is skipped without spawning anything
//   - The command's stdout is discarded (synthesizers own the audio device)
//   - A non-zero exit surfaces as an error carrying the command's stderr
func (s *CommandSpeaker) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("[SPEECH] speaking: %s", firstN(text, 60))
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech: %s: %v: %s", s.argv[0], err, firstN(msg, 200))
		}
		return fmt.Errorf("speech: %s: %w", s.argv[0], err)
	}
	return nil
}

func firstN(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
