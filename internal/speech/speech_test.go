package speech

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCommandSpeaker_RejectsMalformedCommand(t *testing.T) {
	// Unterminated quoting fails at construction, not at speak time
	if _, err := NewCommandSpeaker(`piper --model "unterminated`); err == nil {
		t.Error("expected error for malformed command")
	}
}

func TestNewCommandSpeaker_RejectsEmptyCommand(t *testing.T) {
	// A blank command cannot produce an argv vector
	if _, err := NewCommandSpeaker("   "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestSay_PipesTextToStdin(t *testing.T) {
	// The reply text arrives on the synthesizer's standard input
	path := filepath.Join(t.TempDir(), "spoken.txt")
	s, err := NewCommandSpeaker("tee " + path)
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}

	if err := s.Say(context.Background(), "hello world"); err != nil {
		t.Fatalf("Say failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read captured stdin: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("captured stdin = %q, want %q", data, "hello world")
	}
}

func TestSay_QuoteAwareTokenization(t *testing.T) {
	// A quoted argument containing a space stays one argument
	path := filepath.Join(t.TempDir(), "out put.txt")
	s, err := NewCommandSpeaker(`tee "` + path + `"`)
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}

	if err := s.Say(context.Background(), "hi"); err != nil {
		t.Fatalf("Say failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file at quoted path: %v", err)
	}
}

func TestSay_SkipsEmptyText(t *testing.T) {
	// Whitespace-only text never spawns the command
	s, err := NewCommandSpeaker("false")
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}
	if err := s.Say(context.Background(), "   \n"); err != nil {
		t.Errorf("expected nil error for empty text, got %v", err)
	}
}

func TestSay_ReportsCommandFailure(t *testing.T) {
	// A non-zero exit from the synthesizer surfaces as an error
	s, err := NewCommandSpeaker("false")
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}
	err = s.Say(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "false") {
		t.Errorf("expected error to name the command, got %q", err)
	}
}

func TestSay_MissingBinary(t *testing.T) {
	// A synthesizer that is not installed surfaces as an error
	s, err := NewCommandSpeaker("definitely-not-a-real-tts-binary-q7x")
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}
	if err := s.Say(context.Background(), "hello"); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestSay_HonorsContext(t *testing.T) {
	// Cancelling the context stops a long-running synthesizer
	s, err := NewCommandSpeaker("sleep 5")
	if err != nil {
		t.Fatalf("NewCommandSpeaker failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Say(ctx, "hello"); err == nil {
		t.Error("expected error after context cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Say blocked %v after cancellation", elapsed)
	}
}

func TestNullSpeaker_AlwaysSucceeds(t *testing.T) {
	// The disabled-speech path is a no-op
	var s Speaker = NullSpeaker{}
	if err := s.Say(context.Background(), "anything"); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
