package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

func TestRun_EchoRoundTrip(t *testing.T) {
	// A command that prints a known string succeeds with that string captured
	res := NewRunner(0).Run(context.Background(), "echo test123", 5*time.Second)
	if !res.Success() {
		t.Fatalf("expected success, got exit=%d stderr=%q", res.ExitCode, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "test123") {
		t.Errorf("stdout: got %q, want it to contain %q", res.Stdout, "test123")
	}
	if res.TimedOut {
		t.Error("expected timed_out=false")
	}
	if res.Duration <= 0 {
		t.Error("expected a positive duration")
	}
}

func TestRun_MetacharactersStayLiteral(t *testing.T) {
	// Shell metacharacters execute as literal arguments of one process, never
	// as a second command
	res := NewRunner(0).Run(context.Background(), "echo hi; echo bye", 5*time.Second)
	if !res.Success() {
		t.Fatalf("expected success, got exit=%d stderr=%q", res.ExitCode, res.Stderr)
	}
	if res.Stdout != "hi; echo bye\n" {
		t.Errorf("stdout: got %q, want %q", res.Stdout, "hi; echo bye\n")
	}
}

func TestRun_QuotedArgumentsRespected(t *testing.T) {
	// Quoting groups words into one argument without expansion
	res := NewRunner(0).Run(context.Background(), `echo "two words" '$HOME'`, 5*time.Second)
	if !res.Success() {
		t.Fatalf("expected success, got exit=%d stderr=%q", res.ExitCode, res.Stderr)
	}
	if res.Stdout != "two words $HOME\n" {
		t.Errorf("stdout: got %q, want %q", res.Stdout, "two words $HOME\n")
	}
}

func TestRun_TimeoutKillsCommand(t *testing.T) {
	// Exceeding the timeout kills the process and sets TimedOut
	start := time.Now()
	res := NewRunner(0).Run(context.Background(), "sleep 5", 200*time.Millisecond)
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Fatalf("expected timed_out=true, got exit=%d", res.ExitCode)
	}
	if res.ExitCode != types.ExitTimeout {
		t.Errorf("exit code: got %d, want %d", res.ExitCode, types.ExitTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("expected prompt return after kill, took %s", elapsed)
	}
}

func TestRun_CancelStopsCommand(t *testing.T) {
	// Canceling ctx kills the process group and reports exit 130
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	res := NewRunner(0).Run(ctx, "sleep 5", 10*time.Second)
	elapsed := time.Since(start)

	if res.TimedOut {
		t.Error("cancellation must not report as a timeout")
	}
	if res.ExitCode != types.ExitCancelled {
		t.Errorf("exit code: got %d, want %d", res.ExitCode, types.ExitCancelled)
	}
	if elapsed > 2*time.Second {
		t.Errorf("expected prompt return after cancel, took %s", elapsed)
	}
}

func TestRun_MissingBinaryReportsNotFound(t *testing.T) {
	// A missing binary reports exit 127 with a "not found" stderr
	res := NewRunner(0).Run(context.Background(), "definitely-not-a-real-binary-q7x --version", 5*time.Second)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.ExitCode != types.ExitNotFound {
		t.Errorf("exit code: got %d, want %d", res.ExitCode, types.ExitNotFound)
	}
	if !strings.Contains(res.Stderr, "not found") {
		t.Errorf("stderr: got %q, want a 'not found' message", res.Stderr)
	}
	if !strings.Contains(res.Stderr, "definitely-not-a-real-binary-q7x") {
		t.Errorf("stderr: got %q, want the binary name", res.Stderr)
	}
}

func TestRun_MalformedCommandNeverSpawns(t *testing.T) {
	// Text that cannot be tokenized reports exit 2 without spawning anything
	res := NewRunner(0).Run(context.Background(), `echo "unterminated`, 5*time.Second)
	if res.ExitCode != types.ExitMalformed {
		t.Errorf("exit code: got %d, want %d", res.ExitCode, types.ExitMalformed)
	}
	if !strings.Contains(res.Stderr, "malformed") {
		t.Errorf("stderr: got %q, want a 'malformed' message", res.Stderr)
	}
}

func TestRun_NonZeroExitCaptured(t *testing.T) {
	// A failing command reports its own exit code, not an error
	res := NewRunner(0).Run(context.Background(), "false", 5*time.Second)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 1 {
		t.Errorf("exit code: got %d, want 1", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("expected timed_out=false")
	}
}

func TestRun_StderrCapturedSeparately(t *testing.T) {
	// Diagnostics land on stderr with stdout untouched
	res := NewRunner(0).Run(context.Background(), "ls /definitely-not-a-real-path-q7x", 5*time.Second)
	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.Stderr == "" {
		t.Error("expected stderr output")
	}
	if res.Stdout != "" {
		t.Errorf("stdout: got %q, want empty", res.Stdout)
	}
}

func TestRun_OutputTruncatedAtCap(t *testing.T) {
	// Captured output is cut at the per-stream cap and marked
	res := NewRunner(1).Run(context.Background(), "seq 1 2000", 5*time.Second)
	if !res.Truncated {
		t.Fatal("expected truncated=true")
	}
	if !strings.HasSuffix(res.Stdout, "[truncated]\n") {
		t.Errorf("stdout should end with the truncation marker, got tail %q", res.Stdout[len(res.Stdout)-20:])
	}
	if len(res.Stdout) > 1024+len("\n[truncated]\n") {
		t.Errorf("stdout length %d exceeds cap", len(res.Stdout))
	}
}

func TestLimitOutput_UnderCapUntouched(t *testing.T) {
	out, cut := limitOutput("short", 1024)
	if cut || out != "short" {
		t.Errorf("got (%q, %v), want (%q, false)", out, cut, "short")
	}
}

func TestExitCode_MapsKnownErrors(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("nil error: got %d, want 0", got)
	}
	if got := exitCode(errors.New("signal: killed")); got != types.ExitKilled {
		t.Errorf("killed: got %d, want %d", got, types.ExitKilled)
	}
	if got := exitCode(errors.New("something else")); got != 1 {
		t.Errorf("unknown error: got %d, want 1", got)
	}
}
