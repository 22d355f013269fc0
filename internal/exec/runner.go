// Package exec runs already-validated commands as tokenized argument
// vectors. Nothing in this package ever hands text to a shell interpreter;
// the process is spawned directly with an explicit argv.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/types"
)

const defaultMaxOutputKB = 64

// Runner spawns validated commands with bounded output capture. One Runner
// is shared by all requests; it holds no per-command state.
type Runner struct {
	maxOutput int // per-stream cap in bytes
}

// NewRunner creates a Runner capping each captured stream at maxOutputKB
// kilobytes. Zero or negative falls back to 64.
func NewRunner(maxOutputKB int) *Runner {
	if maxOutputKB <= 0 {
		maxOutputKB = defaultMaxOutputKB
	}
	return &Runner{maxOutput: maxOutputKB * 1024}
}

// Run tokenizes command into an argument vector and executes it directly,
// waiting at most timeout. The child's stdin is the null device, so nothing
// can prompt. Every outcome, including spawn failures, comes back as a
// normal ExecutionResult; Run never returns an error value.
//
// Expectations:
//   - The command runs as one process with a literal argv, never via a shell
//   - Stdout and stderr are captured separately and truncated at the cap
//   - Exceeding the timeout kills the whole process group and sets TimedOut
//   - Canceling ctx kills the process group and reports exit 130
//   - A missing binary reports exit 127 with a "not found" stderr
//   - A non-executable target reports exit 126 with "permission denied"
//   - Text that cannot be tokenized reports exit 2 without spawning anything
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration) types.ExecutionResult {
	start := time.Now()

	argv, err := shellwords.Parse(command)
	if err != nil {
		log.Printf("[EXECUTOR] WARNING: refusing untokenizable command: %v", err)
		return types.ExecutionResult{
			ExitCode: types.ExitMalformed,
			Stderr:   "malformed command: " + err.Error(),
			Duration: time.Since(start),
		}
	}
	if len(argv) == 0 {
		return types.ExecutionResult{
			ExitCode: types.ExitMalformed,
			Stderr:   "empty command",
			Duration: time.Since(start),
		}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("[EXECUTOR] run: %s (timeout %s)", firstN(command, 120), timeout)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	runErr := cmd.Run()

	res := types.ExecutionResult{Duration: time.Since(start)}
	var outCut, errCut bool
	res.Stdout, outCut = limitOutput(stdout.String(), r.maxOutput)
	res.Stderr, errCut = limitOutput(stderr.String(), r.maxOutput)
	res.Truncated = outCut || errCut

	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = types.ExitTimeout
		log.Printf("[EXECUTOR] WARNING: timed out after %s: %s", timeout, firstN(command, 120))
	case ctx.Err() != nil:
		res.ExitCode = types.ExitCancelled
		if res.Stderr == "" {
			res.Stderr = "cancelled"
		}
		log.Printf("[EXECUTOR] cancelled: %s", firstN(command, 120))
	case errors.Is(runErr, exec.ErrNotFound):
		res.ExitCode = types.ExitNotFound
		res.Stderr = fmt.Sprintf("'%s' not found. Please ensure it's installed and in your PATH.", argv[0])
	case errors.Is(runErr, os.ErrPermission):
		res.ExitCode = types.ExitNotExecutable
		res.Stderr = "permission denied"
	default:
		res.ExitCode = exitCode(runErr)
	}

	log.Printf("[EXECUTOR] exit=%d timed_out=%v in %s (stdout %dB, stderr %dB)",
		res.ExitCode, res.TimedOut, res.Duration.Round(time.Millisecond), len(res.Stdout), len(res.Stderr))
	return res
}

// exitCode maps a cmd.Run error to a shell-convention exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if strings.Contains(err.Error(), "signal: killed") {
		return types.ExitKilled
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// limitOutput caps s at maxBytes, keeping the head and marking the cut.
func limitOutput(s string, maxBytes int) (string, bool) {
	if len(s) <= maxBytes {
		return s, false
	}
	return s[:maxBytes] + "\n[truncated]\n", true
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
