package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/assistant"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/config"
)

// displaySettle is how long the REPL yields the terminal to the display
// goroutine so pipeline boxes close before the next prompt or response print.
const displaySettle = 100 * time.Millisecond

func runREPL(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	restoreLog := setupLogging(cfg)
	defer restoreLog()

	a := newApp(cfg, true)

	fmt.Printf("🌙 luna %s — type a request, 'exit' to quit\n", version)
	startupChecks(a)

	a.orch.Start()
	time.Sleep(displaySettle)

	// Utterance context, separate from the background context so a signal
	// can unwind an in-flight request before the roles stop.
	reqCtx, reqCancel := context.WithCancel(context.Background())
	defer reqCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "luna: forced exit")
			os.Exit(130)
		}()
		reqCancel()
		a.display.Abort()
		a.shutdown("signal received")
		os.Exit(0)
	}()

	historyDir := config.StateDir()
	_ = os.MkdirAll(historyDir, 0o755)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "luna> ",
		HistoryFile:       filepath.Join(historyDir, "history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		gotFragments := false
		final, err := a.orch.Handle(reqCtx, input, func(frag string) {
			if !gotFragments {
				gotFragments = true
				a.display.Pause()
				fmt.Print("\n🌙 ")
			}
			fmt.Print(frag)
		})
		if err != nil {
			if errors.Is(err, assistant.ErrNotRunning) {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		if gotFragments {
			fmt.Println()
			a.display.Resume()
		}
		time.Sleep(displaySettle)
		if !gotFragments && final != "" {
			fmt.Printf("🌙 %s\n", final)
		}
	}

	a.shutdown("user exit")
	fmt.Println("🌙 goodbye")
	return nil
}

// startupChecks reports model and memory readiness before the first prompt.
// Problems warn rather than abort: an unreachable server degrades to chat
// apologies per request, and a locked store runs the session memory-less.
func startupChecks(a *app) {
	fmt.Printf("   model %s @ %s\n", a.cfg.Model.Name, a.cfg.Model.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.chat.Healthy(ctx); err != nil {
		fmt.Printf("   ⚠️  %v\n", err)
	} else {
		fmt.Printf("   ✅ model server reachable\n")
		if a.cfg.Model.WarmUp != nil && *a.cfg.Model.WarmUp {
			go a.chat.WarmUp(a.ctx)
		}
	}

	if a.store == nil {
		fmt.Printf("   ⚠️  conversation memory unavailable (see %s)\n", a.cfg.Log.File)
	}
}
