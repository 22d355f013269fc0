package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/assistant"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/audit"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/bus"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/config"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/exec"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/llm"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/memory"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/router"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/safety"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/shortcuts"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/speech"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/ui"
)

// app is one fully wired assistant instance: the bus, the background roles
// running on ctx, and the orchestrator in front of them.
type app struct {
	cfg     *config.Config
	b       *bus.Bus
	orch    *assistant.Orchestrator
	store   *memory.Store // nil when the store failed to open
	display *ui.Display   // nil in one-shot mode
	chat    *llm.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// newApp builds and starts the background roles but leaves the orchestrator
// in its initial state; callers run startup checks and then Start it.
func newApp(cfg *config.Config, withDisplay bool) *app {
	ctx, cancel := context.WithCancel(context.Background())
	b := bus.New()

	aud := audit.New(b.Tap(), cfg.Log.Audit)
	go aud.Run(ctx)

	var display *ui.Display
	if withDisplay {
		display = ui.New(b.SubscribeAll())
		go display.Run(ctx)
	}

	// A nil store runs the assistant memory-less; its methods no-op.
	store, err := memory.Open(cfg.Memory.Dir, cfg.Memory.MaxRecent)
	if err != nil {
		log.Printf("[LUNA] WARNING: %v — running without conversation memory", err)
	} else {
		go store.Run(ctx)
	}

	table := shortcuts.NewTable(cfg.Shortcuts.Opener, cfg.Shortcuts.SearchURL, cfg.Shortcuts.Entries)
	chat := llm.New(cfg.Model.BaseURL, cfg.Model.Name, "CHAT")

	orch := assistant.New(
		b,
		router.New(b, llm.New(cfg.Model.BaseURL, cfg.Model.Name, "ROUTER"), table),
		safety.NewValidator(cfg.Security.Blacklist),
		exec.NewRunner(cfg.Exec.MaxOutputKB),
		chat,
		store,
		buildSpeaker(cfg),
		time.Duration(cfg.Exec.TimeoutSeconds)*time.Second,
	)
	orch.SetPersona(cfg.Model.Persona)

	return &app{
		cfg:     cfg,
		b:       b,
		orch:    orch,
		store:   store,
		display: display,
		chat:    chat,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// shutdown drains the orchestrator, flushes memory, and stops the background
// roles. Safe to call once per app.
func (a *app) shutdown(detail string) {
	a.orch.Shutdown(detail)
	a.store.Close()
	a.cancel()
	// Give the auditor and display a moment to drain before the process
	// exits. Their channels are small; this is bounded in practice.
	time.Sleep(200 * time.Millisecond)
}

// timedSpeaker bounds each Say call so a hung synthesizer cannot stall the
// drain at shutdown.
type timedSpeaker struct {
	inner   speech.Speaker
	timeout time.Duration
}

func (t timedSpeaker) Say(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Say(ctx, text)
}

func buildSpeaker(cfg *config.Config) speech.Speaker {
	if !cfg.Speech.Enabled || cfg.Speech.Command == "" {
		return speech.NullSpeaker{}
	}
	cs, err := speech.NewCommandSpeaker(cfg.Speech.Command)
	if err != nil {
		log.Printf("[LUNA] WARNING: speech disabled: %v", err)
		return speech.NullSpeaker{}
	}
	return timedSpeaker{inner: cs, timeout: time.Duration(cfg.Speech.TimeoutSeconds) * time.Second}
}

// setupLogging routes the log and slog packages to the configured debug file
// so readline and streamed replies own the terminal. Level "debug" mirrors
// log lines to stderr as well. The returned func restores stderr logging.
func setupLogging(cfg *config.Config) func() {
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		log.Printf("[LUNA] WARNING: cannot create log directory: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[LUNA] WARNING: cannot open log file: %v", err)
		return func() {}
	}

	var out io.Writer = f
	if cfg.Log.Level == "debug" {
		out = io.MultiWriter(f, os.Stderr)
	}
	log.SetOutput(out)
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: slogLevel(cfg.Log.Level),
	})))

	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
