package main

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/afif25fradana/luna-voice-assistant-offline/internal/config"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/llm"
	"github.com/afif25fradana/luna-voice-assistant-offline/internal/memory"
)

func getDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, model server, memory, and speech readiness",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("luna %s\n\n", version)
	failed := false

	fmt.Printf("config: %s\n", config.ConfigPath())
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("   ❌ %v\n", err)
		return fmt.Errorf("config unusable")
	}
	fmt.Printf("   ✅ valid\n")

	fmt.Printf("model: %s @ %s\n", cfg.Model.Name, cfg.Model.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := llm.New(cfg.Model.BaseURL, cfg.Model.Name, "DOCTOR").Healthy(ctx); err != nil {
		fmt.Printf("   ❌ %v\n", err)
		failed = true
	} else {
		fmt.Printf("   ✅ reachable, model installed\n")
	}

	fmt.Printf("memory: %s\n", cfg.Memory.Dir)
	if store, err := memory.Open(cfg.Memory.Dir, cfg.Memory.MaxRecent); err != nil {
		fmt.Printf("   ❌ %v\n", err)
		failed = true
	} else {
		if n, err := store.Count(); err != nil {
			fmt.Printf("   ⚠️  open but unreadable: %v\n", err)
		} else {
			fmt.Printf("   ✅ %d turns stored\n", n)
		}
		store.Close()
	}

	fmt.Printf("audit: %s\n", cfg.Log.Audit)
	if err := checkWritable(cfg.Log.Audit); err != nil {
		fmt.Printf("   ❌ %v\n", err)
		failed = true
	} else {
		fmt.Printf("   ✅ writable\n")
	}

	if !cfg.Speech.Enabled || cfg.Speech.Command == "" {
		fmt.Printf("speech: disabled\n")
	} else {
		fmt.Printf("speech: %s\n", cfg.Speech.Command)
		if argv, err := shellwords.Parse(cfg.Speech.Command); err != nil || len(argv) == 0 {
			fmt.Printf("   ❌ unparseable command: %v\n", err)
			failed = true
		} else if _, err := osexec.LookPath(argv[0]); err != nil {
			fmt.Printf("   ❌ %v\n", err)
			failed = true
		} else {
			fmt.Printf("   ✅ %s found\n", argv[0])
		}
	}

	if n := len(cfg.Shortcuts.Entries); n > 0 {
		fmt.Printf("shortcuts: %d entries\n", n)
	}

	if failed {
		return fmt.Errorf("problems found")
	}
	fmt.Println("\nall good ✨")
	return nil
}

// checkWritable verifies the audit path accepts appends, creating the parent
// directory the same way the auditor does at startup.
func checkWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
