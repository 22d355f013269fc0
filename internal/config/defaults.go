package config

import "path/filepath"

// Default returns a fully-populated Config with the built-in settings.
// Path fields are already expanded.
func Default() *Config {
	warm := true
	return &Config{
		Model: ModelConfig{
			BaseURL: "http://localhost:11434",
			Name:    "llama3.2",
			WarmUp:  &warm,
		},
		Exec: ExecConfig{
			TimeoutSeconds: 30,
			MaxOutputKB:    64,
		},
		Memory: MemoryConfig{
			Dir:       filepath.Join(DataDir(), "memory"),
			MaxRecent: 10,
		},
		Speech: SpeechConfig{
			TimeoutSeconds: 20,
		},
		Shortcuts: ShortcutsConfig{
			Opener:    "xdg-open",
			SearchURL: "https://www.google.com/search?q={query}",
		},
		Log: LogConfig{
			File:  filepath.Join(StateDir(), "debug.log"),
			Level: "info",
			Audit: filepath.Join(StateDir(), "audit.jsonl"),
		},
	}
}

// applyDefaults fills zero-valued fields of cfg from Default() so a sparse
// config file only has to name what it changes.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = def.Model.BaseURL
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = def.Model.Name
	}
	if cfg.Model.WarmUp == nil {
		cfg.Model.WarmUp = def.Model.WarmUp
	}
	if cfg.Exec.TimeoutSeconds == 0 {
		cfg.Exec.TimeoutSeconds = def.Exec.TimeoutSeconds
	}
	if cfg.Exec.MaxOutputKB == 0 {
		cfg.Exec.MaxOutputKB = def.Exec.MaxOutputKB
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = def.Memory.Dir
	}
	if cfg.Memory.MaxRecent == 0 {
		cfg.Memory.MaxRecent = def.Memory.MaxRecent
	}
	if cfg.Speech.TimeoutSeconds == 0 {
		cfg.Speech.TimeoutSeconds = def.Speech.TimeoutSeconds
	}
	if cfg.Shortcuts.Opener == "" {
		cfg.Shortcuts.Opener = def.Shortcuts.Opener
	}
	if cfg.Shortcuts.SearchURL == "" {
		cfg.Shortcuts.SearchURL = def.Shortcuts.SearchURL
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Audit == "" {
		cfg.Log.Audit = def.Log.Audit
	}
}
