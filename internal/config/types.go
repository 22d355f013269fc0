// Package config provides the static settings object the assistant reads at
// startup. Settings map to a single YAML file, typically at
// ~/.config/luna/config.yaml, with a handful of environment overrides.
package config

// Config is the top-level configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model,omitempty"`
	Exec      ExecConfig      `yaml:"exec,omitempty"`
	Security  SecurityConfig  `yaml:"security,omitempty"`
	Memory    MemoryConfig    `yaml:"memory,omitempty"`
	Speech    SpeechConfig    `yaml:"speech,omitempty"`
	Shortcuts ShortcutsConfig `yaml:"shortcuts,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// ModelConfig points the assistant at its Ollama server.
type ModelConfig struct {
	BaseURL string `yaml:"base_url,omitempty"` // e.g. http://localhost:11434
	Name    string `yaml:"name,omitempty"`     // e.g. llama3.2
	Persona string `yaml:"persona,omitempty"`  // chat system prompt override
	WarmUp  *bool  `yaml:"warm_up,omitempty"`  // fire a warm-up request at startup; default true
}

// ExecConfig bounds the command execution path.
type ExecConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"` // per-command wall clock limit
	MaxOutputKB    int `yaml:"max_output_kb,omitempty"`   // per-stream capture bound
}

// SecurityConfig holds the command denylist. When Blacklist is empty the
// built-in default entries apply; setting it replaces them entirely.
type SecurityConfig struct {
	Blacklist []string `yaml:"blacklist,omitempty"`
}

// MemoryConfig controls the conversation store.
type MemoryConfig struct {
	Dir       string `yaml:"dir,omitempty"`        // LevelDB directory
	MaxRecent int    `yaml:"max_recent,omitempty"` // turns kept in the prompt window
}

// SpeechConfig wires an external text-to-speech command. The command string
// is split into an argument vector; response text arrives on its stdin.
type SpeechConfig struct {
	Enabled        bool   `yaml:"enabled,omitempty"`
	Command        string `yaml:"command,omitempty"` // e.g. piper --model /path/voice.onnx --output-raw
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// ShortcutsConfig drives expansion of open_url/search/shortcut intents into
// runnable commands.
type ShortcutsConfig struct {
	Opener    string            `yaml:"opener,omitempty"`     // URL opener binary, e.g. xdg-open
	SearchURL string            `yaml:"search_url,omitempty"` // template containing {query}
	Entries   map[string]string `yaml:"entries,omitempty"`    // name → command template, may contain {input}
}

// LogConfig contains logging and audit-trail settings.
type LogConfig struct {
	File  string `yaml:"file,omitempty"`  // debug log written during REPL sessions
	Level string `yaml:"level,omitempty"` // debug | info | warn | error
	Audit string `yaml:"audit,omitempty"` // JSONL audit trail path
}
