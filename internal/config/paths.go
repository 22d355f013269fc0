package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ConfigPath returns the config file location: $LUNA_CONFIG when set,
// otherwise ~/.config/luna/config.yaml.
func ConfigPath() string {
	if p := os.Getenv("LUNA_CONFIG"); p != "" {
		return ExpandHome(p)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "luna", "config.yaml")
}

// StateDir returns the directory for runtime state: debug log, audit trail,
// REPL history.
func StateDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "luna")
}

// DataDir returns the directory for durable data: the conversation store.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "luna")
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// Paths without a leading tilde are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
