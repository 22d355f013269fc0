package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// validLogLevels defines the allowed log level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a defaulted Config and reports every violation at once,
// joined into a single error, so a broken config file is fixed in one pass
// rather than one field per restart.
//
// Expectations:
//   - Returns nil for Default()
//   - model.base_url must parse as an http or https URL with a host
//   - model.name must be non-empty
//   - exec.timeout_seconds must be in 1..600
//   - exec.max_output_kb must be in 1..10240
//   - memory.max_recent must be in 1..100
//   - speech.command must be present and tokenizable when speech.enabled
//   - shortcuts.search_url must contain the {query} placeholder
//   - log.level must be one of debug, info, warn, error
//   - Multiple violations are all present in the returned error
func Validate(cfg *Config) error {
	var errs []error

	if u, err := url.Parse(cfg.Model.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("model.base_url: %q is not an http(s) URL", cfg.Model.BaseURL))
	}
	if strings.TrimSpace(cfg.Model.Name) == "" {
		errs = append(errs, errors.New("model.name: must be non-empty"))
	}

	if cfg.Exec.TimeoutSeconds < 1 || cfg.Exec.TimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("exec.timeout_seconds: %d out of range 1..600", cfg.Exec.TimeoutSeconds))
	}
	if cfg.Exec.MaxOutputKB < 1 || cfg.Exec.MaxOutputKB > 10240 {
		errs = append(errs, fmt.Errorf("exec.max_output_kb: %d out of range 1..10240", cfg.Exec.MaxOutputKB))
	}

	if cfg.Memory.MaxRecent < 1 || cfg.Memory.MaxRecent > 100 {
		errs = append(errs, fmt.Errorf("memory.max_recent: %d out of range 1..100", cfg.Memory.MaxRecent))
	}

	if cfg.Speech.Enabled {
		if strings.TrimSpace(cfg.Speech.Command) == "" {
			errs = append(errs, errors.New("speech.command: required when speech.enabled is true"))
		} else if args, err := shellwords.Parse(cfg.Speech.Command); err != nil || len(args) == 0 {
			errs = append(errs, fmt.Errorf("speech.command: %q does not tokenize: %v", cfg.Speech.Command, err))
		}
	}

	if strings.TrimSpace(cfg.Shortcuts.Opener) == "" {
		errs = append(errs, errors.New("shortcuts.opener: must be non-empty"))
	}
	if !strings.Contains(cfg.Shortcuts.SearchURL, "{query}") {
		errs = append(errs, fmt.Errorf("shortcuts.search_url: %q missing {query} placeholder", cfg.Shortcuts.SearchURL))
	}
	for name, tmpl := range cfg.Shortcuts.Entries {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("shortcuts.entries: empty shortcut name"))
		}
		if strings.TrimSpace(tmpl) == "" {
			errs = append(errs, fmt.Errorf("shortcuts.entries.%s: empty command template", name))
		}
	}

	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level: invalid value %q, must be one of: debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}
