package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Parse parses YAML data into a Config. Unknown fields are rejected so typos
// in the config file surface at startup instead of silently doing nothing.
// Empty input is valid and yields a zero-value Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	return &cfg, nil
}
