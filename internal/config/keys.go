package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when the api backend is selected without a key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "bedrock"
	KeySourceNone    KeySource = "none"
)

// ResolveAPIKey returns the Anthropic API key and where it came from.
// ANTHROPIC_API_KEY wins over anthropic.api_key. Unresolved ${VAR}
// references in the config value count as unset.
func ResolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg == nil {
		return "", KeySourceNone
	}
	if key := os.ExpandEnv(cfg.Anthropic.APIKey); key != "" && !strings.HasPrefix(key, "${") {
		return key, KeySourceConfig
	}
	if cfg.Anthropic.UseBedrock {
		return "", KeySourceBedrock
	}
	return "", KeySourceNone
}

// RequireCredentials reports ErrNoAPIKey when the api backend is selected
// and neither a key nor Bedrock is configured. The cli and pool backends
// authenticate through the claude binary and never need a key.
func RequireCredentials(cfg *Config) error {
	if cfg == nil || cfg.Backend.Mode != BackendAPI {
		return nil
	}
	if _, src := ResolveAPIKey(cfg); src == KeySourceNone {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateAPIKey checks the key format without contacting Anthropic.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	case len(key) < 20:
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
