package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads a config file, rejects unknown keys, and validates the result.
// Files ending in .yaml or .yml are parsed as YAML; everything else as TOML.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load without validation that falls back to defaults when
// the file does not exist. Validation is left to Resolve so environment and
// CLI overrides can fill in required values first.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return decodeFile(path)
}

// Resolve loads configuration and applies the override chain
// defaults -> config file -> environment -> CLI flags. It returns the
// validated config and the path it was read from.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	ApplyOverrides(cfg, env, cli)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

// ApplyOverrides copies environment and CLI values onto cfg and expands a
// leading "~/" in local paths.
func ApplyOverrides(cfg *Config, env EnvOverrides, cli CLIOverrides) {
	if env.LocalRoot != "" {
		cfg.Tracking.LocalRoot = env.LocalRoot
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if env.PFXPassword != "" {
		cfg.Auth.PFXPassword = env.PFXPassword
	}

	if cli.LocalRoot != nil {
		cfg.Tracking.LocalRoot = *cli.LocalRoot
	}

	cfg.Tracking.LocalRoot = expandTilde(cfg.Tracking.LocalRoot)
	cfg.Auth.PFXPath = expandTilde(cfg.Auth.PFXPath)
	cfg.Auth.TokenCache = expandTilde(cfg.Auth.TokenCache)
	cfg.Logging.LogFile = expandTilde(cfg.Logging.LogFile)
	cfg.State.JournalPath = expandTilde(cfg.State.JournalPath)
}

func decodeFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if isYAML(path) {
		return decodeYAML(path, data)
	}

	return decodeTOML(path, data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeTOML(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeYAML checks keys against the known set first (for suggestions), then
// decodes strictly.
func decodeYAML(path string, data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownMapKeys(raw); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// expandTilde replaces a leading "~/" with the user's home directory. If the
// home directory is unknown the path is returned unchanged and validation
// reports it as relative.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
