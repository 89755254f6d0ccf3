package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4.1",
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "~/.frontdesk/conversations",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults (env overlay still applies).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	expandPaths(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FRONTDESK_OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FRONTDESK_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("FRONTDESK_DIRECTORY_URL"); v != "" {
		cfg.Directory.BaseURL = v
	}
}

func expandPaths(cfg *Config) {
	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	cfg.Storage.SQLitePath = expandHome(cfg.Storage.SQLitePath)
	cfg.Prompts.Dir = expandHome(cfg.Prompts.Dir)
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
