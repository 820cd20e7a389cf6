// Package config loads tunacode configuration: defaults, then the TOML
// file, then environment overrides (env wins).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	tunacode "github.com/ryumacodes/tunacode"
)

type Config struct {
	DefaultModel         string   `toml:"default_model"`
	LocalMode            bool     `toml:"local_mode"`
	ContextWindowSize    int      `toml:"context_window_size"`
	MaxRetries           int      `toml:"max_retries"`
	ToolStrictValidation bool     `toml:"tool_strict_validation"`
	RequestDelaySeconds  float64  `toml:"request_delay"`
	GlobalTimeoutSeconds float64  `toml:"global_request_timeout"`
	MaxIterations        int      `toml:"max_iterations"`
	Yolo                 bool     `toml:"yolo"`
	ToolIgnore           []string `toml:"tool_ignore"`
	WorkspacePath        string   `toml:"workspace_path"`

	Providers map[string]ProviderConfig `toml:"providers"`
	Pricing   map[string]PricingConfig  `toml:"pricing"`
	Observer  ObserverConfig            `toml:"observer"`
	Snapshot  SnapshotConfig            `toml:"snapshot"`
}

type ProviderConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
}

type PricingConfig struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

type SnapshotConfig struct {
	Backend     string `toml:"backend"` // "", "sqlite", "postgres"
	Path        string `toml:"path"`    // sqlite file
	PostgresURL string `toml:"postgres_url"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		DefaultModel:         "openai:gpt-4.1",
		ContextWindowSize:    200_000,
		MaxRetries:           3,
		GlobalTimeoutSeconds: 120,
		MaxIterations:        15,
		Providers: map[string]ProviderConfig{
			"openai": {BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
		},
		Snapshot: SnapshotConfig{Path: "tunacode.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "tunacode.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("TUNACODE_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("TUNACODE_WORKSPACE"); v != "" {
		cfg.WorkspacePath = v
	}
	if os.Getenv("TUNACODE_LOCAL_MODE") == "1" {
		cfg.LocalMode = true
	}
	if os.Getenv("TUNACODE_YOLO") == "1" {
		cfg.Yolo = true
	}
	return cfg
}

// Session converts the loaded configuration into the core's view.
func (c Config) Session() tunacode.SessionConfig {
	providers := make(map[string]tunacode.ProviderSettings, len(c.Providers))
	for id, p := range c.Providers {
		providers[id] = tunacode.ProviderSettings{BaseURL: p.BaseURL, APIKeyEnv: p.APIKeyEnv}
	}
	return tunacode.SessionConfig{
		DefaultModel:         c.DefaultModel,
		LocalMode:            c.LocalMode,
		ContextWindowSize:    c.ContextWindowSize,
		MaxRetries:           c.MaxRetries,
		ToolStrictValidation: c.ToolStrictValidation,
		RequestDelay:         time.Duration(c.RequestDelaySeconds * float64(time.Second)),
		GlobalRequestTimeout: time.Duration(c.GlobalTimeoutSeconds * float64(time.Second)),
		Providers:            providers,
	}
}
