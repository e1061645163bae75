// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest):
//  1. Environment variables (AGRISIGHT_* plus explicit secret bindings)
//  2. Config file (~/.agrisight/config.yaml, or ./config.yaml)
//  3. Defaults
//
// Validation runs immediately after loading (fail-fast) and reports
// sentinel errors checkable with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxToolRounds indicates the tool-loop bound is out of range.
	ErrInvalidMaxToolRounds = errors.New("invalid max tool rounds")

	// ErrInvalidMaxHistoryTurns indicates the history cap is out of range.
	ErrInvalidMaxHistoryTurns = errors.New("invalid max history turns")

	// ErrInvalidRateLimit indicates the provider rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidDataDir indicates the data directory is unusable.
	ErrInvalidDataDir = errors.New("invalid data directory")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	// DefaultMaxToolRounds bounds the model-call/tool-execution loop. The
	// loop must terminate even if the model keeps requesting tools.
	DefaultMaxToolRounds = 3

	// DefaultMaxHistoryTurns is the per-user history cap applied after each
	// persisted turn. 0 disables truncation.
	DefaultMaxHistoryTurns = 40
)

// Config stores application configuration.
type Config struct {
	// Model provider configuration.
	Provider        string `mapstructure:"provider"`          // "gemini" (default), "openai", "ollama"
	ModelName       string `mapstructure:"model_name"`        // e.g. "googleai/gemini-2.5-flash"
	VisionModelName string `mapstructure:"vision_model_name"` // model for image turns; empty = use ModelName
	OllamaHost      string `mapstructure:"ollama_host"`       // only used when provider is "ollama"

	// Conversation configuration.
	MaxToolRounds   int `mapstructure:"max_tool_rounds"`
	MaxHistoryTurns int `mapstructure:"max_history_turns"`

	// Tool registry. Disabled by default: the catalogue is wired through
	// the pipeline but withheld from the model until enabled.
	ToolsEnabled bool `mapstructure:"tools_enabled"`

	// Provider rate limiting (requests per second, burst size).
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// Durable storage. ProfilePath and SessionDBPath default to files
	// under DataDir.
	DataDir       string `mapstructure:"data_dir"`
	ProfilePath   string `mapstructure:"profile_path"`
	SessionDBPath string `mapstructure:"session_db_path"`

	// Logging.
	LogLevel string `mapstructure:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, config file, and environment.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".agrisight")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("AGRISIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.applyPathDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every default value on the viper instance.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("vision_model_name", "")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("max_tool_rounds", DefaultMaxToolRounds)
	v.SetDefault("max_history_turns", DefaultMaxHistoryTurns)
	v.SetDefault("tools_enabled", false)

	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)

	v.SetDefault("data_dir", configDir)
	v.SetDefault("profile_path", "")
	v.SetDefault("session_db_path", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// applyPathDefaults fills the storage paths from DataDir when unset.
func (c *Config) applyPathDefaults() {
	if c.ProfilePath == "" {
		c.ProfilePath = filepath.Join(c.DataDir, "profiles.json")
	}
	if c.SessionDBPath == "" {
		c.SessionDBPath = filepath.Join(c.DataDir, "sessions.db")
	}
}

// SlogLevel maps the configured level string onto slog levels. Unknown
// values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
