package config

import (
	"fmt"
	"os"
	"slices"
)

// supportedProviders are the model providers the app can initialize.
var supportedProviders = []string{ProviderGemini, ProviderOpenAI, ProviderOllama}

// Validate checks configuration values and returns sentinel errors that can
// be inspected with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if !slices.Contains(supportedProviders, c.Provider) {
		return fmt.Errorf("%w: %q (supported: %v)", ErrInvalidProvider, c.Provider, supportedProviders)
	}

	// API key requirements depend on the provider. Ollama talks to a local
	// server and needs none.
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.MaxToolRounds < 1 || c.MaxToolRounds > 10 {
		return fmt.Errorf("%w: must be between 1 and 10, got %d", ErrInvalidMaxToolRounds, c.MaxToolRounds)
	}

	// 0 disables truncation; otherwise keep enough room for at least one
	// full turn with tool traffic.
	if c.MaxHistoryTurns != 0 && (c.MaxHistoryTurns < 4 || c.MaxHistoryTurns > 10000) {
		return fmt.Errorf("%w: must be 0 or between 4 and 10000, got %d", ErrInvalidMaxHistoryTurns, c.MaxHistoryTurns)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rps=%.2f burst=%d", ErrInvalidRateLimit, c.RateLimitRPS, c.RateLimitBurst)
	}

	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrInvalidDataDir)
	}

	return nil
}
