package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"golang.org/x/time/rate"

	"github.com/agrisight/agrisight/internal/agent"
	"github.com/agrisight/agrisight/internal/config"
	"github.com/agrisight/agrisight/internal/dispatch"
	"github.com/agrisight/agrisight/internal/flow"
	"github.com/agrisight/agrisight/internal/log"
	"github.com/agrisight/agrisight/internal/profile"
	"github.com/agrisight/agrisight/internal/session"
	"github.com/agrisight/agrisight/internal/tools"
)

// Setup validates cfg and builds the application.
// On error, anything already initialized is released.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	profiles, err := profile.Open(cfg.ProfilePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening profile store: %w", err)
	}
	a.Profiles = profiles

	sessions, err := session.Open(cfg.SessionDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	a.Sessions = sessions

	registry := tools.NewRegistry(g, cfg.ToolsEnabled, logger)
	if err := tools.RegisterWeatherTool(registry); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	pipeline, err := agent.New(agent.Config{
		Genkit:          g,
		Registry:        registry,
		Logger:          logger,
		ModelName:       cfg.ModelName,
		VisionModelName: cfg.VisionModelName,
		MaxToolRounds:   cfg.MaxToolRounds,
		RateLimiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	})
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Profiles:        profiles,
		Sessions:        sessions,
		Pipeline:        pipeline,
		Flows:           flow.NewMachine(profiles, sessions, logger),
		Logger:          logger,
		MaxHistoryTurns: cfg.MaxHistoryTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("building dispatcher: %w", err)
	}
	a.Dispatcher = dispatcher

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"tools_enabled", cfg.ToolsEnabled,
		"data_dir", cfg.DataDir,
	)
	return a, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
// Supports gemini (default), openai, and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		for _, name := range ollamaModels(cfg) {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: name,
				Type: "chat",
			}, nil)
		}
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// ollamaModels lists the distinct bare model names to register with the
// ollama plugin. Config model names are provider-qualified
// ("ollama/llama3.3"); the plugin wants the bare part.
func ollamaModels(cfg *config.Config) []string {
	names := []string{bareModelName(cfg.ModelName)}
	if v := bareModelName(cfg.VisionModelName); v != "" && v != names[0] {
		names = append(names, v)
	}
	return names
}

func bareModelName(qualified string) string {
	if qualified == "" {
		return ""
	}
	if _, bare, ok := strings.Cut(qualified, "/"); ok {
		return bare
	}
	return qualified
}
