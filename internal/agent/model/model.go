// Package model provides the LLM backends the integration architect agent
// can run on.
package model

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config selects and configures a backend.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
	// ScenarioPath is the mock scenario file. Empty uses the built-in demo.
	ScenarioPath string
}

// New creates the LLM for cfg.
func New(ctx context.Context, cfg Config) (model.LLM, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		key := cfg.APIKey
		if key == "" {
			key = firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("gemini provider needs an API key (set GOOGLE_API_KEY)")
		}
		llm, err := gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini model %s: %w", cfg.Model, err)
		}
		return llm, nil

	case ProviderAnthropic:
		return NewAnthropicLLM(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil

	case ProviderMock:
		scenario := DemoScenario()
		if cfg.ScenarioPath != "" {
			var err error
			if scenario, err = LoadScenario(cfg.ScenarioPath); err != nil {
				return nil, err
			}
		}
		return NewMockLLM(scenario)

	default:
		return nil, fmt.Errorf("unknown model provider %q (available: %s, %s, %s)",
			cfg.Provider, ProviderGemini, ProviderAnthropic, ProviderMock)
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
