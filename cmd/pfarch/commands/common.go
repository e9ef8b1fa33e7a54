package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/pfarch/pfarch/internal/config"
	"github.com/pfarch/pfarch/internal/decision"
	"github.com/pfarch/pfarch/internal/evaluator"
	"github.com/pfarch/pfarch/internal/intent"
	"github.com/pfarch/pfarch/internal/knowledge"
)

// loadConfig sets up logging and returns the configuration with the global
// flag overrides applied.
func loadConfig() (*config.File, error) {
	if err := setupLog(logLevelFlags); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if databasePath != "" {
		cfg.Database.Path = databasePath
	}
	return cfg, nil
}

func openStore(cfg *config.File) (*knowledge.Store, error) {
	store, err := knowledge.Open(cfg.Database.Path, cfg.Database.ProfileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}

// newClassifier builds the budget classifier selected by intent.classifier.
func newClassifier(ctx context.Context, cfg *config.File) (intent.Classifier, error) {
	keywords, err := intent.NewKeywordClassifier(cfg.Intent.AuthorizationPatterns...)
	if err != nil {
		return nil, err
	}
	if cfg.Intent.Classifier == config.ClassifierKeyword {
		return keywords, nil
	}

	apiKey := getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY"))
	genai, err := intent.NewGenAIClassifier(ctx, apiKey, cfg.Intent.Model)
	if err != nil {
		if cfg.Intent.Classifier == config.ClassifierGenAIWithFallback {
			return keywords, nil
		}
		return nil, err
	}
	if cfg.Intent.Classifier == config.ClassifierGenAI {
		return genai, nil
	}
	return intent.Fallback{Primary: genai, Secondary: keywords}, nil
}

func newEvaluator(ctx context.Context, cfg *config.File, store *knowledge.Store, opts ...evaluator.Option) (*evaluator.Evaluator, error) {
	policy, err := lookupPolicy(cfg.Decision.Policy)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]evaluator.Option{
		evaluator.WithPolicy(policy),
		evaluator.WithClassifier(classifier),
	}, opts...)
	return evaluator.New(store, store, opts...)
}

func lookupPolicy(name string) (decision.Policy, error) {
	policy, err := decision.LookupPolicy(name)
	if err != nil {
		return decision.Policy{}, fmt.Errorf("%w (known: %v)", err, decision.PolicyNames())
	}
	return policy, nil
}
