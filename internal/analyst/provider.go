package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/stellarlinkco/vouchvault/internal/config"
)

// Factory builds the model for a model name. Tests swap it for a stub.
type Factory func(ctx context.Context, cfg *config.Config, modelName string) (model.Model, error)

// DefaultFactory builds an agentsdk-go provider from the provider config.
func DefaultFactory(ctx context.Context, cfg *config.Config, modelName string) (model.Model, error) {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return nil, fmt.Errorf("api key not set (VOUCHVAULT_API_KEY)")
	}
	var provider model.Provider
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	case "", "anthropic":
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
	m, err := provider.Model(ctx)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	return m, nil
}

// VisionModelName is the model used for photo analysis.
func VisionModelName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Agent.VisionModel); name != "" {
		return name
	}
	return cfg.Agent.Model
}

// VisionSupported reports whether the configured provider forwards image
// blocks in user messages.
func VisionSupported(cfg *config.Config) bool {
	return cfg.Provider.Type == "" || cfg.Provider.Type == "anthropic"
}
