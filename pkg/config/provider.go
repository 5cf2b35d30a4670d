package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/forge-recipe/pkg/llm/openai"
)

// BuildProvider creates the selector-suggestion provider. Each setting is
// resolved as: explicit argument > environment > config file > default.
func BuildProvider(model, baseURL, apiKey string) (*openai.Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	var opts []openai.ProviderOption
	if section := GetLLM(); section != nil {
		if model == "" {
			model = section.GetModel()
		}
		if baseURL == "" {
			baseURL = section.GetBaseURL()
		}
		if apiKey == "" {
			apiKey = section.GetAPIKey()
		}
		if t := section.GetTimeout(); t > 0 {
			opts = append(opts, openai.WithTimeout(t))
		}
	}

	if apiKey == "" {
		return nil, errors.New("API key is required. Set OPENAI_API_KEY, pass --api-key, or set llm.api_key in ~/.forge-recipe/config.json")
	}

	opts = append(opts, openai.WithModel(model), openai.WithTemperature(0))
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	provider, err := openai.NewProvider(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	return provider, nil
}
