package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const githubModelsBaseURL = "https://models.inference.ai.azure.com"

// ErrUnknownProvider is returned for a provider name with no adapter.
var ErrUnknownProvider = errors.New("unknown llm provider")

// ProviderConfig selects and configures the completion backend.
type ProviderConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	APIVersion  string  `yaml:"api_version"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// New builds an Engine for the configured provider. All supported providers
// speak the OpenAI chat protocol.
func New(cfg ProviderConfig) (*LangChain, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required for provider %q", cfg.Provider)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
	case "github_models":
		base := cfg.BaseURL
		if base == "" {
			base = githubModelsBaseURL
		}
		opts = append(opts, openai.WithBaseURL(base))
	case "azure_openai":
		if cfg.BaseURL == "" {
			return nil, errors.New("azure_openai requires base_url (the resource endpoint)")
		}
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.BaseURL),
		)
		if cfg.APIVersion != "" {
			opts = append(opts, openai.WithAPIVersion(cfg.APIVersion))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	var callOpts []llms.CallOption
	if cfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return NewLangChain(client, callOpts...), nil
}
