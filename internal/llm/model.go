package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/askdb/askdb/internal/config"
)

// Model wraps a langchaingo model as a Completer.
type Model struct {
	llm         llms.Model
	temperature float64
}

func NewModel(model llms.Model, temperature float64) *Model {
	return &Model{llm: model, temperature: temperature}
}

func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, llms.WithTemperature(m.temperature))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}

// DefaultOpenAIBaseURL is used by the openai-compatible provider when no base
// URL is configured. The langchaingo providers apply their own defaults.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// NewFromConfig builds the configured provider, bounded by the configured timeout.
func NewFromConfig(cfg config.AIConfig) (Completer, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Provider {
	case config.AIProviderOpenAICompatible, "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOpenAIBaseURL
		}
		client, err := NewOpenAICompatible(OpenAIConfig{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai-compatible client: %w", err)
		}
		return WithTimeout(client, cfg.Timeout), nil

	case config.AIProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai API key required")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.AIProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.AIProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return WithTimeout(NewModel(model, cfg.Temperature), cfg.Timeout), nil
}
