package llm

import "fmt"

const (
	openrouterBaseURL      = "https://openrouter.ai/api/v1"
	openrouterDefaultModel = "anthropic/claude-sonnet-4"
)

// NewOpenRouter creates the OpenRouter provider. OpenRouter exposes an
// OpenAI-compatible API, so it reuses the chat completions client with
// its own base URL and default model.
func NewOpenRouter(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openrouter api key not set", ErrProvider)
	}
	if cfg.Model == "" {
		cfg.Model = openrouterDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openrouterBaseURL
	}
	p, err := NewOpenAI(cfg)
	if err != nil {
		return nil, err
	}
	p.name = "openrouter"
	return p, nil
}
