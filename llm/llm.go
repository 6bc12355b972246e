// Package llm is the single abstraction over language model providers.
// Every model call in the system goes through Provider; nothing outside
// this package knows which vendor is configured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrProvider wraps any provider-specific failure.
var ErrProvider = errors.New("llm provider error")

// Request is one completion call. System prompt plus user prompt, no
// chat history: this is a batch tool, not a chatbot.
type Request struct {
	System      string
	User        string
	Temperature float64 // 0.0-1.0, lower is more deterministic
	MaxTokens   int     // upper bound on response length
}

// Response is what comes back from any provider.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is the one interface synthesis and Q&A depend on.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "claude", "openai" or "openrouter"
	APIKey   string
	Model    string // provider default when empty
	BaseURL  string // override for tests
}

// New builds the configured provider. The provider set is closed; an
// unknown name is a configuration error, not a plugin hook.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "claude":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	case "openrouter":
		return NewOpenRouter(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (want claude, openai or openrouter)", ErrProvider, cfg.Provider)
	}
}
