// Package llm provides chat-completion clients for the model backends used
// by pick generation. Every provider sits behind the Backend interface so
// the orchestrator can walk a fallback chain without caring which API shape
// is underneath.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Backend is one model provider endpoint.
type Backend interface {
	// Name identifies the backend in logs and metrics, e.g.
	// "anthropic/claude-sonnet-4".
	Name() string
	// Complete sends a single-turn prompt and returns the raw text reply.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Provider identifiers accepted by NewBackend.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config describes one backend endpoint.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string // empty uses the provider default
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig fills the zero-value fields of cfg.
func DefaultConfig(cfg Config) Config {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			cfg.BaseURL = "https://api.openai.com/v1"
		case ProviderAnthropic:
			cfg.BaseURL = "https://api.anthropic.com/v1"
		case ProviderGemini:
			cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
	}
	return cfg
}

// NewBackend builds the client for cfg's provider.
func NewBackend(cfg Config) (Backend, error) {
	cfg = DefaultConfig(cfg)
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIBackend(cfg), nil
	case ProviderAnthropic:
		return newAnthropicBackend(cfg), nil
	case ProviderGemini:
		return newGeminiBackend(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func newHTTPClient(cfg Config) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

// CostTracker accumulates token usage across calls.
type CostTracker struct {
	mu               sync.Mutex
	PromptTokens     int
	CompletionTokens int
	Calls            int
}

// AddUsage records one call's token counts.
func (c *CostTracker) AddUsage(prompt, completion int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PromptTokens += prompt
	c.CompletionTokens += completion
	c.Calls++
}

// Totals returns the accumulated counts.
func (c *CostTracker) Totals() (prompt, completion, calls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PromptTokens, c.CompletionTokens, c.Calls
}
