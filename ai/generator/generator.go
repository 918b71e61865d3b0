// Package generator adapts generative models to the batch contract used by the
// scheduler: one output per prompt, same order, or one error for the whole batch.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Generator turns a batch of rendered prompts into raw model outputs.
//
// Implementations return exactly len(prompts) outputs in input order, or an
// error for the whole batch. They must never drop entries silently.
type Generator interface {
	Generate(ctx context.Context, prompts []string) ([]string, error)
	// Name identifies the backing model for logs and metrics.
	Name() string
}

// ErrUnsupportedProvider is returned by New for unknown providers.
var ErrUnsupportedProvider = errors.New("unsupported generator provider")

// Config represents generator configuration.
type Config struct {
	Provider    string // extractive, openai-compatible providers, anthropic, http
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 256
	Temperature float32 // default: 0
	Timeout     time.Duration
	// Concurrency bounds parallel calls within one batch for providers
	// without a native batch endpoint.
	Concurrency int
}

const (
	defaultMaxTokens   = 256
	defaultTimeout     = 120 * time.Second
	defaultConcurrency = 4
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.Concurrency <= 0 {
		out.Concurrency = defaultConcurrency
	}
	return out
}

// New creates the generator selected by cfg.Provider.
func New(cfg *Config) (Generator, error) {
	c := cfg.withDefaults()
	provider := strings.ToLower(strings.TrimSpace(c.Provider))

	switch {
	case provider == "" || provider == "extractive":
		return NewExtractive(), nil
	case provider == "anthropic":
		return NewAnthropic(c)
	case provider == "http":
		return NewHTTP(c)
	case isOpenAICompatible(provider):
		return NewOpenAI(c)
	default:
		slog.Warn("unknown generator provider", "provider", c.Provider)
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, c.Provider)
	}
}

func checkOutputs(name string, prompts, outputs []string) error {
	if len(outputs) != len(prompts) {
		return fmt.Errorf("%s: returned %d outputs for %d prompts", name, len(outputs), len(prompts))
	}
	return nil
}
