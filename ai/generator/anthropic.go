package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	concurrency int
}

// NewAnthropic creates a Generator backed by the Anthropic Messages API.
func NewAnthropic(cfg Config) (Generator, error) {
	c := cfg.withDefaults()
	if c.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(c.APIKey),
		anthropicopt.WithHTTPClient(newHTTPClient(c.Timeout)),
	}
	if c.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(c.BaseURL))
	}

	return &anthropicGenerator{
		client:      anthropic.NewClient(opts...),
		model:       c.Model,
		maxTokens:   c.MaxTokens,
		temperature: c.Temperature,
		timeout:     c.Timeout,
		concurrency: c.Concurrency,
	}, nil
}

func (g *anthropicGenerator) Name() string {
	return "anthropic/" + g.model
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompts []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	outputs, err := fanOut(ctx, prompts, g.concurrency, g.complete)
	if err != nil {
		slog.Error("Generator: messages batch failed", "model", g.model, "error", err)
		return nil, err
	}
	return outputs, nil
}

func (g *anthropicGenerator) complete(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   int64(g.maxTokens),
		Temperature: anthropic.Float(float64(g.temperature)),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages request failed: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}
