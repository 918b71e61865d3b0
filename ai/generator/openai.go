package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// systemPrompt tells chat models how to answer a rendered prompt.
const systemPrompt = `You write one-sentence summaries of entities in news documents.
The input lists entity mentions as "[n] mention" lines followed by "document: <text>".
Summarize only entity [1] as it is described in the document.
Answer with a single line in the form "[1] <mention>: <summary>".`

// providerBaseURLs holds default endpoints for OpenAI-compatible providers.
var providerBaseURLs = map[string]string{
	"openai":      "",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
}

func isOpenAICompatible(provider string) bool {
	_, ok := providerBaseURLs[provider]
	return ok
}

type openAIGenerator struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	concurrency int
}

// NewOpenAI creates a Generator backed by an OpenAI-compatible chat completion API.
func NewOpenAI(cfg Config) (Generator, error) {
	c := cfg.withDefaults()
	provider := strings.ToLower(c.Provider)
	if c.Model == "" {
		return nil, fmt.Errorf("%s: model is required", provider)
	}

	clientConfig := openai.DefaultConfig(c.APIKey)
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = providerBaseURLs[provider]
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient(c.Timeout)

	return &openAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    provider,
		model:       c.Model,
		maxTokens:   c.MaxTokens,
		temperature: c.Temperature,
		timeout:     c.Timeout,
		concurrency: c.Concurrency,
	}, nil
}

func (g *openAIGenerator) Name() string {
	return g.provider + "/" + g.model
}

func (g *openAIGenerator) Generate(ctx context.Context, prompts []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	slog.Debug("Generator: chat batch",
		"model", g.model,
		"batch_size", len(prompts),
		"max_tokens", g.maxTokens,
	)

	outputs, err := fanOut(ctx, prompts, g.concurrency, g.complete)
	if err != nil {
		slog.Error("Generator: chat batch failed", "model", g.model, "error", err)
		return nil, err
	}
	return outputs, nil
}

func (g *openAIGenerator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s", g.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

// fanOut calls fn once per prompt with at most limit calls in flight. Any
// failure fails the whole batch.
func fanOut(ctx context.Context, prompts []string, limit int, fn func(context.Context, string) (string, error)) ([]string, error) {
	outputs := make([]string, len(prompts))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, prompt := range prompts {
		g.Go(func() error {
			out, err := fn(ctx, prompt)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
