package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type httpGenerator struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewHTTP creates a Generator for a self-hosted batch inference server.
//
// The server receives POST {base}/generate with {"inputs": [...]} and answers
// {"outputs": [...]} with one output per input.
func NewHTTP(cfg Config) (Generator, error) {
	c := cfg.withDefaults()
	if c.BaseURL == "" {
		return nil, errors.New("http: base url is required")
	}
	return &httpGenerator{
		client:    newHTTPClient(c.Timeout),
		endpoint:  strings.TrimRight(c.BaseURL, "/") + "/generate",
		apiKey:    c.APIKey,
		model:     c.Model,
		maxTokens: c.MaxTokens,
		timeout:   c.Timeout,
	}, nil
}

func (g *httpGenerator) Name() string {
	if g.model == "" {
		return "http"
	}
	return "http/" + g.model
}

type generateRequest struct {
	Model     string   `json:"model,omitempty"`
	Inputs    []string `json:"inputs"`
	MaxTokens int      `json:"max_new_tokens,omitempty"`
}

type generateResponse struct {
	Outputs []string `json:"outputs"`
}

func (g *httpGenerator) Generate(ctx context.Context, prompts []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Model: g.model, Inputs: prompts, MaxTokens: g.maxTokens})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // cleanup

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("generate API error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	if err := checkOutputs(g.Name(), prompts, result.Outputs); err != nil {
		return nil, err
	}
	return result.Outputs, nil
}
