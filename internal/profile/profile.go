package profile

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/spansum/ai/assembler"
	"github.com/hrygo/spansum/ai/document"
	"github.com/hrygo/spansum/ai/generator"
	"github.com/hrygo/spansum/ai/scheduler"
	"github.com/hrygo/spansum/ai/summarize"
)

// Profile is configuration to start main server.
type Profile struct {
	Mode     string
	Addr     string
	Version  string
	LogLevel string
	GRPCPort int
	HTTPPort int

	// Request pipeline
	MaxDocumentChars int
	ContextSentences int
	MaxContextChars  int
	RequestTimeout   time.Duration
	FailurePolicy    string

	// Batch scheduler
	MaxBatchSize     int
	MaxBatchWait     time.Duration
	QueueCapacity    int
	AdmissionTimeout time.Duration
	MaxInFlight      int
	BatchesPerSecond float64

	// Generator. The API key is only read from the environment.
	GeneratorProvider    string // extractive, openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama, anthropic, http
	GeneratorModel       string
	GeneratorAPIKey      string
	GeneratorBaseURL     string
	GeneratorTimeout     time.Duration
	GeneratorConcurrency int
	GeneratorMaxTokens   int
}

// Default models per provider, used when no model is configured.
var generatorModelDefaults = map[string]string{
	"openai":      "gpt-4o-mini",
	"deepseek":    "deepseek-chat",
	"siliconflow": "Qwen/Qwen2.5-7B-Instruct",
	"zai":         "glm-4-flash",
	"dashscope":   "qwen-turbo",
	"openrouter":  "deepseek/deepseek-chat",
	"ollama":      "llama3.1",
	"anthropic":   "claude-3-5-haiku-latest",
}

// Providers that run without an API key.
var keylessProviders = map[string]bool{
	"extractive": true,
	"ollama":     true,
	"http":       true,
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads settings that only come from the environment. Everything
// with a flag is resolved by the flag layer, which already reads SPANSUM_*.
func (p *Profile) FromEnv() {
	p.GeneratorAPIKey = getEnvOrDefault("SPANSUM_GENERATOR_API_KEY", p.GeneratorAPIKey)
}

// ApplyLegacyPort reads SPANSUM_PORT, the old single-port setting, into the
// gRPC port. Callers skip it when the port was set explicitly.
func (p *Profile) ApplyLegacyPort() {
	p.GRPCPort = getEnvOrDefaultInt("SPANSUM_PORT", p.GRPCPort)
}

// Validate normalizes the profile and applies defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	for name, port := range map[string]int{"grpc-port": p.GRPCPort, "http-port": p.HTTPPort} {
		if port < 0 || port > 65535 {
			return errors.Errorf("invalid %s %d", name, port)
		}
	}
	if p.GRPCPort != 0 && p.GRPCPort == p.HTTPPort {
		return errors.Errorf("grpc-port and http-port must differ, both are %d", p.GRPCPort)
	}

	if p.MaxDocumentChars <= 0 {
		p.MaxDocumentChars = document.DefaultMaxChars
	}
	if p.ContextSentences < 0 {
		return errors.Errorf("context-sentences must not be negative, got %d", p.ContextSentences)
	}
	if p.MaxContextChars < 0 {
		return errors.Errorf("max-context-chars must not be negative, got %d", p.MaxContextChars)
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 60 * time.Second
	}
	if _, err := assembler.ParsePolicy(p.FailurePolicy); err != nil {
		return errors.Wrap(err, "invalid failure-policy")
	}

	defaults := scheduler.DefaultConfig()
	if p.MaxBatchSize <= 0 {
		p.MaxBatchSize = defaults.MaxBatchSize
	}
	if p.MaxBatchWait < 0 {
		return errors.Errorf("max-batch-wait must not be negative, got %s", p.MaxBatchWait)
	}
	if p.QueueCapacity <= 0 {
		p.QueueCapacity = defaults.QueueCapacity
	}
	if p.QueueCapacity < p.MaxBatchSize {
		slog.Warn("queue-capacity is smaller than max-batch-size, batches will never fill",
			"queue_capacity", p.QueueCapacity,
			"max_batch_size", p.MaxBatchSize)
	}
	if p.AdmissionTimeout <= 0 {
		p.AdmissionTimeout = defaults.AdmissionTimeout
	}
	if p.MaxInFlight <= 0 {
		p.MaxInFlight = defaults.MaxInFlight
	}
	if p.BatchesPerSecond < 0 {
		return errors.Errorf("batches-per-second must not be negative, got %v", p.BatchesPerSecond)
	}

	return p.validateGenerator()
}

func (p *Profile) validateGenerator() error {
	p.GeneratorProvider = strings.ToLower(strings.TrimSpace(p.GeneratorProvider))
	if p.GeneratorProvider == "" {
		p.GeneratorProvider = "extractive"
	}
	if p.GeneratorModel == "" {
		p.GeneratorModel = generatorModelDefaults[p.GeneratorProvider]
	}
	if p.GeneratorProvider == "http" && p.GeneratorBaseURL == "" {
		return errors.New("generator-base-url is required for the http provider")
	}
	if !keylessProviders[p.GeneratorProvider] && p.GeneratorAPIKey == "" {
		return errors.Errorf("SPANSUM_GENERATOR_API_KEY is required for provider %s", p.GeneratorProvider)
	}
	if p.GeneratorTimeout <= 0 {
		p.GeneratorTimeout = 120 * time.Second
	}
	if p.GeneratorConcurrency <= 0 {
		p.GeneratorConcurrency = 4
	}
	return nil
}

// GeneratorConfig returns the generator settings.
func (p *Profile) GeneratorConfig() *generator.Config {
	return &generator.Config{
		Provider:    p.GeneratorProvider,
		Model:       p.GeneratorModel,
		APIKey:      p.GeneratorAPIKey,
		BaseURL:     p.GeneratorBaseURL,
		MaxTokens:   p.GeneratorMaxTokens,
		Timeout:     p.GeneratorTimeout,
		Concurrency: p.GeneratorConcurrency,
	}
}

// SchedulerConfig returns the batch scheduler settings.
func (p *Profile) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxBatchSize:     p.MaxBatchSize,
		MaxBatchWait:     p.MaxBatchWait,
		QueueCapacity:    p.QueueCapacity,
		AdmissionTimeout: p.AdmissionTimeout,
		MaxInFlight:      p.MaxInFlight,
		BatchesPerSecond: p.BatchesPerSecond,
	}
}

// PipelineConfig returns the request pipeline settings. Call after Validate.
func (p *Profile) PipelineConfig() summarize.Config {
	policy, _ := assembler.ParsePolicy(p.FailurePolicy)
	return summarize.Config{
		Document:         document.Options{MaxChars: p.MaxDocumentChars},
		ContextSentences: p.ContextSentences,
		MaxContextChars:  p.MaxContextChars,
		RequestTimeout:   p.RequestTimeout,
		FailurePolicy:    policy,
	}
}
