package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hrygo/spansum/ai/generator"
	"github.com/hrygo/spansum/ai/metrics"
	"github.com/hrygo/spansum/ai/observability/logging"
	"github.com/hrygo/spansum/ai/scheduler"
	"github.com/hrygo/spansum/ai/summarize"
	"github.com/hrygo/spansum/internal/profile"
	"github.com/hrygo/spansum/internal/version"
	"github.com/hrygo/spansum/server"
)

var (
	rootCmd = &cobra.Command{
		Use:   "spansum",
		Short: `A span-targeted summarization service. Summarizes the entities marked in a document, one summary per target.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Only load .env for direct binary execution (not when running as systemd service)
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile := profileFromViper()
			instanceProfile.FromEnv()
			if !grpcPortExplicit(cmd.Flags()) {
				instanceProfile.ApplyLegacyPort()
			}
			if err := instanceProfile.Validate(); err != nil {
				return err
			}
			return run(instanceProfile)
		},
	}
)

func profileFromViper() *profile.Profile {
	return &profile.Profile{
		Mode:     viper.GetString("mode"),
		Addr:     viper.GetString("addr"),
		GRPCPort: viper.GetInt("grpc-port"),
		HTTPPort: viper.GetInt("http-port"),
		LogLevel: viper.GetString("log-level"),
		Version:  version.GetCurrentVersion(viper.GetString("mode")),

		MaxDocumentChars: viper.GetInt("max-document-chars"),
		ContextSentences: viper.GetInt("context-sentences"),
		MaxContextChars:  viper.GetInt("max-context-chars"),
		RequestTimeout:   viper.GetDuration("request-timeout"),
		FailurePolicy:    viper.GetString("failure-policy"),

		MaxBatchSize:     viper.GetInt("max-batch-size"),
		MaxBatchWait:     viper.GetDuration("max-batch-wait"),
		QueueCapacity:    viper.GetInt("queue-capacity"),
		AdmissionTimeout: viper.GetDuration("admission-timeout"),
		MaxInFlight:      viper.GetInt("max-in-flight"),
		BatchesPerSecond: viper.GetFloat64("batches-per-second"),

		GeneratorProvider:    viper.GetString("generator-provider"),
		GeneratorModel:       viper.GetString("generator-model"),
		GeneratorBaseURL:     viper.GetString("generator-base-url"),
		GeneratorTimeout:     viper.GetDuration("generator-timeout"),
		GeneratorConcurrency: viper.GetInt("generator-concurrency"),
		GeneratorMaxTokens:   viper.GetInt("generator-max-tokens"),
	}
}

// grpcPortExplicit reports whether --grpc-port or SPANSUM_GRPC_PORT was given,
// either of which takes precedence over SPANSUM_PORT.
func grpcPortExplicit(flags *pflag.FlagSet) bool {
	if flags.Changed("grpc-port") {
		return true
	}
	_, ok := os.LookupEnv("SPANSUM_GRPC_PORT")
	return ok
}

func run(instanceProfile *profile.Profile) error {
	level, err := logging.ParseLevel(instanceProfile.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(os.Stderr, instanceProfile.Mode, level)
	slog.SetDefault(logger)

	gen, err := generator.New(instanceProfile.GeneratorConfig())
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	sched := scheduler.New(gen, instanceProfile.SchedulerConfig(),
		scheduler.WithLogger(logger),
		scheduler.WithRecorder(exporter),
	)
	svc := summarize.NewService(sched, instanceProfile.PipelineConfig(),
		summarize.WithLogger(logger),
		summarize.WithRecorder(exporter),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := server.NewServer(ctx, instanceProfile, svc, exporter)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, terminationSignals...)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	printGreetings(instanceProfile, s, gen.Name())

	<-c
	s.Shutdown(ctx)
	// Listeners are closed, so the queue only drains from here on.
	if err := sched.Close(instanceProfile.RequestTimeout); err != nil {
		slog.Warn("scheduler did not drain", "error", err)
	}
	return nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("grpc-port", 50051)
	viper.SetDefault("http-port", 28082)

	flags := rootCmd.Flags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("grpc-port", 50051, "port of the gRPC listener")
	flags.Int("http-port", 28082, "port of the Connect, metrics and health listener")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	flags.Int("max-document-chars", 0, "maximum document length in code points (0 = default)")
	flags.Int("context-sentences", 1, "sentences of context added on each side of a span")
	flags.Int("max-context-chars", 0, "maximum context window in code points (0 = unlimited)")
	flags.Duration("request-timeout", 60*time.Second, "per-request deadline")
	flags.String("failure-policy", "omit", `how failed targets appear in responses, "omit" or "empty"`)

	flags.Int("max-batch-size", 8, "maximum prompts per generator call")
	flags.Duration("max-batch-wait", 50*time.Millisecond, "how long a partial batch waits for more work")
	flags.Int("queue-capacity", 1024, "maximum queued prompts")
	flags.Duration("admission-timeout", 2*time.Second, "how long a submission waits for queue space")
	flags.Int("max-in-flight", 1, "maximum concurrent generator calls")
	flags.Float64("batches-per-second", 0, "generator call rate limit (0 = unlimited)")

	flags.String("generator-provider", "extractive", "generator provider (extractive, openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama, anthropic, http)")
	flags.String("generator-model", "", "generator model name")
	flags.String("generator-base-url", "", "generator endpoint override")
	flags.Duration("generator-timeout", 120*time.Second, "generator call timeout")
	flags.Int("generator-concurrency", 4, "parallel calls within a batch for chat providers")
	flags.Int("generator-max-tokens", 256, "maximum tokens per summary")

	flags.VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})

	viper.SetEnvPrefix("spansum")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(summarizeCmd)
}

func printGreetings(profile *profile.Profile, s *server.Server, generatorName string) {
	fmt.Printf("spansum %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}

	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Generator: %s\n", generatorName)
	fmt.Printf("gRPC listening on %s\n", s.GRPCAddr())
	fmt.Printf("Connect, metrics and health on http://%s\n", s.HTTPAddr())
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
