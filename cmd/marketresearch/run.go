package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammad-safakhou/marketresearch/config"
	"github.com/mohammad-safakhou/marketresearch/internal/executor"
	"github.com/mohammad-safakhou/marketresearch/internal/runtime"
	"github.com/mohammad-safakhou/marketresearch/internal/store"
	"github.com/mohammad-safakhou/marketresearch/internal/tools"
	"github.com/mohammad-safakhou/marketresearch/internal/trace"
	"github.com/mohammad-safakhou/marketresearch/internal/workflow"
	"github.com/mohammad-safakhou/marketresearch/provider"
	"github.com/mohammad-safakhou/marketresearch/tools/web_search"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type runFlags struct {
	cfgPath  string
	output   string
	model    string
	provider string
	traceDir string
	noTrace  bool
}

// apply layers command line overrides on top of the loaded config.
func (f runFlags) apply(cfg *config.Config) error {
	if f.provider != "" {
		cfg.LLM.Provider = f.provider
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.output != "" {
		cfg.Output.File = f.output
	}
	if f.traceDir != "" {
		cfg.Trace.Dir = f.traceDir
	}
	if f.noTrace {
		cfg.Trace.Enabled = false
	}
	cfg.LLM = cfg.LLM.Normalize()
	return cfg.LLM.Validate()
}

func runCMD() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Research a topic and write a market report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flags.cfgPath)
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			return runResearch(cmd.Context(), cfg, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "report file (default output.file)")
	cmd.Flags().StringVar(&flags.model, "model", "", "model name override")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "openai or anthropic")
	cmd.Flags().StringVar(&flags.traceDir, "trace-dir", "", "trajectory directory")
	cmd.Flags().BoolVar(&flags.noTrace, "no-trace", false, "disable trajectory tracing")
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "config file (default is ./config)")
	return cmd
}

func runResearch(ctx context.Context, cfg *config.Config, topic string) error {
	logger := log.New(log.Writer(), "[RUN] ", log.LstdFlags)
	client, err := provider.ParseClient(cfg.LLM.Provider)
	if err != nil {
		return err
	}
	llmCfg := provider.Config{
		Provider:    client,
		APIKey:      cfg.LLM.APIKey(),
		Model:       cfg.LLM.ResolvedModel(),
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		MaxRetries:  cfg.LLM.MaxRetries,
		Timeout:     cfg.LLM.Timeout,
	}
	llm, err := provider.New(llmCfg)
	if err != nil {
		return fmt.Errorf("%w (set %s)", err, cfg.LLM.APIKeyEnv())
	}
	model := provider.ResolveModel(llmCfg)

	tele, _, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tele.Shutdown(shutdownCtx)
	}()
	metrics := runtime.NewMetrics()

	searcher, err := newSearcher(cfg.Search)
	if err != nil {
		return err
	}
	gateway := tools.New(
		tools.WithSearcher(searcher),
		tools.WithOutputDir(cfg.Output.Dir),
		tools.WithMetrics(metrics),
	)
	exec := executor.New(executor.WithGateway(gateway), executor.WithMetrics(metrics.ExecutorMetrics()))

	var sinks []trace.Sink
	if cfg.Trace.Enabled && cfg.Trace.RedisStream && cfg.Storage.Redis.Configured() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.Redis.Address(), Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Printf("redis %s unavailable, stream mirroring off: %v", cfg.Storage.Redis.Address(), err)
		} else {
			sinks = append(sinks, trace.NewRedisStreamSink(rdb, "", cfg.Storage.Redis.Timeout, trace.WithMaxLenApprox(cfg.Trace.StreamMaxLen)))
		}
	}
	tracer, err := trace.New(trace.Options{
		Topic:        topic,
		Provider:     string(client),
		Model:        model,
		Enabled:      cfg.Trace.Enabled,
		Dir:          cfg.Trace.Dir,
		PreviewLimit: cfg.Trace.PreviewLimit,
		Sinks:        sinks,
	})
	if err != nil {
		return err
	}

	opts := []workflow.Option{
		workflow.WithGateway(gateway),
		workflow.WithExecutor(exec),
		workflow.WithTracer(tracer),
		workflow.WithRunMetrics(metrics),
		workflow.WithReportFile(cfg.Output.ReportFile),
	}
	if cfg.Storage.Postgres.Configured() {
		st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			logger.Printf("summary index unavailable: %v", err)
		} else {
			defer st.Close()
			opts = append(opts, workflow.WithSummaryRecorder(st))
		}
	}

	printBanner(topic, cfg.Output.File, string(client), model)
	started := time.Now()
	report, runErr := workflow.New(llm, opts...).Run(ctx, topic)

	if err := metrics.Push(context.WithoutCancel(ctx), cfg.Telemetry.PushgatewayURL, cfg.Telemetry.MetricsJob); err != nil {
		logger.Printf("pushing metrics: %v", err)
	}
	if runErr != nil {
		return runErr
	}
	if err := writeReport(cfg.Output.File, report); err != nil {
		return err
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("SUCCESS")
	fmt.Printf("Report saved to: %s\n", cfg.Output.File)
	fmt.Printf("Execution time: %.1f seconds\n", time.Since(started).Seconds())
	if tracer.Enabled() {
		fmt.Printf("Trajectory: %s\n", tracer.JSONLPath())
		fmt.Printf("Summary: %s\n", tracer.SummaryPath())
	}
	fmt.Println(strings.Repeat("=", 60))
	return nil
}

func newSearcher(cfg config.SearchConfig) (*web_search.Aggregator, error) {
	fallbacks := make([]web_search.Provider, 0, len(cfg.Fallbacks))
	for _, f := range cfg.Fallbacks {
		fallbacks = append(fallbacks, web_search.Provider(f))
	}
	return web_search.NewAggregatorFromOptions(web_search.Options{
		SerperAPIKey: cfg.SerperAPIKey,
		BraveAPIKey:  cfg.BraveAPIKey,
		Fallbacks:    fallbacks,
		MaxResults:   cfg.MaxResults,
		Timeout:      cfg.Timeout,
		Retries:      cfg.Retries,
	})
}

func writeReport(path, report string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func printBanner(topic, output, vendor, model string) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Planning Pattern Market Research Assistant")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Topic: %s\nOutput: %s\nProvider: %s\nModel: %s\n", topic, output, vendor, model)
	fmt.Println(strings.Repeat("=", 60))
}
