package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radlabs/personalization-engine/internal/app"
	"github.com/radlabs/personalization-engine/internal/compliance"
	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/enrich/providers"
	"github.com/radlabs/personalization-engine/internal/httpapi"
	"github.com/radlabs/personalization-engine/internal/persona"
	"github.com/radlabs/personalization-engine/internal/render"
	"github.com/radlabs/personalization-engine/internal/store"
	"github.com/radlabs/personalization-engine/internal/util"
	"github.com/radlabs/personalization-engine/pkg/pipeline/worker"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "serve":
		os.Exit(runServe(ctx, os.Args[2:]))
	case "enrich":
		os.Exit(runEnrich(ctx, os.Args[2:]))
	case "batch":
		os.Exit(runBatch(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

type engine struct {
	cfg    config.Config
	store  *store.Store
	orch   *app.Orchestrator
	logger *log.Logger
}

func buildEngine(ctx context.Context, configPath string) (*engine, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.LUTC)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	set, timeouts, err := providers.Build(cfg.Providers, nil, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	model, err := persona.NewGemini(ctx, persona.GeminiConfig{
		APIKey:  cfg.Generator.APIKey(),
		BaseURL: cfg.Generator.BaseURL,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("generator: %w (set %s)", err, cfg.Generator.APIKeyEnv)
	}
	gen := persona.NewGenerator(model, cfg.Generator, logger)

	policy, err := compliance.CompilePolicy(cfg.Compliance)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &engine{
		cfg:    cfg,
		store:  st,
		orch:   app.NewOrchestrator(st, set, timeouts, gen, policy, cfg, logger),
		logger: logger,
	}, nil
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", config.EnvStr("ENGINE_CONFIG", ""), "Config file path (env: ENGINE_CONFIG)")
	addr := fs.String("addr", "", "Listen address override (default from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	eng, err := buildEngine(ctx, *configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "startup error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	defer eng.store.Close()

	listen := eng.cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	renderer := render.New(eng.cfg.Render, nil)
	server := httpapi.NewServer(eng.orch, eng.store, renderer, eng.cfg.Server.SyncMode, eng.logger)
	httpServer := &http.Server{Addr: listen, Handler: server}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	eng.logger.Printf("stage=serve addr=%s sync_mode=%t", listen, eng.cfg.Server.SyncMode)

	select {
	case err := <-errCh:
		_, _ = fmt.Fprintf(os.Stderr, "server error: %s\n", util.RedactSecrets(err.Error()))
		return 1
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "shutdown error: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runEnrich(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", config.EnvStr("ENGINE_CONFIG", ""), "Config file path (env: ENGINE_CONFIG)")
	email := fs.String("email", "", "Lead email (required)")
	name := fs.String("name", "", "Lead name")
	company := fs.String("company", "", "Lead company")
	role := fs.String("role", "", "Lead role")
	industry := fs.String("industry", "", "Lead industry")
	buyingStage := fs.String("buying-stage", "", "Lead buying stage")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *email == "" {
		_, _ = fmt.Fprintln(os.Stderr, "enrich requires --email")
		return 2
	}

	eng, err := buildEngine(ctx, *configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "startup error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	defer eng.store.Close()

	lead := persona.Lead{
		Email:       *email,
		Name:        *name,
		Company:     *company,
		Role:        *role,
		Industry:    *industry,
		BuyingStage: *buyingStage,
	}
	jobID, err := eng.orch.Submit(ctx, lead, true)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "submit failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	runErr := eng.orch.Run(ctx, jobID)

	job, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load job failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	result := map[string]any{"job_id": jobID, "status": job.Status}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	if job.Status == store.StatusCompleted {
		if out, err := eng.store.GetOutputByJob(ctx, jobID); err == nil {
			result["personalization"] = out
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if runErr != nil {
		return 1
	}
	return 0
}

func runBatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", config.EnvStr("ENGINE_CONFIG", ""), "Config file path (env: ENGINE_CONFIG)")
	inputPath := fs.String("input", "", "Input CSV file path (must include an 'email' column)")
	outputPath := fs.String("output", "", "Output CSV file path")
	workers := fs.Int("workers", config.EnvInt("WORKERS", 4), "Number of concurrent pipeline workers (env: WORKERS)")
	maxRetries := fs.Int("max-retries", config.EnvInt("MAX_RETRIES", 0), "Max retries per lead for transient failures (env: MAX_RETRIES)")
	requestTimeout := fs.Duration("request-timeout", config.EnvDuration("REQUEST_TIMEOUT", 2*time.Minute), "Per-lead processing timeout (env: REQUEST_TIMEOUT)")
	rateLimitRPS := fs.Float64("rate-limit-rps", 0, "Global lead rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	failFast := fs.Bool("fail-fast", config.EnvBool("FAIL_FAST", false), "Stop the batch on the first failed lead (env: FAIL_FAST)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" || *outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "batch requires --input and --output")
		return 2
	}

	eng, err := buildEngine(ctx, *configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "startup error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	defer eng.store.Close()

	policy := worker.FailurePolicyPartialOutput
	if *failFast {
		policy = worker.FailurePolicyFailFast
	}
	if err := eng.orch.RunBatch(ctx, *inputPath, *outputPath, worker.Options{
		Workers:        *workers,
		MaxRetries:     *maxRetries,
		RequestTimeout: *requestTimeout,
		RateLimitRPS:   *rateLimitRPS,
		FailurePolicy:  policy,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "batch run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `engine: lead personalization pipeline (enrich, generate, validate)

Usage:
  engine <command> [flags]

Commands:
  serve   Run the HTTP API
  enrich  Run the pipeline once for a single lead and print the result
  batch   Run the pipeline for every lead in a CSV file

Examples:
  engine serve --config config/config.yml
  engine enrich --config config/config.yml --email jane@acme.com --name "Jane Doe"
  engine batch --config config/config.yml --input leads.csv --output results.csv

Environment:
  ENGINE_CONFIG      Config file path (flags override)
  GEMINI_API_KEY     Generative model API key (required)
  APOLLO_API_KEY     Enrichment provider keys; a missing key degrades that
  ZOOMINFO_API_KEY   provider to a stub instead of failing startup
  PDL_API_KEY
  HUNTER_API_KEY
  TAVILY_API_KEY
  RENDER_API_TOKEN   PDF render service token

`)
}
