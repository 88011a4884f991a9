// Package main provides the citecheck CLI. It reads a manuscript,
// runs the citation-integrity pipeline, and writes the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/checks"
	"github.com/helixir/citation-integrity-service/internal/config"
	"github.com/helixir/citation-integrity-service/internal/deep"
	"github.com/helixir/citation-integrity-service/internal/engine"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/metasources"
	"github.com/helixir/citation-integrity-service/internal/metasources/arxiv"
	"github.com/helixir/citation-integrity-service/internal/metasources/crossref"
	"github.com/helixir/citation-integrity-service/internal/metasources/openalex"
	"github.com/helixir/citation-integrity-service/internal/metasources/pubmed"
	"github.com/helixir/citation-integrity-service/internal/observability"
	"github.com/helixir/citation-integrity-service/internal/resolve"
	"github.com/helixir/citation-integrity-service/internal/signals"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	input := flag.String("input", "-", `Manuscript text file to analyze ("-" reads stdin)`)
	output := flag.String("output", "-", `Report destination ("-" writes stdout)`)
	pretty := flag.Bool("pretty", false, "Indent the JSON report")
	deepRun := flag.Bool("deep", false, "Enable deep citation-network analysis for this run")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "citecheck").Logger()

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("citecheck")
		startMetricsServer(cfg.Metrics, logger)
	}

	var observer metasources.RequestObserver
	if metrics != nil {
		observer = metrics
	}
	chain := buildChain(cfg, observer)
	if len(chain.EnabledStages()) == 0 {
		return fmt.Errorf("no metadata sources enabled")
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
	}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}

	if cfg.LLM.Provider != "" {
		client, err := llm.NewClient(llm.FactoryConfig{
			Provider:    strings.ToLower(cfg.LLM.Provider),
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			OpenAI: llm.OpenAIConfig{
				APIKey:  cfg.LLM.OpenAI.APIKey,
				Model:   cfg.LLM.OpenAI.Model,
				BaseURL: cfg.LLM.OpenAI.BaseURL,
			},
			Anthropic: llm.AnthropicConfig{
				APIKey:  cfg.LLM.Anthropic.APIKey,
				Model:   cfg.LLM.Anthropic.Model,
				BaseURL: cfg.LLM.Anthropic.BaseURL,
			},
		})
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		opts = append(opts, engine.WithLLM(client))
	}

	retraction, predatory, err := buildSignals(cfg.Checks, logger)
	if err != nil {
		return err
	}
	if retraction != nil || predatory != nil {
		opts = append(opts, engine.WithSignals(retraction, predatory))
	}

	eng := engine.New(chain, engine.Config{
		LLMBudget:         cfg.LLM.Budget,
		SourceConcurrency: cfg.Resolve.SourceConcurrency,
		Resolve: resolve.Config{
			DocumentConcurrency: cfg.Resolve.DocumentConcurrency,
			CacheSize:           cfg.Resolve.CacheSize,
			PreprintYearGapMax:  cfg.Resolve.PreprintYearGapMax,
		},
		Checks: checks.Config{
			ExcludedReferences:       cfg.Checks.ExcludedReferences,
			AppropriatenessMandatory: cfg.Checks.AppropriatenessMandatory,
		},
		DeepEnabled: cfg.Deep.Enabled || *deepRun,
		Deep: deep.Config{
			MaxWaves:        cfg.Deep.MaxWaves,
			CitingCapPerKey: cfg.Deep.CitingCapPerKey,
			MaxNodes:        cfg.Deep.MaxNodes,
			MaxEdges:        cfg.Deep.MaxEdges,
			MaxOriginalRefs: cfg.Deep.MaxOriginalRefs,
			Concurrency:     cfg.Deep.Concurrency,
		},
	}, opts...)

	text, err := readManuscript(*input)
	if err != nil {
		return err
	}

	report, err := eng.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyze manuscript: %w", err)
	}

	return writeReport(*output, report, *pretty)
}

// buildChain registers the enabled metadata sources in resolution
// order: OpenAlex first, then Crossref, PubMed, and arXiv.
func buildChain(cfg *config.Config, observer metasources.RequestObserver) *metasources.Chain {
	chain := metasources.NewChain()

	if cfg.Sources.OpenAlex.Enabled {
		chain.Register(openalex.New(openalex.Config{
			BaseURL:    cfg.Sources.OpenAlex.BaseURL,
			Email:      cfg.Sources.Email,
			Timeout:    cfg.Sources.OpenAlex.Timeout,
			RateLimit:  cfg.Sources.OpenAlex.RateLimit,
			MaxResults: cfg.Sources.OpenAlex.MaxResults,
			Enabled:    true,
			Observer:   observer,
		}))
	}
	if cfg.Sources.Crossref.Enabled {
		chain.Register(crossref.New(crossref.Config{
			BaseURL:    cfg.Sources.Crossref.BaseURL,
			Email:      cfg.Sources.Email,
			Timeout:    cfg.Sources.Crossref.Timeout,
			RateLimit:  cfg.Sources.Crossref.RateLimit,
			MaxResults: cfg.Sources.Crossref.MaxResults,
			Enabled:    true,
			Observer:   observer,
		}))
	}
	if cfg.Sources.PubMed.Enabled {
		chain.Register(pubmed.New(pubmed.Config{
			BaseURL:    cfg.Sources.PubMed.BaseURL,
			APIKey:     cfg.Sources.PubMed.APIKey,
			Email:      cfg.Sources.Email,
			Timeout:    cfg.Sources.PubMed.Timeout,
			RateLimit:  cfg.Sources.PubMed.RateLimit,
			MaxResults: cfg.Sources.PubMed.MaxResults,
			Enabled:    true,
			Observer:   observer,
		}))
	}
	if cfg.Sources.ArXiv.Enabled {
		chain.Register(arxiv.New(arxiv.Config{
			BaseURL:    cfg.Sources.ArXiv.BaseURL,
			Timeout:    cfg.Sources.ArXiv.Timeout,
			RateLimit:  cfg.Sources.ArXiv.RateLimit,
			MaxResults: cfg.Sources.ArXiv.MaxResults,
			Enabled:    true,
			Observer:   observer,
		}))
	}

	return chain
}

// buildSignals loads the configured local datasets for the retraction
// and predatory-venue checks. An empty path disables that checker.
func buildSignals(cfg config.ChecksConfig, logger zerolog.Logger) (*signals.RetractionChecker, *signals.PredatoryChecker, error) {
	var retraction *signals.RetractionChecker
	if cfg.RetractionDataset != "" {
		dataset, err := signals.LoadRetractionDataset(cfg.RetractionDataset)
		if err != nil {
			return nil, nil, fmt.Errorf("load retraction dataset: %w", err)
		}
		retraction = signals.NewRetractionChecker(dataset,
			signals.WithRetractionLogger(observability.WithComponent(logger, "retraction")))
		logger.Info().Int("entries", len(dataset)).Msg("retraction dataset loaded")
	}

	var predatory *signals.PredatoryChecker
	if cfg.PredatoryDataset != "" {
		dataset, err := signals.LoadPredatoryDataset(cfg.PredatoryDataset)
		if err != nil {
			return nil, nil, fmt.Errorf("load predatory dataset: %w", err)
		}
		predatory = signals.NewPredatoryChecker(dataset,
			signals.WithPredatoryLogger(observability.WithComponent(logger, "predatory")))
		logger.Info().Int("entries", len(dataset)).Msg("predatory dataset loaded")
	}

	return retraction, predatory, nil
}

// startMetricsServer exposes the Prometheus endpoint for the lifetime
// of the process. Scrapes matter for long batch runs; a failed listen
// is logged and never fails the analysis.
func startMetricsServer(cfg config.MetricsConfig, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}

func readManuscript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read manuscript: %w", err)
	}
	return string(data), nil
}

func writeReport(path string, report any, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
