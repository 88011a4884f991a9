// Package config provides configuration management for the citation integrity service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the citation integrity service.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains LLM client settings for disambiguation and verdicts.
	LLM LLMConfig `mapstructure:"llm"`
	// Sources contains metadata source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Resolve contains resolver concurrency and caching settings.
	Resolve ResolveConfig `mapstructure:"resolve"`
	// Checks contains integrity check settings.
	Checks ChecksConfig `mapstructure:"checks"`
	// Deep contains deep citation-network analysis settings.
	Deep DeepConfig `mapstructure:"deep"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Port is the metrics server port.
	Port int `mapstructure:"port"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Budget is the maximum number of LLM calls per analysis run.
	// A negative value removes the cap.
	Budget int `mapstructure:"budget"`
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the LLM temperature setting.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (loaded from CITECHECK_LLM_OPENAI_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom or OpenAI-compatible endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (loaded from CITECHECK_LLM_ANTHROPIC_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// SourcesConfig holds configuration for all metadata source APIs.
type SourcesConfig struct {
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
	// Crossref contains Crossref API settings.
	Crossref SourceConfig `mapstructure:"crossref"`
	// PubMed contains PubMed E-utilities settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// ArXiv contains arXiv API settings.
	ArXiv SourceConfig `mapstructure:"arxiv"`
	// Email is the contact email sent to polite-pool APIs.
	Email string `mapstructure:"email"`
}

// SourceConfig holds configuration for a single metadata source API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. CITECHECK_SOURCES_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per search query.
	MaxResults int `mapstructure:"max_results"`
}

// ResolveConfig holds resolver concurrency and caching settings.
type ResolveConfig struct {
	// DocumentConcurrency caps in-flight source requests per document.
	DocumentConcurrency int `mapstructure:"document_concurrency"`
	// SourceConcurrency caps in-flight requests per metadata source,
	// shared across all documents in the process.
	SourceConcurrency int `mapstructure:"source_concurrency"`
	// CacheSize is the per-run LRU cache capacity for source responses.
	CacheSize int `mapstructure:"cache_size"`
	// PreprintYearGapMax is the widest year gap tolerated between a
	// preprint-like reference and its resolved record.
	PreprintYearGapMax int `mapstructure:"preprint_year_gap_max"`
}

// ChecksConfig holds integrity check settings.
type ChecksConfig struct {
	// ExcludedReferences lists reference strings to skip entirely,
	// matched after normalization.
	ExcludedReferences []string `mapstructure:"excluded_references"`
	// RetractionDataset is the path to a local retraction CSV dataset.
	// Empty disables the dataset tier.
	RetractionDataset string `mapstructure:"retraction_dataset"`
	// PredatoryDataset is the path to a local predatory-venue CSV dataset.
	// Empty disables the predatory check's dataset tier.
	PredatoryDataset string `mapstructure:"predatory_dataset"`
	// AppropriatenessMandatory makes the inappropriate-citation check
	// policy-mandatory: if the LLM is unavailable the document fails
	// instead of skipping the check.
	AppropriatenessMandatory bool `mapstructure:"appropriateness_mandatory"`
}

// DeepConfig holds deep citation-network analysis settings.
type DeepConfig struct {
	// Enabled turns on deep analysis.
	Enabled bool `mapstructure:"enabled"`
	// MaxWaves is the number of graph expansion waves.
	MaxWaves int `mapstructure:"max_waves"`
	// CitingCapPerKey caps citing works fetched per key reference.
	CitingCapPerKey int `mapstructure:"citing_cap_per_key"`
	// MaxNodes caps the citation graph node count across all waves.
	MaxNodes int `mapstructure:"max_nodes"`
	// MaxEdges caps the citation graph edge count across all waves.
	MaxEdges int `mapstructure:"max_edges"`
	// MaxOriginalRefs skips deep analysis for documents whose verified
	// reference count exceeds it.
	MaxOriginalRefs int `mapstructure:"max_original_refs"`
	// Concurrency caps parallel enumeration fetches per wave.
	Concurrency int `mapstructure:"concurrency"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("CITECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-integrity-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	// LLM provider API keys.
	cfg.LLM.OpenAI.APIKey = os.Getenv("CITECHECK_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("CITECHECK_LLM_ANTHROPIC_API_KEY")

	// Metadata source API keys.
	cfg.Sources.OpenAlex.APIKey = os.Getenv("CITECHECK_SOURCES_OPENALEX_API_KEY")
	cfg.Sources.Crossref.APIKey = os.Getenv("CITECHECK_SOURCES_CROSSREF_API_KEY")
	cfg.Sources.PubMed.APIKey = os.Getenv("CITECHECK_SOURCES_PUBMED_API_KEY")
	cfg.Sources.ArXiv.APIKey = os.Getenv("CITECHECK_SOURCES_ARXIV_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9091)

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.budget", 25)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.1)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Sources defaults - OpenAlex
	v.SetDefault("sources.email", "")
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.timeout", "30s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 10)

	// Sources defaults - Crossref
	v.SetDefault("sources.crossref.enabled", true)
	v.SetDefault("sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("sources.crossref.timeout", "30s")
	v.SetDefault("sources.crossref.rate_limit", 10.0)
	v.SetDefault("sources.crossref.max_results", 10)

	// Sources defaults - PubMed
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.rate_limit", 3.0) // NCBI allows 3 req/sec without API key
	v.SetDefault("sources.pubmed.max_results", 10)

	// Sources defaults - arXiv
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("sources.arxiv.max_results", 10)

	// Resolver defaults
	v.SetDefault("resolve.document_concurrency", 8)
	v.SetDefault("resolve.source_concurrency", 4)
	v.SetDefault("resolve.cache_size", 2048)
	v.SetDefault("resolve.preprint_year_gap_max", 5)

	// Checks defaults
	v.SetDefault("checks.excluded_references", []string{})
	v.SetDefault("checks.retraction_dataset", "")
	v.SetDefault("checks.predatory_dataset", "")
	v.SetDefault("checks.appropriateness_mandatory", false)

	// Deep analysis defaults
	v.SetDefault("deep.enabled", false)
	v.SetDefault("deep.max_waves", 5)
	v.SetDefault("deep.citing_cap_per_key", 100)
	v.SetDefault("deep.max_nodes", 2000)
	v.SetDefault("deep.max_edges", 8000)
	v.SetDefault("deep.max_original_refs", 300)
	v.SetDefault("deep.concurrency", 8)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate metrics config
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	// Validate that the configured LLM provider has its required API key set.
	// An empty provider disables LLM-backed decisions entirely.
	switch strings.ToLower(c.LLM.Provider) {
	case "":
		// LLM disabled; every call site falls back deterministically.
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires CITECHECK_LLM_OPENAI_API_KEY to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires CITECHECK_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM temperature must be between 0 and 2")
	}

	// Validate source rate limits
	for name, src := range map[string]SourceConfig{
		"openalex": c.Sources.OpenAlex,
		"crossref": c.Sources.Crossref,
		"pubmed":   c.Sources.PubMed,
		"arxiv":    c.Sources.ArXiv,
	} {
		if src.Enabled && src.RateLimit <= 0 {
			return fmt.Errorf("source %s rate_limit must be positive", name)
		}
		if src.Enabled && src.MaxResults <= 0 {
			return fmt.Errorf("source %s max_results must be positive", name)
		}
	}

	// Validate resolver concurrency
	if c.Resolve.DocumentConcurrency <= 0 {
		return fmt.Errorf("resolve document_concurrency must be positive")
	}
	if c.Resolve.SourceConcurrency <= 0 {
		return fmt.Errorf("resolve source_concurrency must be positive")
	}
	if c.Resolve.CacheSize <= 0 {
		return fmt.Errorf("resolve cache_size must be positive")
	}
	if c.Resolve.PreprintYearGapMax <= 0 {
		return fmt.Errorf("resolve preprint_year_gap_max must be positive")
	}

	// Validate deep analysis caps
	if c.Deep.Enabled {
		if c.Deep.MaxWaves <= 0 {
			return fmt.Errorf("deep max_waves must be positive")
		}
		if c.Deep.CitingCapPerKey <= 0 {
			return fmt.Errorf("deep citing_cap_per_key must be positive")
		}
		if c.Deep.MaxNodes <= 0 || c.Deep.MaxEdges <= 0 {
			return fmt.Errorf("deep max_nodes and max_edges must be positive")
		}
		if c.Deep.Concurrency <= 0 {
			return fmt.Errorf("deep concurrency must be positive")
		}
	}

	// The mandatory appropriateness policy requires an LLM provider.
	if c.Checks.AppropriatenessMandatory && c.LLM.Provider == "" {
		return fmt.Errorf("checks.appropriateness_mandatory requires an LLM provider")
	}

	return nil
}
