package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures the navigate/search/extract loop.
type PipelineConfig struct {
	MaxNavigationAttempts int     `yaml:"max_navigation_attempts" mapstructure:"max_navigation_attempts"`
	MaxSearchAttempts     int     `yaml:"max_search_attempts" mapstructure:"max_search_attempts"`
	SearchResults         int     `yaml:"search_results" mapstructure:"search_results"`
	HaltThreshold         float64 `yaml:"halt_threshold" mapstructure:"halt_threshold"`
	CompleteThreshold     float64 `yaml:"complete_threshold" mapstructure:"complete_threshold"`
}

// ScrapeConfig configures page fetching.
type ScrapeConfig struct {
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent     string   `yaml:"user_agent" mapstructure:"user_agent"`
	ExcludePaths  []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
	RespectRobots bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	CacheTTLHours int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	Fallbacks     []string `yaml:"fallbacks" mapstructure:"fallbacks"`
}

// SearchConfig selects the search provider.
type SearchConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// LLMConfig selects the extraction model provider.
type LLMConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// RateLimitConfig holds per-API call budgets in calls per minute.
type RateLimitConfig struct {
	Anthropic    int `yaml:"anthropic" mapstructure:"anthropic"`
	GoogleSearch int `yaml:"google_search" mapstructure:"google_search"`
	WebScrape    int `yaml:"web_scrape" mapstructure:"web_scrape"`
	MaxRetries   int `yaml:"max_retries" mapstructure:"max_retries"`
}

// RetryConfig configures backoff for collaborator calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Models             map[string]ModelPricing `yaml:"models" mapstructure:"models"`
	JinaPerMTok        float64                 `yaml:"jina_per_mtok" mapstructure:"jina_per_mtok"`
	PerplexityPerQuery float64                 `yaml:"perplexity_per_query" mapstructure:"perplexity_per_query"`
	FirecrawlPerPage   float64                 `yaml:"firecrawl_per_page" mapstructure:"firecrawl_per_page"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultUserAgent is a desktop browser string; many company sites refuse
// obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.checkLimits(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "company-scraper.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pipeline.max_navigation_attempts", 5)
	v.SetDefault("pipeline.max_search_attempts", 5)
	v.SetDefault("pipeline.search_results", 3)
	v.SetDefault("pipeline.halt_threshold", 0.70)
	v.SetDefault("pipeline.complete_threshold", 0.75)
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.user_agent", DefaultUserAgent)
	v.SetDefault("scrape.exclude_paths", []string{"*.pdf", "*.zip"})
	v.SetDefault("scrape.respect_robots", false)
	v.SetDefault("scrape.cache_ttl_hours", 24)
	v.SetDefault("scrape.fallbacks", []string{})
	v.SetDefault("search.provider", "jina")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("ratelimit.anthropic", 50)
	v.SetDefault("ratelimit.google_search", 60)
	v.SetDefault("ratelimit.web_scrape", 30)
	v.SetDefault("ratelimit.max_retries", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.5)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("pricing.jina_per_mtok", 0.02)
	v.SetDefault("pricing.perplexity_per_query", 0.005)
	v.SetDefault("pricing.firecrawl_per_page", 0.00633)
}

// checkLimits rejects values that would make the scraper misbehave at run
// time rather than at startup.
func (c *Config) checkLimits() error {
	var errs []string

	p := c.Pipeline
	if p.MaxNavigationAttempts < 0 || p.MaxSearchAttempts < 0 {
		errs = append(errs, "pipeline attempt limits must be non-negative")
	}
	if p.SearchResults <= 0 {
		errs = append(errs, "pipeline.search_results must be > 0")
	}
	if p.HaltThreshold < 0 || p.HaltThreshold > 1 {
		errs = append(errs, "pipeline.halt_threshold must be between 0 and 1")
	}
	if p.CompleteThreshold < 0 || p.CompleteThreshold > 1 {
		errs = append(errs, "pipeline.complete_threshold must be between 0 and 1")
	}

	rl := c.RateLimit
	if rl.Anthropic <= 0 || rl.GoogleSearch <= 0 || rl.WebScrape <= 0 {
		errs = append(errs, "ratelimit calls per minute must be > 0")
	}
	if rl.MaxRetries < 0 {
		errs = append(errs, "ratelimit.max_retries must be >= 0")
	}

	r := c.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if r.InitialBackoffMs <= 0 {
		errs = append(errs, "retry.initial_backoff_ms must be > 0")
	}
	if r.MaxBackoffMs < r.InitialBackoffMs {
		errs = append(errs, "retry.max_backoff_ms must be >= retry.initial_backoff_ms")
	}
	if r.Multiplier <= 1 {
		errs = append(errs, "retry.multiplier must be > 1")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Sprintf("unsupported llm.provider %q", c.LLM.Provider))
	}
	switch c.Search.Provider {
	case "jina", "perplexity":
	default:
		errs = append(errs, fmt.Sprintf("unsupported search.provider %q", c.Search.Provider))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the credentials and settings a command needs. Modes are
// "scrape", "serve" and "runs".
func (c *Config) Validate(mode string) error {
	if err := c.checkLimits(); err != nil {
		return err
	}

	var errs []string
	switch mode {
	case "scrape", "serve":
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required")
			}
		}
		if c.Search.Provider == "perplexity" && c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required")
		}
		for _, fb := range c.Scrape.Fallbacks {
			switch fb {
			case "jina":
			case "firecrawl":
				if c.Firecrawl.Key == "" {
					errs = append(errs, "firecrawl.key is required for the firecrawl fallback")
				}
			default:
				errs = append(errs, fmt.Sprintf("unknown scrape fallback %q", fb))
			}
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
