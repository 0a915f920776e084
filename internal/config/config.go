package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Provider names accepted by scoring.provider.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Text       TextConfig       `yaml:"text" mapstructure:"text"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MistralConfig holds Mistral OCR settings.
type MistralConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ScoringConfig configures the scoring orchestrator.
type ScoringConfig struct {
	Provider           string        `yaml:"provider" mapstructure:"provider"`
	Concurrency        int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries         int           `yaml:"max_retries" mapstructure:"max_retries"`
	PagesPerChunk      int           `yaml:"pages_per_chunk" mapstructure:"pages_per_chunk"`
	RequestTimeoutSecs int           `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RequestsPerMinute  int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Breaker            BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// TextConfig configures page text extraction for address detection.
type TextConfig struct {
	Source        string `yaml:"source" mapstructure:"source"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	RegionState   string `yaml:"region_state" mapstructure:"region_state"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// PricingConfig holds the token rates of each provider's configured model and
// the token assumptions used for pre-flight estimates.
type PricingConfig struct {
	Claude               ModelPricing `yaml:"claude" mapstructure:"claude"`
	Gemini               ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	InputTokensPerPage   int64        `yaml:"input_tokens_per_page" mapstructure:"input_tokens_per_page"`
	OutputTokensPerPage  int64        `yaml:"output_tokens_per_page" mapstructure:"output_tokens_per_page"`
	PromptTokensPerChunk int64        `yaml:"prompt_tokens_per_chunk" mapstructure:"prompt_tokens_per_chunk"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// MonitoringConfig configures the background batch health checker run by
// the server.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleBatchMins       int     `yaml:"stale_batch_mins" mapstructure:"stale_batch_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RENOSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("mistral.key", "")
	v.SetDefault("mistral.model", "mistral-ocr-latest")
	v.SetDefault("scoring.provider", ProviderGemini)
	v.SetDefault("scoring.concurrency", 5)
	v.SetDefault("scoring.max_retries", 1)
	v.SetDefault("scoring.pages_per_chunk", 0)
	v.SetDefault("scoring.request_timeout_secs", 120)
	v.SetDefault("scoring.requests_per_minute", 50)
	v.SetDefault("scoring.breaker.failure_threshold", 5)
	v.SetDefault("scoring.breaker.reset_timeout_secs", 30)
	v.SetDefault("text.source", "native")
	v.SetDefault("text.pdftotext_path", "pdftotext")
	v.SetDefault("text.region_state", "AZ")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "renoscore.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 100)
	v.SetDefault("pricing.claude.input", 3.0)
	v.SetDefault("pricing.claude.output", 15.0)
	v.SetDefault("pricing.gemini.input", 0.30)
	v.SetDefault("pricing.gemini.output", 2.50)
	v.SetDefault("pricing.input_tokens_per_page", 1600)
	v.SetDefault("pricing.output_tokens_per_page", 350)
	v.SetDefault("pricing.prompt_tokens_per_chunk", 1800)
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stale_batch_mins", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks that the settings needed by mode are present. Modes are
// "score", "serve" and "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "score", "serve":
		errs = append(errs, c.validateScoring()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" && (mode == "store" || c.Store.Driver != "") {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateScoring() []string {
	var errs []string
	switch c.Scoring.Provider {
	case ProviderClaude:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for provider claude")
		}
	case ProviderGemini:
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required for provider gemini")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown scoring provider %q", c.Scoring.Provider))
	}
	if c.Scoring.Concurrency < 1 || c.Scoring.Concurrency > 50 {
		errs = append(errs, "scoring.concurrency must be between 1 and 50")
	}
	if c.Scoring.MaxRetries < 0 {
		errs = append(errs, "scoring.max_retries must be >= 0")
	}
	if c.Scoring.PagesPerChunk < 0 {
		errs = append(errs, "scoring.pages_per_chunk must be >= 0")
	}
	if c.Text.Source == "mistral" && c.Mistral.Key == "" {
		errs = append(errs, "mistral.key is required for text source mistral")
	}
	return errs
}

// ProviderModel returns the model identifier of the configured provider.
func (c *Config) ProviderModel() string {
	if c.Scoring.Provider == ProviderClaude {
		return c.Anthropic.Model
	}
	return c.Gemini.Model
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
