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
	Reasoning ReasoningConfig `yaml:"reasoning" mapstructure:"reasoning"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Image     ImageConfig     `yaml:"image" mapstructure:"image"`
	AWS       AWSConfig       `yaml:"aws" mapstructure:"aws"`
	Lookups   LookupsConfig   `yaml:"lookups" mapstructure:"lookups"`
	Category  CategoryConfig  `yaml:"category" mapstructure:"category"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReasoningConfig selects the model provider.
type ReasoningConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PricingConfig holds per-model token pricing used for cost logging.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ExtractorConfig selects how the label is read.
type ExtractorConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
}

// OCRConfig configures image text extraction for the ocr strategy.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
}

// ImageConfig limits accepted label images. Root confines local paths and
// AllowedBuckets confines s3:// paths; serve always applies both.
type ImageConfig struct {
	MaxBytes       int64    `yaml:"max_bytes" mapstructure:"max_bytes"`
	Root           string   `yaml:"root" mapstructure:"root"`
	AllowedBuckets []string `yaml:"allowed_buckets" mapstructure:"allowed_buckets"`
}

// AWSConfig configures the AWS clients (S3 image paths, Rekognition OCR).
type AWSConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
}

// LookupsConfig configures the encyclopedia and product database clients.
type LookupsConfig struct {
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	WikipediaURL     string `yaml:"wikipedia_url" mapstructure:"wikipedia_url"`
	OpenFoodFactsURL string `yaml:"openfoodfacts_url" mapstructure:"openfoodfacts_url"`
	RatePerMinute    int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldown  int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// CategoryConfig configures product category detection.
type CategoryConfig struct {
	LookupTimeoutMs int `yaml:"lookup_timeout_ms" mapstructure:"lookup_timeout_ms"`
}

// ResearchConfig configures the evidence researcher.
type ResearchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// PipelineConfig configures stage failure handling.
type PipelineConfig struct {
	ProfileFallback bool `yaml:"profile_fallback" mapstructure:"profile_fallback"`
	RiskFallback    bool `yaml:"risk_fallback" mapstructure:"risk_fallback"`
}

// StoreConfig configures the lookup cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("reasoning.provider", "gemini")
	v.SetDefault("reasoning.timeout_secs", 90)
	v.SetDefault("reasoning.temperature", 0.1)
	v.SetDefault("reasoning.max_tokens", 4096)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("extractor.strategy", "vision")
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("image.max_bytes", 10*1024*1024)
	v.SetDefault("image.root", "")
	v.SetDefault("image.allowed_buckets", []string{})
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("lookups.timeout_secs", 5)
	v.SetDefault("lookups.user_agent", "label-copilot/1.0 (food label assistant)")
	v.SetDefault("lookups.wikipedia_url", "https://en.wikipedia.org")
	v.SetDefault("lookups.openfoodfacts_url", "https://world.openfoodfacts.org")
	v.SetDefault("lookups.rate_per_minute", 60)
	v.SetDefault("lookups.breaker_failures", 5)
	v.SetDefault("lookups.breaker_cooldown_secs", 30)
	v.SetDefault("category.lookup_timeout_ms", 1000)
	v.SetDefault("research.max_concurrency", 4)
	v.SetDefault("pipeline.profile_fallback", false)
	v.SetDefault("pipeline.risk_fallback", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "label-copilot.db")
	v.SetDefault("store.ttl_hours", 168)
	v.SetDefault("server.port", 8080)
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

// Validate checks the settings required by a command mode ("scan", "serve"
// or "cache"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "scan", "serve":
		errs = append(errs, c.validateReasoning()...)
		errs = append(errs, c.validateStore()...)
		if c.Research.MaxConcurrency < 1 || c.Research.MaxConcurrency > 32 {
			errs = append(errs, "research.max_concurrency must be between 1 and 32")
		}
		if c.Image.MaxBytes <= 0 {
			errs = append(errs, "image.max_bytes must be > 0")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			if strings.TrimSpace(c.Image.Root) == "" {
				errs = append(errs, "image.root is required for serve")
			}
		}
	case "cache":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) validateReasoning() []string {
	var errs []string
	switch c.Reasoning.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("reasoning.provider %q is not supported", c.Reasoning.Provider))
	}
	switch c.Extractor.Strategy {
	case "vision":
	case "ocr":
		if c.OCR.Provider != "tesseract" && c.OCR.Provider != "rekognition" {
			errs = append(errs, fmt.Sprintf("ocr.provider %q is not supported", c.OCR.Provider))
		}
	default:
		errs = append(errs, fmt.Sprintf("extractor.strategy %q is not supported", c.Extractor.Strategy))
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported", c.Store.Driver)}
	}
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
