package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultURL is the page scraped when no URL is given on the command line.
const DefaultURL = "https://www.imdb.com/imdbpicks/summer-watch-guide/?ref_=hm_edcft_csegswg_ft_1_i"

// Provider names accepted by ScraperConfig.Provider.
const (
	ProviderFirecrawl = "firecrawl"
	ProviderDirect    = "direct"
)

// Validation errors returned by Config.Validate.
var (
	ErrInvalidProvider  = errors.New("scraper.provider must be 'firecrawl' or 'direct'")
	ErrInvalidRetries   = errors.New("pipeline.retries must be at least 1")
	ErrInvalidDelay     = errors.New("pipeline.retry_delay must be between 0 and pipeline.max_retry_delay")
	ErrInvalidMaxDelay  = errors.New("pipeline.max_retry_delay must be positive")
	ErrInvalidTemp      = errors.New("llm.temperature must be between 0 and 1")
	ErrInvalidMaxChars  = errors.New("pipeline.max_chars must be at least 1")
	ErrNoFields         = errors.New("pipeline.fields must name at least one field")
	ErrMissingOutputDir = errors.New("output.dir is required")
	ErrInvalidLogFormat = errors.New("log.format must be 'json' or 'text'")
)

// Config holds all application configuration.
type Config struct {
	Scraper   ScraperConfig   `yaml:"scraper"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Output    OutputConfig    `yaml:"output"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
}

// ScraperConfig controls the scraping collaborator.
type ScraperConfig struct {
	// Provider selects the collaborator: "firecrawl" (default) or "direct".
	Provider string `yaml:"provider"`

	// FirecrawlAPIKey is required when Provider is "firecrawl".
	FirecrawlAPIKey string `yaml:"-"`

	// FirecrawlBaseURL is the Firecrawl API root. default: "https://api.firecrawl.dev"
	FirecrawlBaseURL string `yaml:"firecrawl_base_url"`

	// PayloadKey is the gjson path of the text payload in the provider's
	// response. default: "markdown"
	PayloadKey string `yaml:"payload_key"`

	// Timeout is the per-attempt HTTP deadline. default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// Selector optionally narrows the page before cleaning (direct provider).
	Selector string `yaml:"selector"`

	// ExcludeSelectors are removed before cleaning (direct provider).
	// default: ["nav", "footer", "aside", "form"]
	ExcludeSelectors []string `yaml:"exclude_selectors"`

	// CacheTTL serves pages fetched within this window from memory.
	// default: 0 (disabled)
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheMaxEntries bounds the page cache. default: 256
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// LLMConfig controls the language-model collaborator.
type LLMConfig struct {
	// APIKey is required. Read from GROQ_API_KEY.
	APIKey string `yaml:"-"`

	// BaseURL of any OpenAI-compatible API. default: "https://api.groq.com/openai/v1"
	BaseURL string `yaml:"base_url"`

	// Model name. default: "llama3-8b-8192"
	Model string `yaml:"model"`

	// Temperature is kept low to favour literal extraction. default: 0.3
	Temperature float64 `yaml:"temperature"`

	// Timeout bounds the single model call. default: 120s
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig carries the run defaults.
type PipelineConfig struct {
	URL        string        `yaml:"url"`
	Retries    int           `yaml:"retries"`     // default: 3
	RetryDelay time.Duration `yaml:"retry_delay"` // default: 5s
	MaxChars   int           `yaml:"max_chars"`   // default: 3000
	Fields     []string      `yaml:"fields"`

	// MaxRetryDelay caps retry_delay in config and in API requests. default: 1m
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	// Dir is the local artifact directory. default: "output"
	Dir string `yaml:"dir"`

	// S3Bucket enables mirroring artifacts to S3 when non-empty.
	S3Bucket       string `yaml:"s3_bucket"`
	S3Prefix       string `yaml:"s3_prefix"`
	S3Region       string `yaml:"s3_region"`
	S3Profile      string `yaml:"s3_profile"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// ServerConfig controls the HTTP server started by "distill serve".
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"-"`
}

// RateLimitConfig controls per-key rate limiting of the HTTP API.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 0.2
	Burst             int     `yaml:"burst"`               // default: 2
}

// WebhookConfig controls the run completion webhook.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Scraper: ScraperConfig{
			Provider:         envOr("DISTILL_SCRAPER", ProviderFirecrawl),
			FirecrawlAPIKey:  os.Getenv("FIRECRAWL_API_KEY"),
			FirecrawlBaseURL: envOr("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
			PayloadKey:       envOr("DISTILL_PAYLOAD_KEY", "markdown"),
			Timeout:          envDurationOr("DISTILL_SCRAPE_TIMEOUT", 60*time.Second),
			Selector:         os.Getenv("DISTILL_SELECTOR"),
			ExcludeSelectors: envSliceOr("DISTILL_EXCLUDE_SELECTORS", []string{"nav", "footer", "aside", "form"}),
			CacheTTL:         envDurationOr("DISTILL_CACHE_TTL", 0),
			CacheMaxEntries:  envIntOr("DISTILL_CACHE_MAX_ENTRIES", 256),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("GROQ_API_KEY"),
			BaseURL:     envOr("DISTILL_LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       envOr("DISTILL_LLM_MODEL", "llama3-8b-8192"),
			Temperature: envFloatOr("DISTILL_LLM_TEMPERATURE", 0.3),
			Timeout:     envDurationOr("DISTILL_LLM_TIMEOUT", 120*time.Second),
		},
		Pipeline: PipelineConfig{
			URL:        envOr("DISTILL_URL", DefaultURL),
			Retries:    envIntOr("DISTILL_RETRIES", 3),
			RetryDelay: envDurationOr("DISTILL_RETRY_DELAY", 5*time.Second),
			MaxChars:   envIntOr("DISTILL_MAX_CHARS", 3000),
			Fields: envSliceOr("DISTILL_FIELDS", []string{
				"title", "type", "release_year", "genre", "rating", "cast", "synopsis",
			}),
			MaxRetryDelay: envDurationOr("DISTILL_MAX_RETRY_DELAY", time.Minute),
		},
		Output: OutputConfig{
			Dir:            envOr("DISTILL_OUTPUT_DIR", "output"),
			S3Bucket:       os.Getenv("DISTILL_S3_BUCKET"),
			S3Prefix:       os.Getenv("DISTILL_S3_PREFIX"),
			S3Region:       os.Getenv("DISTILL_S3_REGION"),
			S3Profile:      os.Getenv("DISTILL_S3_PROFILE"),
			S3UsePathStyle: envBoolOr("DISTILL_S3_USE_PATH_STYLE", false),
		},
		Server: ServerConfig{
			Host: envOr("DISTILL_HOST", "0.0.0.0"),
			Port: envIntOr("DISTILL_PORT", 8080),
			Mode: envOr("DISTILL_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DISTILL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("DISTILL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DISTILL_RATE_RPS", 0.2),
			Burst:             envIntOr("DISTILL_RATE_BURST", 2),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("DISTILL_WEBHOOK_URL"),
			Secret:  os.Getenv("DISTILL_WEBHOOK_SECRET"),
			Timeout: envDurationOr("DISTILL_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("DISTILL_LOG_LEVEL", "info"),
			Format: envOr("DISTILL_LOG_FORMAT", "text"),
		},
	}
}

// LoadFile loads the environment configuration and overlays the YAML file at
// path on top of it. Keys absent from the file keep their environment value.
// Credentials are never read from the file.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that can be verified without network access.
// Credentials are checked by the constructors that need them.
func (c *Config) Validate() error {
	switch c.Scraper.Provider {
	case ProviderFirecrawl, ProviderDirect:
	default:
		return ErrInvalidProvider
	}
	if c.Pipeline.Retries < 1 {
		return ErrInvalidRetries
	}
	if c.Pipeline.MaxRetryDelay <= 0 {
		return ErrInvalidMaxDelay
	}
	if c.Pipeline.RetryDelay < 0 || c.Pipeline.RetryDelay > c.Pipeline.MaxRetryDelay {
		return ErrInvalidDelay
	}
	if c.Pipeline.MaxChars < 1 {
		return ErrInvalidMaxChars
	}
	if len(c.Pipeline.Fields) == 0 {
		return ErrNoFields
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return ErrInvalidTemp
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return ErrMissingOutputDir
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return ErrInvalidLogFormat
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
