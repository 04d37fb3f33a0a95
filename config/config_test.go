package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISTILL_RETRIES", "")
	t.Setenv("DISTILL_FIELDS", "")

	cfg := Load()

	assert.Equal(t, ProviderFirecrawl, cfg.Scraper.Provider)
	assert.Equal(t, "markdown", cfg.Scraper.PayloadKey)
	assert.Equal(t, 3, cfg.Pipeline.Retries)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.RetryDelay)
	assert.Equal(t, 3000, cfg.Pipeline.MaxChars)
	assert.Equal(t, []string{"title", "type", "release_year", "genre", "rating", "cast", "synopsis"}, cfg.Pipeline.Fields)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, time.Minute, cfg.Pipeline.MaxRetryDelay)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIRECRAWL_API_KEY", "fc-key")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("DISTILL_RETRIES", "5")
	t.Setenv("DISTILL_RETRY_DELAY", "250ms")
	t.Setenv("DISTILL_FIELDS", "name, price ,, city")
	t.Setenv("DISTILL_MAX_CHARS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "fc-key", cfg.Scraper.FirecrawlAPIKey)
	assert.Equal(t, "groq-key", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.Pipeline.Retries)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.RetryDelay)
	assert.Equal(t, []string{"name", "price", "city"}, cfg.Pipeline.Fields)
	assert.Equal(t, 3000, cfg.Pipeline.MaxChars, "unparsable values fall back to the default")
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("DISTILL_RETRIES", "")

	path := filepath.Join(t.TempDir(), "distill.yaml")
	content := `
scraper:
  provider: direct
pipeline:
  retry_delay: 2s
  max_chars: 500
  fields: [company, role]
output:
  dir: /tmp/distill-out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderDirect, cfg.Scraper.Provider)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.RetryDelay)
	assert.Equal(t, 500, cfg.Pipeline.MaxChars)
	assert.Equal(t, []string{"company", "role"}, cfg.Pipeline.Fields)
	assert.Equal(t, "/tmp/distill-out", cfg.Output.Dir)
	assert.Equal(t, 3, cfg.Pipeline.Retries, "keys absent from the file keep their env value")
	assert.Equal(t, "groq-key", cfg.LLM.APIKey)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: [unterminated"), 0o644))
	_, err = LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"unknown provider", func(c *Config) { c.Scraper.Provider = "browser" }, ErrInvalidProvider},
		{"zero retries", func(c *Config) { c.Pipeline.Retries = 0 }, ErrInvalidRetries},
		{"negative delay", func(c *Config) { c.Pipeline.RetryDelay = -time.Second }, ErrInvalidDelay},
		{"delay above max", func(c *Config) { c.Pipeline.RetryDelay = 10 * time.Hour }, ErrInvalidDelay},
		{"zero max delay", func(c *Config) { c.Pipeline.MaxRetryDelay = 0 }, ErrInvalidMaxDelay},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -0.1 }, ErrInvalidTemp},
		{"temperature above one", func(c *Config) { c.LLM.Temperature = 1.5 }, ErrInvalidTemp},
		{"zero max chars", func(c *Config) { c.Pipeline.MaxChars = 0 }, ErrInvalidMaxChars},
		{"no fields", func(c *Config) { c.Pipeline.Fields = nil }, ErrNoFields},
		{"blank output dir", func(c *Config) { c.Output.Dir = "  " }, ErrMissingOutputDir},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}
