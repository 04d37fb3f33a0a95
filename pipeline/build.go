package pipeline

import (
	"context"
	"log/slog"

	"github.com/use-agent/distill/artifact"
	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/llm"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/scraper"
	"github.com/use-agent/distill/webhook"
)

// FromConfig wires a Pipeline from cfg: the configured scraping provider
// with an optional page cache, the OpenAI-compatible model, a local artifact
// directory (mirrored to S3 when a bucket is set) and the optional webhook.
//
// Missing credentials fail here with ErrCodeConfig, before any network call.
func FromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	provider, err := scraper.NewProvider(cfg.Scraper, nil)
	if err != nil {
		return nil, err
	}

	model, err := llm.NewOpenAIModel(cfg.LLM, nil)
	if err != nil {
		return nil, err
	}

	var store artifact.Store = artifact.NewLocalStore(cfg.Output.Dir)
	if cfg.Output.S3Bucket != "" {
		s3Store, err := artifact.NewS3Store(ctx, cfg.Output)
		if err != nil {
			return nil, err
		}
		store = artifact.MultiStore{store, s3Store}
		slog.Info("artifact mirroring enabled", "bucket", cfg.Output.S3Bucket, "prefix", cfg.Output.S3Prefix)
	}

	fetcher := scraper.NewFetcher(provider, cfg.Scraper.PayloadKey)
	if cfg.Scraper.CacheTTL > 0 {
		fetcher.WithCache(cache.New(cfg.Scraper.CacheMaxEntries, cfg.Scraper.CacheTTL))
		slog.Info("page cache enabled", "ttl", cfg.Scraper.CacheTTL, "max_entries", cfg.Scraper.CacheMaxEntries)
	}

	slog.Debug("pipeline configured",
		"provider", provider.Name(),
		"model", model.Name(),
		"output", cfg.Output.Dir,
	)

	return New(
		fetcher,
		llm.NewExtractor(model),
		store,
		Options{
			Defaults: models.RunDefaults{
				Fields:     cfg.Pipeline.Fields,
				MaxChars:   cfg.Pipeline.MaxChars,
				Retries:    cfg.Pipeline.Retries,
				RetryDelay: cfg.Pipeline.RetryDelay,
			},
			Notifier:      webhook.NewNotifier(cfg.Webhook),
			MaxRetryDelay: cfg.Pipeline.MaxRetryDelay,
		},
	), nil
}
