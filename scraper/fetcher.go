package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/models"
)

// RetryPolicy is the retry budget for one fetch: a fixed number of attempts
// separated by a fixed delay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// FetchResult is the output of a successful fetch.
type FetchResult struct {
	// Content is the page text found under the payload key.
	Content string

	// Attempts is the number of provider calls made, including the
	// successful one. Zero when Content came from the cache.
	Attempts int

	// Cached reports that Content was served from the page cache.
	Cached bool

	// Provider is the name of the provider that produced Content.
	Provider string
}

// Fetcher calls a Provider with bounded, uniform-interval retries.
type Fetcher struct {
	provider   Provider
	payloadKey string
	cache      *cache.Cache

	// sleep pauses between failed attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher that reads the page text from payloadKey
// (a gjson path) in each provider response. An empty key means "markdown".
func NewFetcher(provider Provider, payloadKey string) *Fetcher {
	if payloadKey == "" {
		payloadKey = "markdown"
	}
	return &Fetcher{
		provider:   provider,
		payloadKey: payloadKey,
		sleep:      sleepCtx,
	}
}

// WithCache makes the fetcher serve recently fetched pages from c instead of
// calling the provider again. A nil c disables caching.
func (f *Fetcher) WithCache(c *cache.Cache) *Fetcher {
	f.cache = c
	return f
}

// Close releases the page cache, if any.
func (f *Fetcher) Close() {
	if f.cache != nil {
		f.cache.Close()
	}
}

// Provider returns the underlying provider.
func (f *Fetcher) Provider() Provider { return f.provider }

// Fetch retrieves the text content of url.
//
// Up to policy.Attempts provider calls are made. A call that errors, or whose
// response lacks a string under the payload key, counts as a failed attempt.
// The fetcher waits policy.Delay after each failed attempt except the last.
// When every attempt fails, the last attempt's error is returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, url string, policy RetryPolicy) (*FetchResult, error) {
	if policy.Attempts < 1 {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput,
			fmt.Sprintf("retry attempts must be at least 1, got %d", policy.Attempts), nil)
	}

	name := f.provider.Name()

	var key string
	if f.cache != nil {
		key = cache.Key(name, f.payloadKey, url)
		if content, ok := f.cache.Get(key); ok {
			slog.Info("scraping skipped, page served from cache", "url", url, "provider", name)
			return &FetchResult{Content: content, Provider: name, Cached: true}, nil
		}
	}

	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, models.NewPipelineError(models.ErrCodeFetch, "scrape interrupted", err)
		}

		slog.Info("scraping attempt",
			"url", url,
			"provider", name,
			"attempt", attempt,
			"max_attempts", policy.Attempts,
		)

		content, err := f.attempt(ctx, url)
		if err == nil {
			slog.Info("scraping successful",
				"url", url,
				"attempt", attempt,
				"chars", len([]rune(content)),
			)
			if f.cache != nil {
				f.cache.Set(key, content)
			}
			return &FetchResult{Content: content, Attempts: attempt, Provider: name}, nil
		}

		lastErr = err
		slog.Warn("scraping attempt failed",
			"url", url,
			"attempt", attempt,
			"error", err,
		)

		if attempt < policy.Attempts {
			if err := f.sleep(ctx, policy.Delay); err != nil {
				return nil, models.NewPipelineError(models.ErrCodeFetch, "scrape interrupted", err)
			}
		}
	}

	return nil, lastErr
}

// attempt makes one provider call and pulls the payload out of its response.
func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	body, err := f.provider.Scrape(ctx, url)
	if err != nil {
		return "", err
	}

	payload := gjson.GetBytes(body, f.payloadKey)
	if !payload.Exists() || payload.Type != gjson.String {
		return "", models.NewPipelineError(models.ErrCodeNoContent,
			fmt.Sprintf("no %q key found in response", f.payloadKey), nil)
	}
	return payload.String(), nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
