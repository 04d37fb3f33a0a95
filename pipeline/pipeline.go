// Package pipeline runs the scrape, store, extract, store sequence that turns
// one web page into raw text, JSON and a spreadsheet.
package pipeline

import (
	"context"
	"log/slog"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/use-agent/distill/artifact"
	"github.com/use-agent/distill/llm"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/scraper"
	"github.com/use-agent/distill/webhook"
)

// Options configures a Pipeline beyond its collaborators.
type Options struct {
	// Defaults fill unset RunRequest fields.
	Defaults models.RunDefaults

	// Notifier receives run.completed / run.failed events. May be nil.
	Notifier *webhook.Notifier

	// MaxRetryDelay caps the retry delay a request may ask for.
	// Zero means DefaultMaxRetryDelay.
	MaxRetryDelay time.Duration
}

// DefaultMaxRetryDelay is the retry delay cap used when Options leaves it unset.
const DefaultMaxRetryDelay = time.Minute

// Pipeline orchestrates a single run. Runs on the same Pipeline are
// serialised, so stamps taken in the same second never interleave writes.
// A run waiting its turn gives up when its context ends.
type Pipeline struct {
	fetcher    *scraper.Fetcher
	extractor  *llm.Extractor
	raw        *artifact.RawSink
	structured *artifact.StructuredSink
	defaults   models.RunDefaults
	notifier   *webhook.Notifier
	maxDelay   time.Duration

	now func() time.Time

	// sem holds one token while a run is in progress.
	sem chan struct{}
}

// New creates a Pipeline writing every artifact to store.
func New(fetcher *scraper.Fetcher, extractor *llm.Extractor, store artifact.Store, opts Options) *Pipeline {
	maxDelay := opts.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}
	return &Pipeline{
		fetcher:    fetcher,
		extractor:  extractor,
		raw:        artifact.NewRawSink(store),
		structured: artifact.NewStructuredSink(store),
		defaults:   opts.Defaults,
		notifier:   opts.Notifier,
		maxDelay:   maxDelay,
		now:        time.Now,
		sem:        make(chan struct{}, 1),
	}
}

// Close releases background resources held by the pipeline.
func (p *Pipeline) Close() {
	p.fetcher.Close()
}

// ProviderName reports which scraping provider the pipeline uses.
func (p *Pipeline) ProviderName() string {
	return p.fetcher.Provider().Name()
}

// Run executes one run for req:
//
//  1. Fetch the page text with retries.
//  2. Store it as raw_data_<stamp>.md.
//  3. Extract the requested fields with one model call.
//  4. Store the result as formatted_data_<stamp>.json and .xlsx.
//
// The first failing step aborts the run and its error is returned as-is.
// Artifacts written by earlier steps are left in place. When ctx ends while
// another run holds the pipeline, Run returns ErrCodeBusy without starting.
func (p *Pipeline) Run(ctx context.Context, req models.RunRequest) (*models.RunReport, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		slog.Warn("run abandoned while waiting for pipeline", "url", req.URL, "error", ctx.Err())
		return nil, models.NewPipelineError(models.ErrCodeBusy, "gave up waiting for the current run", ctx.Err())
	}
	defer func() { <-p.sem }()

	req.Defaults(p.defaults)
	stamp := models.NewRunStamp(p.now())

	report, err := p.run(ctx, req, stamp)
	if err != nil {
		pe := models.AsPipelineError(err)
		slog.Error("run failed",
			"stamp", stamp,
			"url", req.URL,
			"code", pe.Code,
			"error", err,
		)
		p.notifier.Notify(ctx, &webhook.Event{
			Type:  webhook.EventRunFailed,
			RunID: stamp.String(),
			Data: map[string]any{
				"url":   req.URL,
				"error": pe.ToDetail(),
			},
		})
		return nil, err
	}

	p.notifier.Notify(ctx, &webhook.Event{
		Type:  webhook.EventRunCompleted,
		RunID: stamp.String(),
		Data:  report,
	})
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, req models.RunRequest, stamp models.RunStamp) (*models.RunReport, error) {
	if err := validate(req, p.maxDelay); err != nil {
		return nil, err
	}

	totalStart := time.Now()
	slog.Info("run started",
		"stamp", stamp,
		"url", req.URL,
		"fields", len(req.Fields),
		"retries", req.Retries,
	)

	// 1. Fetch.
	fetchStart := time.Now()
	fetched, err := p.fetcher.Fetch(ctx, req.URL, scraper.RetryPolicy{
		Attempts: req.Retries,
		Delay:    req.RetryDelay.Std(),
	})
	if err != nil {
		return nil, err
	}
	fetchMs := time.Since(fetchStart).Milliseconds()

	// 2. Raw artifact.
	storageStart := time.Now()
	rawLoc, err := p.raw.Write(ctx, fetched.Content, stamp)
	if err != nil {
		return nil, err
	}
	storageMs := time.Since(storageStart).Milliseconds()

	// 3. Extract.
	extractStart := time.Now()
	ext, err := p.extractor.Extract(ctx, fetched.Content, req.Fields, req.MaxChars)
	if err != nil {
		return nil, err
	}
	extractionMs := time.Since(extractStart).Milliseconds()

	// 4. Structured artifacts.
	storageStart = time.Now()
	arts, err := p.structured.Write(ctx, ext, stamp)
	if err != nil {
		return nil, err
	}
	storageMs += time.Since(storageStart).Milliseconds()
	arts.Raw = rawLoc

	report := &models.RunReport{
		Stamp:     stamp,
		URL:       req.URL,
		Provider:  fetched.Provider,
		Attempts:  fetched.Attempts,
		Cached:    fetched.Cached,
		Records:   countRecords(ext),
		Data:      ext.Data,
		Artifacts: arts,
		Timing: models.TimingInfo{
			TotalMs:      time.Since(totalStart).Milliseconds(),
			FetchMs:      fetchMs,
			ExtractionMs: extractionMs,
			StorageMs:    storageMs,
		},
		LLMUsage: ext.Usage,
	}

	slog.Info("process completed successfully",
		"stamp", stamp,
		"records", report.Records,
		"attempts", report.Attempts,
		"total_ms", report.Timing.TotalMs,
	)
	return report, nil
}

func validate(req models.RunRequest, maxDelay time.Duration) error {
	var delay time.Duration
	if req.RetryDelay != nil {
		delay = req.RetryDelay.Std()
	}

	switch {
	case strings.TrimSpace(req.URL) == "":
		return models.NewPipelineError(models.ErrCodeInvalidInput, "url is required", nil)
	case req.Retries < 1:
		return models.NewPipelineError(models.ErrCodeInvalidInput, "retries must be at least 1", nil)
	case delay < 0:
		return models.NewPipelineError(models.ErrCodeInvalidInput, "retry delay must not be negative", nil)
	case delay > maxDelay:
		return models.NewPipelineError(models.ErrCodeInvalidInput,
			fmt.Sprintf("retry delay must not exceed %s", maxDelay), nil)
	case req.MaxChars < 1:
		return models.NewPipelineError(models.ErrCodeInvalidInput, "max chars must be at least 1", nil)
	}
	return nil
}

// countRecords is 1 for an object and the element count for an array.
func countRecords(ext *models.Extraction) int {
	r := gjson.ParseBytes(ext.Data)
	if r.IsArray() {
		return len(r.Array())
	}
	return 1
}
