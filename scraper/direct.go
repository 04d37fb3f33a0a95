package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/use-agent/distill/cleaner"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// Direct is a credential-free provider that fetches the page itself and
// converts its main content to markdown locally. It cannot render
// JavaScript.
type Direct struct {
	fetcher  *httpFetcher
	cleaner  *cleaner.Cleaner
	selector string
	exclude  []string
	timeout  time.Duration
}

// directDocument mirrors the shape of a Firecrawl data object.
type directDocument struct {
	Markdown string         `json:"markdown"`
	Metadata directMetadata `json:"metadata"`
}

type directMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// NewDirect creates a Direct provider.
func NewDirect(cfg config.ScraperConfig) *Direct {
	return &Direct{
		fetcher:  newHTTPFetcher(),
		cleaner:  cleaner.NewCleaner(),
		selector: cfg.Selector,
		exclude:  cfg.ExcludeSelectors,
		timeout:  cfg.Timeout,
	}
}

func (d *Direct) Name() string { return config.ProviderDirect }

// Scrape fetches targetURL, extracts its main content and returns
// {"markdown": ..., "metadata": {...}}.
func (d *Direct) Scrape(ctx context.Context, targetURL string) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	page, err := d.fetcher.fetch(ctx, targetURL)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeFetch, "direct fetch failed", err)
	}

	doc, err := d.cleaner.Clean(page.HTML, page.FinalURL, cleaner.Options{
		Selector:         d.selector,
		ExcludeSelectors: d.exclude,
	})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeNoContent, "content extraction failed", err)
	}

	title := doc.Title
	if title == "" {
		title = page.Title
	}

	out, err := json.Marshal(directDocument{
		Markdown: doc.Markdown,
		Metadata: directMetadata{
			Title:       title,
			Description: doc.Excerpt,
			SiteName:    doc.SiteName,
			Language:    doc.Language,
			SourceURL:   page.FinalURL,
			StatusCode:  page.StatusCode,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return out, nil
}
