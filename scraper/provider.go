package scraper

import (
	"context"
	"net/http"

	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// Provider is the scraping collaborator: it turns a URL into a JSON document
// that carries the page text under a known key.
type Provider interface {
	// Name returns the provider identifier (e.g. "firecrawl", "direct").
	Name() string

	// Scrape performs one fetch of url. It does not retry.
	Scrape(ctx context.Context, url string) ([]byte, error)
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.ScraperConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderFirecrawl, "":
		return NewFirecrawl(cfg, httpClient)
	case config.ProviderDirect:
		return NewDirect(cfg), nil
	default:
		return nil, models.NewPipelineError(models.ErrCodeConfig, "unknown scraper provider "+cfg.Provider, nil)
	}
}
