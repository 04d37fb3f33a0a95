package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 20 << 20

// Firecrawl is the hosted scraping collaborator (https://firecrawl.dev).
type Firecrawl struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// firecrawlRequest is the /v1/scrape request body.
type firecrawlRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// NewFirecrawl creates a Firecrawl provider. A missing API key is a
// configuration error. Pass a nil httpClient to use a default client.
func NewFirecrawl(cfg config.ScraperConfig, httpClient *http.Client) (*Firecrawl, error) {
	if strings.TrimSpace(cfg.FirecrawlAPIKey) == "" {
		return nil, models.NewPipelineError(models.ErrCodeConfig,
			"FIRECRAWL_API_KEY not found in environment variables", nil)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := cfg.FirecrawlBaseURL
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	return &Firecrawl{
		apiKey:     cfg.FirecrawlAPIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: httpClient,
	}, nil
}

func (f *Firecrawl) Name() string { return config.ProviderFirecrawl }

// Scrape calls POST /v1/scrape and returns the response's data object, which
// carries the page markdown under "markdown".
func (f *Firecrawl) Scrape(ctx context.Context, targetURL string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	bodyBytes, err := json.Marshal(firecrawlRequest{
		URL:             targetURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/scrape", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeFetch, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeFetch, "firecrawl request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeFetch, "failed to read firecrawl response", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, models.NewPipelineError(models.ErrCodeFetch,
			fmt.Sprintf("firecrawl returned %d: %s", resp.StatusCode, msg), nil)
	}

	if !gjson.ValidBytes(respBody) {
		return nil, models.NewPipelineError(models.ErrCodeFetch, "firecrawl returned invalid JSON", nil)
	}

	parsed := gjson.ParseBytes(respBody)
	if success := parsed.Get("success"); success.Exists() && !success.Bool() {
		msg := parsed.Get("error").String()
		if msg == "" {
			msg = "scrape unsuccessful"
		}
		return nil, models.NewPipelineError(models.ErrCodeFetch, "firecrawl: "+msg, nil)
	}

	data := parsed.Get("data")
	if !data.IsObject() {
		return nil, models.NewPipelineError(models.ErrCodeNoContent, "firecrawl response has no data object", nil)
	}
	return []byte(data.Raw), nil
}
