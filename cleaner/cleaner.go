// Package cleaner turns raw page HTML into LLM-friendly markdown.
package cleaner

import (
	"bytes"
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minContentLength is the shortest readability TextContent (in characters)
// accepted as main content. Shorter output falls back to the whole page.
const minContentLength = 50

// Cleaner runs selector -> exclude filter -> readability -> markdown.
// The converter is created once and is safe for concurrent use.
type Cleaner struct {
	mdConverter *converter.Converter
}

// Options narrows the HTML before extraction.
type Options struct {
	// Selector keeps only the elements it matches, if any match.
	Selector string

	// ExcludeSelectors are removed from the page before extraction.
	ExcludeSelectors []string
}

// Document is the cleaned page.
type Document struct {
	Markdown string
	Title    string
	Excerpt  string
	SiteName string
	Language string
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Clean converts rawHTML fetched from sourceURL into a markdown Document.
// Readability failures fall back to the filtered page; only a markdown
// conversion failure is an error.
func (c *Cleaner) Clean(rawHTML, sourceURL string, opts Options) (*Document, error) {
	if opts.Selector != "" {
		selected, err := applySelector(rawHTML, opts.Selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", opts.Selector, err)
		}
		rawHTML = selected
	}

	rawHTML = removeSelectors(rawHTML, opts.ExcludeSelectors)

	article := extractMain(rawHTML, sourceURL)

	md, err := c.mdConverter.ConvertString(article.Content, converter.WithDomain(sourceURL))
	if err != nil {
		return nil, fmt.Errorf("markdown conversion failed: %w", err)
	}

	return &Document{
		Markdown: strings.TrimSpace(md),
		Title:    article.Title,
		Excerpt:  article.Excerpt,
		SiteName: article.SiteName,
		Language: article.Language,
	}, nil
}

// extractMain runs Mozilla Readability. Any failure, or output shorter than
// minContentLength, yields the input HTML unchanged with empty metadata.
func extractMain(rawHTML, sourceURL string) readability.Article {
	fallback := readability.Article{Content: rawHTML}

	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source URL, using full page", "url", sourceURL, "error", err)
		return fallback
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, using full page", "url", sourceURL, "error", err)
		return fallback
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: content too short, using full page",
			"url", sourceURL, "length", len(article.TextContent),
		)
		fallback.Title = article.Title
		return fallback
	}
	return article
}

// applySelector returns the outer HTML of every element matching selector,
// or rawHTML unchanged when nothing matches.
func applySelector(rawHTML, selector string) (string, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// removeSelectors deletes every element matching one of selectors.
func removeSelectors(rawHTML string, selectors []string) string {
	if len(selectors) == 0 {
		return rawHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	for _, s := range selectors {
		doc.Find(s).Remove()
	}

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}
