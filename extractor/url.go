package extractor

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Defaults for URL extraction.
const (
	DefaultFetchTimeout   = 30 * time.Second
	DefaultUserAgent      = "agora/0.1 (+https://github.com/c360studio/agora)"
	DefaultMaxContentSize = 10 * 1024 * 1024
)

// URLExtractor fetches a web page and converts it into a document.
type URLExtractor struct {
	fetcher   *Fetcher
	converter *Converter
}

// NewURLExtractor creates a URL extractor. Zero values select the defaults.
func NewURLExtractor(timeout time.Duration, userAgent string, maxContentSize int64) *URLExtractor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxContentSize <= 0 {
		maxContentSize = DefaultMaxContentSize
	}
	return &URLExtractor{
		fetcher:   NewFetcher(timeout, userAgent, maxContentSize),
		converter: NewConverter(),
	}
}

// Extract fetches the URL and returns the extracted document.
func (e *URLExtractor) Extract(ctx context.Context, rawURL string) (*Document, error) {
	result, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	pageURL, _ := url.Parse(rawURL)
	converted, err := e.converter.Convert(result.Body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", rawURL, err)
	}
	if converted.Markdown == "" {
		return nil, fmt.Errorf("no content extracted from %s", rawURL)
	}

	title := converted.Title
	if title == "" {
		title = ExtractDomain(rawURL)
	}

	return &Document{
		Title:     title,
		Content:   converted.Markdown,
		SourceURL: rawURL,
	}, nil
}
