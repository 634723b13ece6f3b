// Package fetcher downloads raw page markup for the repair pipeline.
// Implement the Fetcher interface to plug in other transports.
package fetcher

import (
	"context"
	"errors"
	"time"
)

// Fetcher abstracts page downloading.
type Fetcher interface {
	// Fetch retrieves page content from a URL.
	Fetch(ctx context.Context, url string, opts Options) (Content, error)

	// Close releases any resources.
	Close() error

	// Type returns a string identifying the fetcher type (e.g., "static").
	Type() string
}

// Options controls fetching behavior.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
}

// Content represents fetched page data.
type Content struct {
	URL         string
	Body        string // Raw markup, not repaired or normalized
	Title       string
	Charset     string // Declared by <meta charset> or http-equiv, if any
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
}

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, fetcher.ErrHTTPStatus).
var (
	// ErrHTTPStatus indicates the server answered with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrEmptyBody indicates the server answered without content.
	ErrEmptyBody = errors.New("empty response body")
)
