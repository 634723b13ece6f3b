package fetcher

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/tagmend/internal/logger"
)

// StaticConfig holds configuration for the static fetcher.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// DefaultStaticConfig returns sensible defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		UserAgent: defaultUserAgent,
		Timeout:   30 * time.Second,
	}
}

// Chrome user agent for better compatibility
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticFetcher uses Colly for plain HTTP fetching.
// It implements the Fetcher interface.
type StaticFetcher struct {
	config StaticConfig
}

// NewStatic creates a new static fetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultStaticConfig().UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultStaticConfig().Timeout
	}
	return &StaticFetcher{config: cfg}
}

// Fetch retrieves page content using Colly.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{URL: targetURL}, err
	}
	logger.Debug("static fetch starting", "url", targetURL)

	result := Content{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	// Create a new collector for each request
	userAgent := coalesce(opts.UserAgent, f.config.UserAgent)
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.config.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	c.SetRequestTimeout(timeout)

	if len(opts.Headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range opts.Headers {
				r.Headers.Set(k, v)
			}
		})
	}

	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.Body = string(r.Body)
		logger.Debug("static fetch response received",
			"status", r.StatusCode,
			"content_type", result.ContentType,
			"body_size", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.StatusCode = r.StatusCode
			fetchErr = fmt.Errorf("%w: %d from %s", ErrHTTPStatus, r.StatusCode, targetURL)
		} else {
			fetchErr = fmt.Errorf("fetch error: %w", err)
		}
		logger.Debug("static fetch error", "status", result.StatusCode, "error", err)
	})

	if err := c.Visit(targetURL); err != nil {
		if fetchErr != nil {
			return result, fetchErr
		}
		return result, fmt.Errorf("failed to visit URL: %w", err)
	}

	if fetchErr != nil {
		return result, fetchErr
	}
	if result.Body == "" {
		return result, fmt.Errorf("%w: %s", ErrEmptyBody, targetURL)
	}

	parseMetadata(&result)
	logger.Debug("static fetch complete", "url", targetURL, "title", result.Title, "charset", result.Charset)
	return result, nil
}

// parseMetadata fills the title and declared charset. The body itself is
// left untouched.
func parseMetadata(content *Content) {
	if _, params, err := mime.ParseMediaType(content.ContentType); err == nil {
		content.Charset = strings.ToLower(params["charset"])
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.Body))
	if err != nil {
		return
	}
	content.Title = cleanText(doc.Find("title").First().Text())

	if cs, ok := doc.Find("meta[charset]").First().Attr("charset"); ok {
		content.Charset = strings.ToLower(strings.TrimSpace(cs))
		return
	}
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") {
			return true
		}
		if _, params, err := mime.ParseMediaType(s.AttrOr("content", "")); err == nil && params["charset"] != "" {
			content.Charset = strings.ToLower(params["charset"])
		}
		return false
	})
}

// Close releases resources.
func (f *StaticFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *StaticFetcher) Type() string {
	return "static"
}

// cleanText normalizes whitespace in text.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
