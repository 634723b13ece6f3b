// Package output serializes repair reports.
package output

import (
	"fmt"
	"io"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatJSON, FormatJSONL, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", name)
	}
}

// Writer serializes a sequence of reports.
type Writer interface {
	// Write outputs a single report.
	Write(data any) error

	// Close flushes pending output. It does not close the destination.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty           bool
	indent           string
	dateTimeToString bool
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithDateTimeStrings renders top-level time.Time values of map reports
// in DateTimeLayout instead of RFC 3339.
func WithDateTimeStrings(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.dateTimeToString = enabled
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return newJSONWriter(w, cfg), nil
	case FormatJSONL:
		return newJSONLWriter(w, cfg), nil
	case FormatYAML:
		return newYAMLWriter(w, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// prepare applies date/time normalization to map reports.
func (c *writerConfig) prepare(data any) any {
	if m, ok := data.(map[string]any); ok {
		return NormalizeDateTimes(m, c.dateTimeToString)
	}
	return data
}
